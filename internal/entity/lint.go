package entity

import "fmt"

// Issue: замечание линтера по описанию сущности.
type Issue struct {
	Entity   string `json:"entity"`
	Column   string `json:"column,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// Lint проверяет соглашения, на которые опирается построитель запросов.
// Blocking-замечания означают, что часть операций для сущности упадёт в БД.
func (r *Registry) Lint() []Issue {
	var issues []Issue
	for _, d := range r.Descriptors() {
		issues = append(issues, lintDescriptor(d)...)
	}
	return issues
}

func lintDescriptor(d *Descriptor) []Issue {
	var issues []Issue
	add := func(col, code, msg string, blocking bool) {
		issues = append(issues, Issue{Entity: d.Table(), Column: col, Code: code, Message: msg, Blocking: blocking})
	}

	// join ... ON <t>.<x>_uid = <rel>.uid
	if d.Classify("uid") == Unregistered {
		add("uid", "uid_missing", "no uid column; the entity cannot be the target of a join", false)
	} else if d.Classify("uid") != WideInteger {
		add("uid", "uid_not_wide", "uid is not a wide-integer column and will not be read as text", false)
	}
	// UPDATE всегда пишет updated_at = NOW()
	if !d.HasGeneral("updated_at") {
		add("updated_at", "updated_at_missing", "update statements set updated_at and will fail", true)
	}
	if d.Paranoid() && !d.HasGeneral("deleted_at") {
		add("deleted_at", "deleted_at_missing", "mark-deleted statements set deleted_at and will fail", true)
	}
	if d.Paranoid() && d.Type("deleted") != TypeBool && d.Type("deleted") != TypeInt {
		add("deleted", "deleted_type", fmt.Sprintf("deleted is %s; the soft-delete predicate compares it with 0", d.Type("deleted")), false)
	}
	return issues
}
