package store

import (
	"fmt"
	"sort"
	"strings"

	"modelkit/internal/entity"
	"modelkit/internal/query"
)

func mapType(d query.Dialect, t entity.ColumnType) (string, error) {
	pg := d == query.Postgres
	switch t {
	case entity.TypeBigint:
		if pg {
			return "bigint", nil
		}
		return "bigint unsigned", nil
	case entity.TypeInt:
		if pg {
			return "integer", nil
		}
		return "int", nil
	case entity.TypeString:
		return "varchar(255)", nil
	case entity.TypeText:
		return "text", nil
	case entity.TypeBool:
		// deleted сравнивается с 0 и выставляется в 1, поэтому число, а не boolean
		if pg {
			return "smallint", nil
		}
		return "tinyint(1)", nil
	case entity.TypeDatetime:
		if pg {
			return "timestamp with time zone", nil
		}
		return "datetime", nil
	case entity.TypeDecimal:
		return "numeric(18,2)", nil
	case entity.TypeJSON:
		if pg {
			return "jsonb", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("unknown column type: %s", t)
	}
}

// GenerateDDL возвращает карту ключ -> один SQL-оператор. Ключи сортируются так,
// что все CREATE TABLE идут раньше индексов.
func GenerateDDL(d query.Dialect, descs []*entity.Descriptor) (map[string]string, error) {
	if d == nil {
		d = query.MySQL
	}
	out := make(map[string]string, len(descs)*2)

	// стабильный порядок сущностей
	sorted := append([]*entity.Descriptor(nil), descs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table() < sorted[j].Table() })

	for _, e := range sorted {
		tbl := e.Table()
		if _, dup := out["100_"+tbl]; dup {
			return nil, fmt.Errorf("%s: table described twice", tbl)
		}

		cols := make([]string, 0, len(e.Columns()))
		for _, c := range e.Columns() {
			typ, err := mapType(d, e.Type(c))
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tbl, c, err)
			}
			var attr string
			switch {
			case c == "uid" && e.IsWide(c):
				attr = " not null primary key"
			case c == "deleted":
				attr = " not null default 0"
			case c == "created_at":
				attr = " not null default current_timestamp"
			default:
				attr = " null"
			}
			cols = append(cols, d.QuoteIdent(c)+" "+typ+attr)
		}
		out["100_"+tbl] = fmt.Sprintf("create table if not exists %s (\n  %s\n)",
			d.QuoteIdent(tbl), strings.Join(cols, ",\n  "))

		// индексы по ссылкам <x>_uid
		for _, c := range e.WideInteger() {
			if !strings.HasSuffix(c, "_uid") {
				continue
			}
			idx := "idx_" + tbl + "_" + c
			ine := ""
			if d == query.Postgres {
				ine = "if not exists "
			}
			out["200_"+idx] = fmt.Sprintf("create index %s%s on %s (%s)",
				ine, d.QuoteIdent(idx), d.QuoteIdent(tbl), d.QuoteIdent(c))
		}
	}
	return out, nil
}
