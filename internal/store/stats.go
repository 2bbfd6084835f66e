package store

import (
	"fmt"
	"sync/atomic"
	"time"

	"modelkit/internal/query"
)

// Stats: счётчики запросов пула.
type Stats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	errors   atomic.Int64
	slow     atomic.Int64
	duration atomic.Int64 // наносекунды
}

// StatsSnapshot: срез счётчиков на момент вызова.
type StatsSnapshot struct {
	Queries       int64         `json:"queries"`
	Execs         int64         `json:"execs"`
	Errors        int64         `json:"errors"`
	SlowQueries   int64         `json:"slowQueries"`
	TotalDuration time.Duration `json:"totalDuration"`
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d errors=%d slow=%d total=%s",
		s.Queries, s.Execs, s.Errors, s.SlowQueries, s.TotalDuration)
}

// Stats возвращает текущие счётчики.
func (db *DB) Stats() StatsSnapshot {
	return StatsSnapshot{
		Queries:       db.stats.queries.Load(),
		Execs:         db.stats.execs.Load(),
		Errors:        db.stats.errors.Load(),
		SlowQueries:   db.stats.slow.Load(),
		TotalDuration: time.Duration(db.stats.duration.Load()),
	}
}

func (db *DB) record(st query.Statement, start time.Time, err error, isQuery bool) {
	d := time.Since(start)
	if isQuery {
		db.stats.queries.Add(1)
	} else {
		db.stats.execs.Add(1)
	}
	db.stats.duration.Add(int64(d))
	if err != nil {
		db.stats.errors.Add(1)
	}
	if db.slow > 0 && d > db.slow {
		db.stats.slow.Add(1)
		db.log.Warn("slow query detected", "duration", d, "sql", st.SQL, "args", st.Args)
	}
}
