package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/spigell/uniscan/internal/database"
)

type call struct {
	query string
	args  []any
}

type scanFunc func(dest ...any) error

type execResult struct {
	n   int64
	err error
}

// fakeDB replays scripted responses in call order and records every statement.
type fakeDB struct {
	calls     []call
	execs     []execResult
	rows      []scanFunc
	queries   [][]scanFunc
	committed bool
	rolled    bool
}

func (f *fakeDB) record(query string, args []any) {
	f.calls = append(f.calls, call{query: query, args: args})
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }
func (f *fakeDB) SQLDB() *sql.DB             { return nil }

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	f.record(query, args)
	if len(f.execs) == 0 {
		return 1, nil
	}
	next := f.execs[0]
	f.execs = f.execs[1:]
	return next.n, next.err
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (database.Rows, error) {
	f.record(query, args)
	if len(f.queries) == 0 {
		return &fakeRows{}, nil
	}
	next := f.queries[0]
	f.queries = f.queries[1:]
	return &fakeRows{scans: next}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) database.Row {
	f.record(query, args)
	if len(f.rows) == 0 {
		return scanFunc(func(...any) error { return fmt.Errorf("unexpected query row: %s", query) })
	}
	next := f.rows[0]
	f.rows = f.rows[1:]
	return next
}

func (f *fakeDB) Begin(context.Context) (database.Tx, error) {
	return fakeTx{db: f}, nil
}

func (s scanFunc) Scan(dest ...any) error {
	return s(dest...)
}

type fakeTx struct {
	db *fakeDB
}

func (t fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.db.Exec(ctx, query, args...)
}

func (t fakeTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, query, args...)
}

func (t fakeTx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return t.db.QueryRow(ctx, query, args...)
}

func (t fakeTx) Commit(context.Context) error {
	t.db.committed = true
	return nil
}

func (t fakeTx) Rollback(context.Context) error {
	if !t.db.committed {
		t.db.rolled = true
	}
	return nil
}

type fakeRows struct {
	scans []scanFunc
	pos   int
}

func (r *fakeRows) Close() {}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.scans) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return r.scans[r.pos-1](dest...) }
func (r *fakeRows) Err() error             { return nil }

// values returns a scan that assigns vals to the destinations in order. A nil
// value leaves the destination untouched.
func values(vals ...any) scanFunc {
	return func(dest ...any) error {
		if len(dest) != len(vals) {
			return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
		}
		for i, v := range vals {
			if v == nil {
				continue
			}
			reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
		}
		return nil
	}
}

func failing(err error) scanFunc {
	return func(...any) error { return err }
}
