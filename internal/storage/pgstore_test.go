package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePg emulates the three statements PgStore issues against an
// in-memory table keyed by (profile, key).
type fakePg struct {
	mu    sync.Mutex
	rows  map[[2]string]string
	execs []string
	fail  error
}

func newFakePg() *fakePg {
	return &fakePg{rows: make(map[[2]string]string)}
}

func (f *fakePg) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if f.fail != nil {
		return pgconn.CommandTag{}, f.fail
	}
	switch {
	case strings.Contains(sql, "INSERT INTO client_storage"):
		f.rows[[2]string{args[0].(string), args[1].(string)}] = args[2].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(sql, "DELETE FROM client_storage"):
		delete(f.rows, [2]string{args[0].(string), args[1].(string)})
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakePg) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return fakeRow{err: f.fail}
	}
	if len(args) < 2 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	v, ok := f.rows[[2]string{args[0].(string), args[1].(string)}]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: v}
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

func TestPgStore(t *testing.T) {
	exerciseStore(t, NewPgStore(newFakePg(), "desk-7"))
}

func TestPgStore_Migrate(t *testing.T) {
	db := newFakePg()
	if err := NewPgStore(db, "").Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS client_storage") {
		t.Errorf("execs = %v", db.execs)
	}
}

func TestPgStore_profilesAreIsolated(t *testing.T) {
	db := newFakePg()
	ctx := context.Background()
	if err := NewPgStore(db, "a").Set(ctx, "auth_tokens", "x"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := NewPgStore(db, "b").Get(ctx, "auth_tokens"); found {
		t.Error("profile b sees profile a's row")
	}
}

func TestPgStore_errorsAreWrapped(t *testing.T) {
	db := newFakePg()
	db.fail = errors.New("connection reset")
	s := NewPgStore(db, "")

	if _, _, err := s.Get(context.Background(), "k"); err == nil || !errors.Is(err, db.fail) {
		t.Errorf("Get error = %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); err == nil || !errors.Is(err, db.fail) {
		t.Errorf("Set error = %v", err)
	}
}

func TestPgStore_HealthCheck(t *testing.T) {
	db := newFakePg()
	s := NewPgStore(db, "")
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck on empty table: %v", err)
	}
	db.fail = errors.New("relation does not exist")
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck error")
	}
}
