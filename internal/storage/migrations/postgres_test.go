package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExecer struct {
	statements []string
	err        error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.statements = append(r.statements, sql)
	return pgconn.CommandTag{}, nil
}

func TestRunPostgresAppliesEmbeddedFiles(t *testing.T) {
	db := &recordingExecer{}
	applied, err := RunPostgres(context.Background(), db)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(applied) == 0 || applied[0] != "001_addresses.sql" {
		t.Fatalf("applied mismatch: %v", applied)
	}
	if !strings.Contains(db.statements[0], "CREATE TABLE IF NOT EXISTS addresses") {
		t.Fatalf("unexpected statement: %s", db.statements[0])
	}
}

func TestRunPostgresStopsOnError(t *testing.T) {
	db := &recordingExecer{err: errors.New("permission denied")}
	if _, err := RunPostgres(context.Background(), db); err == nil {
		t.Fatalf("expected error")
	}
}
