package storage_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/storage"
)

// ---- mock MigrationPool ----

type mockMigrationPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockMigrationPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.beginFn(ctx)
}

// mockTx is a minimal pgx.Tx implementation for testing migrations.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error   { return t.commitFn(ctx) }
func (t *mockTx) Rollback(ctx context.Context) error { return t.rollbackFn(ctx) }

// pgx.Tx has many more methods; stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

func writeSQLFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunMigrations_ExecutesInLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "002_second.sql", "CREATE TABLE b (id INT);")
	writeSQLFile(t, dir, "001_first.sql", "CREATE TABLE a (id INT);")
	writeSQLFile(t, dir, "notes.txt", "not a migration")

	var executed []string
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) {
			return &mockTx{
				execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
					executed = append(executed, sql)
					return pgconn.CommandTag{}, nil
				},
				commitFn:   func(_ context.Context) error { return nil },
				rollbackFn: func(_ context.Context) error { return nil },
			}, nil
		},
	}

	err := storage.RunMigrations(context.Background(), pool, dir, testLogger())
	require.NoError(t, err)
	require.Len(t, executed, 2)
	assert.Contains(t, executed[0], "CREATE TABLE a")
	assert.Contains(t, executed[1], "CREATE TABLE b")
}

func TestRunMigrations_RollsBackOnError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_bad.sql", "BROKEN SQL;")

	rolledBack := false
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) {
			return &mockTx{
				execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
					return pgconn.CommandTag{}, fmt.Errorf("syntax error")
				},
				commitFn:   func(_ context.Context) error { return nil },
				rollbackFn: func(_ context.Context) error { rolledBack = true; return nil },
			}, nil
		},
	}

	err := storage.RunMigrations(context.Background(), pool, dir, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_bad.sql")
	assert.True(t, rolledBack)
}

func TestRunMigrations_MissingDir(t *testing.T) {
	err := storage.RunMigrations(context.Background(), &mockMigrationPool{}, "/does/not/exist", testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading migrations dir")
}
