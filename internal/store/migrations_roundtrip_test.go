package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/engine/db"
)

func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in -short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("FOLIO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FOLIO_TEST_DATABASE_URL is not set")
	}
	conn, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Ping())
	return conn
}

func TestMigrationsUpDownUp(t *testing.T) {
	conn := openTestDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := conn.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)

	files := db.Migrations()
	applied, err := ApplyMigrations(ctx, conn, files)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_revisions.up.sql", "0002_revision_immutability.up.sql"}, applied)

	again, err := ApplyMigrations(ctx, conn, files)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, runDownMigrations(ctx, conn, files))
	assert.False(t, tableExists(t, conn, "revisions"))
	assert.False(t, tableExists(t, conn, "document_heads"))

	_, err = conn.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err)
	_, err = ApplyMigrations(ctx, conn, files)
	require.NoError(t, err)
	assert.True(t, tableExists(t, conn, "revisions"))
}

func TestRevisionContentIsImmutable(t *testing.T) {
	conn := openTestDatabase(t)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	_, err = ApplyMigrations(ctx, conn, db.Migrations())
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO document_heads(document_id, latest_version_number) VALUES('doc', 1)`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `
		INSERT INTO revisions(id, document_id, version_number, body, commit_hash, branch_name, author_id, status)
		VALUES('rev_1', 'doc', 1, 'a', 'h1', 'main', 'alice', 'DRAFT')`)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `UPDATE revisions SET status='PENDING', reviewed_by='bob' WHERE id='rev_1'`)
	assert.NoError(t, err)

	_, err = conn.ExecContext(ctx, `UPDATE revisions SET body='b' WHERE id='rev_1'`)
	assert.ErrorContains(t, err, "immutable")

	_, err = conn.ExecContext(ctx, `DELETE FROM revisions WHERE id='rev_1'`)
	assert.ErrorContains(t, err, "append-only")
}

// runDownMigrations applies every *.down.sql file, newest version first.
func runDownMigrations(ctx context.Context, conn *sql.DB, files fs.FS) error {
	names, err := fs.Glob(files, "*.down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return err
		}
		if text := strings.TrimSpace(string(body)); text != "" {
			if _, err := conn.ExecContext(ctx, text); err != nil {
				return err
			}
		}
	}
	return nil
}

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := conn.QueryRow(`SELECT to_regclass('public.' || $1) IS NOT NULL`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}
