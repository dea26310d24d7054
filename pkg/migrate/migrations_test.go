package migrate_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsContainExpectedStatements(t *testing.T) {
	cases := map[string][]string{
		"create_gigs": {
			"CREATE TABLE IF NOT EXISTS gigs",
			"REFERENCES categories(id) ON DELETE SET NULL",
			"CHECK (price > 0)",
			"average_rating numeric(3,2) NOT NULL DEFAULT 0",
			"DROP TABLE IF EXISTS gigs",
		},
		"create_orders": {
			"CREATE TYPE order_status AS ENUM",
			"'payment_pending'",
			"REFERENCES gigs(id) ON DELETE RESTRICT",
			"amount numeric(10,2) NOT NULL",
			"platform_fee numeric(10,2) NOT NULL",
			"WHERE status = 'payment_pending'",
			"DROP TYPE IF EXISTS order_status",
		},
		"create_reviews": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_reviews_order_id",
			"CHECK (rating BETWEEN 1 AND 5)",
			"char_length(comment) <= 1000",
		},
		"create_profiles": {
			"total_earnings numeric(12,2) NOT NULL DEFAULT 0",
			"total_orders_completed integer NOT NULL DEFAULT 0",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"'review_created'",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Gig Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_gig_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestApplySQLiteSchemaIsRepeatable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, migrate.ApplySQLiteSchema(ctx, conn))
	require.NoError(t, migrate.ApplySQLiteSchema(ctx, conn))

	for _, table := range []string{"users", "gigs", "orders", "reviews", "profiles", "outbox_events", "outbox_dlq"} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
}
