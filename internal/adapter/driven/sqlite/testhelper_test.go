package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"
)

// testKey is a fixed AES-256 key for repository tests.
var testKey = []byte("0123456789abcdef0123456789abcdef")

// setupTestDB creates a migrated in-memory database named after the test.
// cache=shared lets the writer and reader pools see the same data.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// The test name is escaped so subtest slashes cannot leak into the DSN query.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	db, err := openDB(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
