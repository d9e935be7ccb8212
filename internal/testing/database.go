package testing

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/24ep/studio-sub000/internal/db"

	_ "github.com/mattn/go-sqlite3"
)

var dbSeq atomic.Int64

// CreateTestDB opens a private in-memory SQLite database with every migration
// applied. Cleanup is registered on t.
func CreateTestDB(t *testing.T) *db.DB {
	t.Helper()

	// a named shared-cache memory db keeps one schema across pool connections
	dsn := fmt.Sprintf("file:intake_test_%d?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on", dbSeq.Add(1))
	conn, err := db.Open(db.DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
