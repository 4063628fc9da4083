// Package testing provides fixtures, fake sources and database helpers for
// valuator tests.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/valuator/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a file-backed SQLite database in the temp directory with
// the named schema applied. The cleanup function closes and removes it.
//
// Supported schema names:
//   - "ledger" - transactions, stored prices and stored fx rates
//   - "cache" - performance snapshots
//   - "client_data" - provider response cache
//   - Unknown names - empty database
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, tmpPath := openTestDB(t, name)
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db, cleanup(t, db, tmpPath)
}

// NewTestDBWithSchema creates a test database and executes schema on it
// instead of the named schema.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	db, tmpPath := openTestDB(t, name)
	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			_ = db.Close()
			_ = os.Remove(tmpPath)
			t.Fatalf("Failed to execute custom schema for test database %s: %v", name, err)
		}
	}
	return db, cleanup(t, db, tmpPath)
}

// LoadTestSchema returns the schema applied to databases called name
func LoadTestSchema(name string) (string, error) {
	schema, ok := database.SchemaFor(name)
	if !ok {
		return "", fmt.Errorf("no schema for %s", name)
	}
	return schema, nil
}

func openTestDB(t *testing.T, name string) (*database.DB, string) {
	t.Helper()

	// Temporary files keep parallel tests isolated
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	return db, tmpPath
}

func cleanup(t *testing.T, db *database.DB, tmpPath string) func() {
	return func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", db.Name(), err)
		}
		for _, path := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", path, err)
			}
		}
	}
}
