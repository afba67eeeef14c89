package migrate

import (
	"testing"

	"planline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var v int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&v); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if v < 1 {
		t.Fatalf("schema version not recorded: %d", v)
	}
	for _, table := range []string{"owners", "work_items", "commitments", "events", "api_keys"} {
		if _, err := conn.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
