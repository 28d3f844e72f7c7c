package db

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"paystub/internal/platform/config"
)

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("SELECT 2")},
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/README.md":  {Data: []byte("notes")},
		"m/sub/x.sql":  {Data: []byte("SELECT 3")},
	}
	files, err := migrationFiles(fsys, "m")
	if err != nil {
		t.Fatalf("migration files: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_a.sql" || files[1] != "0002_b.sql" {
		t.Fatalf("unexpected migration order: %v", files)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(migrations, "migrations")
	if err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("expected 5 migrations, got %v", files)
	}
}

func TestMigrateAgainstDatabase(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, config.Config{DatabaseURL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, pool); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}
