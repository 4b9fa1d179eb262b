package schema_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/schema"
	"github.com/oksasatya/usage-aggregate-service/internal/testutil"
)

func TestEnsureSchema_CreatesTablesAndIsIdempotent(t *testing.T) {
	dsn := config.SQLiteDSN(filepath.Join(t.TempDir(), "schema.db"))
	m := schema.NewManager(schema.SQLite, dsn, testutil.Logger())
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		tables, err := m.EnsureSchema(ctx)
		if err != nil {
			t.Fatalf("EnsureSchema run %d: %v", run, err)
		}
		for _, want := range []string{"users", "device_information", "app_usage_stats"} {
			if !slices.Contains(tables, want) {
				t.Fatalf("run %d: table %s missing from %v", run, want, tables)
			}
		}
	}
}

func TestEnsureSchema_UnreachableBackend(t *testing.T) {
	// A directory is not a database file.
	dsn := config.SQLiteDSN(t.TempDir())
	if _, err := schema.NewManager(schema.SQLite, dsn, testutil.Logger()).EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{"postgres", "postgres", false},
		{"pgx", "postgres", false},
		{"sqlite", "sqlite", false},
		{"sqlite3", "sqlite", false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := schema.DialectFor(tt.driver)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DialectFor: %v", err)
			}
			if d.Name != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, d.Name)
			}
		})
	}
}
