// Package testutil builds throwaway stores and fixtures for tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/infrastructure/sqlite"
	"github.com/oksasatya/usage-aggregate-service/internal/schema"
)

// PostgresDSNEnv names the variable that enables Postgres integration tests.
const PostgresDSNEnv = "TEST_POSTGRES_DSN"

// Logger returns a logger that writes nowhere.
func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SQLiteDSN returns the DSN of a fresh, migrated database file inside
// t.TempDir().
func SQLiteDSN(t testing.TB) string {
	t.Helper()
	dsn := config.SQLiteDSN(filepath.Join(t.TempDir(), "test.db"))
	if _, err := schema.NewManager(schema.SQLite, dsn, Logger()).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return dsn
}

// SQLiteDB opens a fresh, migrated database that is closed on cleanup.
func SQLiteDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), SQLiteDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SQLiteStore returns a repository over a fresh, migrated database.
func SQLiteStore(t testing.TB) *sqlite.AggregateRepository {
	t.Helper()
	return SQLiteRepo(SQLiteDB(t))
}

// SQLiteRepo wraps db in a repository with the test operation timeout.
func SQLiteRepo(db *sql.DB) *sqlite.AggregateRepository {
	return sqlite.NewAggregateRepository(db, 5*time.Second)
}

// InsertBareUser writes a users row with no dependents, the shape left
// behind by data loaded outside the service.
func InsertBareUser(t testing.TB, db *sql.DB, age int) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (age, gender, user_behavior) VALUES (?, 'Female', 'light')`, age)
	if err != nil {
		t.Fatalf("insert bare user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

// CountDependents returns the device_information and app_usage_stats rows
// owned by userID.
func CountDependents(t testing.TB, db *sql.DB, userID int64) (devices, usage int) {
	t.Helper()
	if err := db.QueryRow(`SELECT COUNT(*) FROM device_information WHERE user_id = ?`, userID).Scan(&devices); err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM app_usage_stats WHERE user_id = ?`, userID).Scan(&usage); err != nil {
		t.Fatalf("count usage: %v", err)
	}
	return devices, usage
}

// PostgresDSN returns TEST_POSTGRES_DSN or skips the test.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	return dsn
}

// Input returns a valid aggregate input; n varies every field.
func Input(n int) entity.AggregateInput {
	return entity.AggregateInput{
		Age:          20 + n,
		Gender:       "Male",
		UserBehavior: "moderate",
		Device: entity.DeviceInput{
			DeviceModel:     fmt.Sprintf("Pixel %d", n),
			OperatingSystem: "Android",
		},
		Usage: entity.UsageInput{
			AppUsageTime:  100 + n,
			ScreenOnTime:  4.5,
			BatteryDrain:  1500 + n,
			AppsInstalled: 40 + n,
			DataUsage:     800 + n,
			BehaviorClass: 3,
		},
	}
}
