// Package testutil provides PostgreSQL and Redis harnesses for integration tests.
//
// Tests skip when the backing service is unreachable unless TEST_REQUIRE_DB,
// TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is truthy, in which case they fail.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/quarantine-scanner/config"
	// Registers the "pgx" database/sql driver.
	_ "github.com/target/quarantine-scanner/internal/data/pgxutil"
	"github.com/target/quarantine-scanner/internal/migrate"
)

const (
	defaultTestDBPort    = 55432
	defaultTestRedisAddr = "localhost:56379"
	pingTimeout          = 2 * time.Second
)

// TestDBConfig reads TEST_DB_* overrides on top of the local docker-compose
// defaults. CI sets TEST_DB_PORT=5432.
func TestDBConfig() config.DBConfig {
	port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if err != nil || port <= 0 {
		port = defaultTestDBPort
	}
	return config.DBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("TEST_DB_USER", "scanworker"),
		Password: envOr("TEST_DB_PASSWORD", "scanworker"),
		Name:     envOr("TEST_DB_NAME", "scanworker"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// SkipIfNoTestDB skips (or fails) t when the test database cannot be pinged.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	db, err := sql.Open("pgx", TestDBConfig().DSN())
	if err == nil {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		err = db.PingContext(ctx)
	}
	if err != nil {
		unavailable(t, requireDB(), "test database not available: %v", err)
	}
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set
// every call gets its own schema; otherwise the shared database is used and
// scan_jobs is emptied before and after fn.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)

	dsn := TestDBConfig().DSN()
	if envBool("TEST_DB_EPHEMERAL") {
		dsn = ephemeralSchema(t, dsn)
	}
	db := openMigrated(t, dsn)
	truncateLedger(t, db)
	t.Cleanup(func() { truncateLedger(t, db) })
	fn(db)
}

func openMigrated(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// ephemeralSchema creates a throwaway schema, drops it on cleanup and
// returns dsn with search_path pointing at it.
func ephemeralSchema(t testing.TB, dsn string) string {
	t.Helper()
	admin, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open admin database: %v", err)
	}

	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Logf("using ephemeral schema %s", schema)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := admin.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateLedger(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM scan_jobs"); err != nil {
		t.Fatalf("clean scan_jobs: %v", err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "t_" + hex.EncodeToString(b)
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// TestRedisAddr returns TEST_REDIS_ADDR or the docker-compose test port.
func TestRedisAddr() string {
	return envOr("TEST_REDIS_ADDR", defaultTestRedisAddr)
}

// SetupTestRedis returns a client on an emptied database (TEST_REDIS_DB,
// default 1). It skips when Redis is unreachable.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	dbIndex, err := strconv.Atoi(os.Getenv("TEST_REDIS_DB"))
	if err != nil || dbIndex < 0 {
		dbIndex = 1
	}
	addr := TestRedisAddr()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, requireRedis(), "redis not available at %s: %v", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis db %d: %v", dbIndex, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func unavailable(t testing.TB, required bool, format string, args ...any) {
	t.Helper()
	if required {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
