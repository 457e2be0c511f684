package repository

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		fmt.Println("TEST_DATABASE_URL not set, skipping repository tests")
		os.Exit(0)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect test database: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

// resetTables truncates the whole schema in one statement. CASCADE follows
// the foreign keys, so the list order does not matter.
func resetTables(t *testing.T) {
	t.Helper()
	stmt := "TRUNCATE " + strings.Join(allTables(), ", ") + " CASCADE"
	if _, err := testPool.Exec(context.Background(), stmt); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}
