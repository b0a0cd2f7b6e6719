package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs only against a real server, e.g.
// MYSQL_TEST_DSN="root:root@tcp(localhost:3306)/flowengine_test?parseTime=true" go test ./workflow/store
func TestMySQLStoreContract(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	s, err := OpenMySQL(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runContractTests(t, s)
}
