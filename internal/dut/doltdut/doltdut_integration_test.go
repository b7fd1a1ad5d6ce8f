//go:build integration

package doltdut

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"
)

// TestDoltDUTAgainstContainer exercises Open/Execute/Backup/RestoreTo
// against a real dolt-sql-server, the one driver dependency the unit
// tests can't cover without a running server. Gated behind the
// "integration" build tag to keep container-backed tests out of the
// default `go test ./...` run.
func TestDoltDUTAgainstContainer(t *testing.T) {
	ctx := context.Background()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	d, err := Open(Config{DataDir: dsn, Database: "txnfuzz"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Reset(ctx) })

	require.NoError(t, d.Reset(ctx))

	res, err := d.Execute(ctx, "CREATE TABLE t (wkey INT PRIMARY KEY, write_op_id INT, v INT)")
	require.NoError(t, err)
	require.Equal(t, 0, int(res.AffectedRows))

	_, err = d.Execute(ctx, "INSERT INTO t VALUES (1, 1, 10)")
	require.NoError(t, err)

	snap, err := d.Backup(ctx)
	require.NoError(t, err)

	_, err = d.Execute(ctx, "UPDATE t SET v = 20, write_op_id = 2 WHERE wkey = 1")
	require.NoError(t, err)

	require.NoError(t, d.RestoreTo(ctx, snap))

	content, err := d.GetContent(ctx, []string{"t"})
	require.NoError(t, err)
	require.Len(t, content["t"], 1)
	require.EqualValues(t, 10, content["t"][0]["v"])
}
