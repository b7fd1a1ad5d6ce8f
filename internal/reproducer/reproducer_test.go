package reproducer

import (
	"bufio"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repro")
	orig := &Triple{Stmts: []*instrument.Stmt{
		{Text: "BEGIN", Tid: 0, Role: instrument.Init},
		{Text: "INSERT INTO t0 (wkey, write_op_id, v) VALUES (1, 0, 10)", Tid: 0, Role: instrument.InsertWrite, Target: "t0"},
		{Text: "SELECT * FROM t0 WHERE wkey = 1", Tid: 0, Role: instrument.AfterWriteRead, Target: "t0"},
		{Text: "COMMIT", Tid: 0, Role: instrument.Init},
	}}

	require.NoError(t, Save(dir, orig))
	got, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, got.Stmts, len(orig.Stmts))
	for i := range orig.Stmts {
		require.Equal(t, orig.Stmts[i].Text, got.Stmts[i].Text)
		require.Equal(t, orig.Stmts[i].Tid, got.Stmts[i].Tid)
		require.Equal(t, orig.Stmts[i].Role, got.Stmts[i].Role)
	}
}

func TestLoadRejectsMismatchedRecordCounts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeLines(filepath.Join(dir, stmtsFile), func(w *bufio.Writer) error {
		_, err := w.WriteString("SELECT 1;\n\n")
		return err
	}))
	require.NoError(t, writeLines(filepath.Join(dir, tidFile), func(w *bufio.Writer) error {
		_, err := w.WriteString("0\n1\n")
		return err
	}))
	require.NoError(t, writeLines(filepath.Join(dir, usageFile), func(w *bufio.Writer) error {
		_, err := w.WriteString("0\n")
		return err
	}))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := &Manifest{
		Seed:       42,
		Driver:     "dolt",
		Statements: 17,
		Violations: []ManifestViolation{
			{Predicate: "G1c", Txns: []int{0, 1}, RowID: 3, Detail: "write cycle over {WW, WR}"},
		},
	}

	require.NoError(t, SaveManifest(dir, orig))
	got, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Equal(t, orig, got)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	require.Error(t, err)
}
