package instrument

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/grammar"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	intType := cat.TypeNamed("int")
	cat.RegisterTable(&catalog.Table{
		Name: "t0", IsBaseTable: true, IsInsertable: true,
		Columns: []*catalog.Column{
			{Name: "wkey", Type: intType},
			{Name: "write_op_id", Type: intType},
			{Name: "v", Type: intType},
		},
	})
	require.NoError(t, cat.Finalize())
	return cat
}

// TestInstrumentationAdjacency checks that every write role is
// immediately preceded or followed by its characteristic read in the same
// transaction.
func TestInstrumentationAdjacency(t *testing.T) {
	cat := testCatalog(t)

	upd := &grammar.UpdateStmt{
		Table: "t0",
		Assignments: []*grammar.Assignment{
			{Column: "v", Expr: &grammar.ConstExpr{Type: "int", Literal: "1"}},
		},
		Where: &grammar.ComparisonOp{
			Symbol: "=",
			Left:   &grammar.ColumnReference{Relation: "t0", Column: "wkey", Type: "int"},
			Right:  &grammar.ConstExpr{Type: "int", Literal: "7"},
		},
	}
	planned := []*grammar.PlannedStmt{{Stmt: upd, Family: grammar.StmtUpdate, Tid: 0}}

	out, err := Instrument(cat, planned)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, BeforeWriteRead, out[0].Role)
	require.Equal(t, UpdateWrite, out[1].Role)
	require.Equal(t, AfterWriteRead, out[2].Role)
	require.Contains(t, out[2].Text, "wkey = 7")
}

func TestInstrumentInsertAfterReadUsesLiteralWkey(t *testing.T) {
	cat := testCatalog(t)
	ins := &grammar.InsertStmt{
		Table:   "t0",
		Columns: []string{"wkey", "write_op_id", "v"},
		Values: []grammar.ValueExpr{
			&grammar.ConstExpr{Type: "int", Literal: "3"},
			&grammar.ConstExpr{Type: "int", Literal: "0"},
			&grammar.ConstExpr{Type: "int", Literal: "9"},
		},
	}
	planned := []*grammar.PlannedStmt{{Stmt: ins, Family: grammar.StmtInsert, Tid: 1}}

	out, err := Instrument(cat, planned)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, InsertWrite, out[0].Role)
	require.Equal(t, AfterWriteRead, out[1].Role)
	require.Contains(t, out[1].Text, "wkey = 3")
}

func TestInstrumentDeleteHasNoAfterRead(t *testing.T) {
	cat := testCatalog(t)
	del := &grammar.DeleteStmt{Table: "t0"}
	planned := []*grammar.PlannedStmt{{Stmt: del, Family: grammar.StmtDelete, Tid: 0}}

	out, err := Instrument(cat, planned)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, BeforeWriteRead, out[0].Role)
	require.Equal(t, DeleteWrite, out[1].Role)
}

// TestRoleStatementCountInvariant checks that the count of
// write/select/init roles in the instrumented queue equals the number of
// original statements.
func TestRoleStatementCountInvariant(t *testing.T) {
	cat := testCatalog(t)
	planned := []*grammar.PlannedStmt{
		{Stmt: &grammar.DeleteStmt{Table: "t0"}, Family: grammar.StmtDelete, Tid: 0},
		{Stmt: &grammar.InsertStmt{Table: "t0", Columns: []string{"wkey"}, Values: []grammar.ValueExpr{&grammar.ConstExpr{Type: "int", Literal: "1"}}}, Family: grammar.StmtInsert, Tid: 0},
	}
	out, err := Instrument(cat, planned)
	require.NoError(t, err)

	count := 0
	for _, s := range out {
		switch s.Role {
		case UpdateWrite, InsertWrite, DeleteWrite, SelectRead, Init:
			count++
		}
	}
	require.Equal(t, len(planned), count)
}
