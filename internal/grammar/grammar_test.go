package grammar

import (
	"strings"
	"testing"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/randsrc"
	"github.com/txnfuzz/txnfuzz/internal/scope"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	intType := c.TypeNamed("int")
	textType := c.TypeNamed("text")
	realType := c.TypeNamed("real")
	boolType := c.TypeNamed("bool")

	c.RegisterTable(&catalog.Table{
		Name:         "widgets",
		IsBaseTable:  true,
		IsInsertable: true,
		Columns: []*catalog.Column{
			{Name: "wkey", Type: intType},
			{Name: "write_op_id", Type: intType},
			{Name: "name", Type: textType},
			{Name: "price", Type: realType},
			{Name: "active", Type: boolType},
		},
	})
	c.RegisterTable(&catalog.Table{
		Name:         "orders",
		IsBaseTable:  true,
		IsInsertable: true,
		Columns: []*catalog.Column{
			{Name: "wkey", Type: intType},
			{Name: "write_op_id", Type: intType},
			{Name: "qty", Type: intType},
		},
	})
	c.RegisterOperator(&catalog.Operator{Symbol: "+", LeftType: intType, RightType: intType, ResultType: intType})
	c.RegisterRoutine(&catalog.Routine{Name: "abs", ResultType: intType, ArgTypes: []*catalog.Type{intType}, Kind: catalog.RoutineFunction})

	if err := c.Finalize(); err != nil {
		t.Fatal(err)
	}
	return c
}

func testContext(t *testing.T, seed uint64) *Context {
	t.Helper()
	cat := testCatalog(t)
	s := scope.New(cat)
	src := randsrc.NewSeedSource(seed)
	return NewContext(s, src)
}

func TestValueExprWellTyped(t *testing.T) {
	for _, target := range []string{"bool", "int", "real", "text"} {
		ctx := testContext(t, 1)
		expr, err := NewValueExpr(ctx, target)
		if err != nil {
			t.Fatalf("NewValueExpr(%q): %v", target, err)
		}
		if expr.ResultType() != target {
			t.Fatalf("ResultType() = %q, want %q", expr.ResultType(), target)
		}
		if Emit(expr) == "" {
			t.Fatal("Emit produced empty SQL")
		}
	}
}

func TestBoolExprEmitsNonEmpty(t *testing.T) {
	ctx := testContext(t, 2)
	expr, err := NewBoolExpr(ctx)
	if err != nil {
		t.Fatalf("NewBoolExpr: %v", err)
	}
	if Emit(expr) == "" {
		t.Fatal("Emit produced empty SQL")
	}
}

func TestNewTableRefProducesKnownRelation(t *testing.T) {
	ctx := testContext(t, 3)
	ref, err := NewTableRef(ctx)
	if err != nil {
		t.Fatalf("NewTableRef: %v", err)
	}
	if ref.RelationAlias() == "" {
		t.Fatal("RelationAlias() is empty")
	}
}

func TestQuerySpecEmitsSelect(t *testing.T) {
	ctx := testContext(t, 4)
	q, err := NewQuery(ctx)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	sql := Emit(q)
	if !strings.HasPrefix(sql, "SELECT") {
		t.Fatalf("Emit(q) = %q, want a SELECT", sql)
	}
}

func TestTopLevelStmtCreatesTableWhenCatalogEmpty(t *testing.T) {
	cat := catalog.New()
	if err := cat.Finalize(); err != nil {
		t.Fatal(err)
	}
	s := scope.New(cat)
	ctx := NewContext(s, randsrc.NewSeedSource(5))

	planned, err := NewTopLevelStmt(ctx, 1)
	if err != nil {
		t.Fatalf("NewTopLevelStmt: %v", err)
	}
	if planned.Family != StmtSchema {
		t.Fatalf("Family = %v, want StmtSchema when catalog has no tables", planned.Family)
	}
	if !strings.HasPrefix(Emit(planned), "CREATE TABLE") {
		t.Fatalf("Emit(planned) = %q, want CREATE TABLE", Emit(planned))
	}
}

func TestTopLevelStmtTidRoundTrips(t *testing.T) {
	ctx := testContext(t, 6)
	planned, err := NewTopLevelStmt(ctx, 42)
	if err != nil {
		t.Fatalf("NewTopLevelStmt: %v", err)
	}
	if planned.Tid != 42 {
		t.Fatalf("Tid = %d, want 42", planned.Tid)
	}
}

func TestInsertStmtCoversEveryColumn(t *testing.T) {
	ctx := testContext(t, 7)
	ins, err := newInsertStmt(ctx)
	if err != nil {
		t.Fatalf("newInsertStmt: %v", err)
	}
	table := findTable(ctx, ins.Table)
	if table == nil {
		t.Fatalf("insert targets unknown table %q", ins.Table)
	}
	if len(ins.Columns) != len(table.Columns) {
		t.Fatalf("len(Columns) = %d, want %d (every column of %s)", len(ins.Columns), len(table.Columns), ins.Table)
	}
	if len(ins.Columns) != len(ins.Values) {
		t.Fatal("Columns and Values must have equal length")
	}
}

func TestUpdateSetListNeverAssignsSameColumnTwice(t *testing.T) {
	ctx := testContext(t, 8)
	upd, err := newUpdateStmt(ctx)
	if err != nil {
		t.Fatalf("newUpdateStmt: %v", err)
	}
	seen := map[string]bool{}
	for _, a := range upd.Assignments {
		if seen[a.Column] {
			t.Fatalf("column %q assigned twice in one SET list", a.Column)
		}
		seen[a.Column] = true
	}
}

func TestWindowFunctionRejectedOutsideSelectList(t *testing.T) {
	ctx := testContext(t, 9)
	if _, err := newWindowFunction(ctx, "int"); err == nil {
		t.Fatal("expected window-function to be rejected outside a select-list")
	}
}

func TestInOpForbiddenInsideCheckConstraint(t *testing.T) {
	ctx := testContext(t, 10)
	defer ctx.EnterCheckConstraint()()
	if _, err := newInOp(ctx); err == nil {
		t.Fatal("expected in-op to be rejected inside a CHECK constraint")
	}
}

func TestExistsPredicateForbiddenInsideCheckConstraint(t *testing.T) {
	ctx := testContext(t, 11)
	defer ctx.EnterCheckConstraint()()
	if _, err := newExistsPredicate(ctx, existsSubqueryFactory); err == nil {
		t.Fatal("expected exists-predicate to be rejected inside a CHECK constraint")
	}
}

func TestSchemaStmtRegistersNewTable(t *testing.T) {
	ctx := testContext(t, 12)
	before := len(ctx.Scope.Catalog().Tables())
	stmt, err := newCreateTableStmt(ctx)
	if err != nil {
		t.Fatalf("newCreateTableStmt: %v", err)
	}
	stmt.ApplyToCatalog(ctx.Scope.Catalog())
	if len(ctx.Scope.Catalog().Tables()) != before+1 {
		t.Fatal("ApplyToCatalog did not register the new table")
	}
	if stmt.Columns[0].Name != "wkey" {
		t.Fatalf("Columns[0].Name = %q, want wkey", stmt.Columns[0].Name)
	}
}

func TestDeleteAndMergeTargetTable(t *testing.T) {
	ctx := testContext(t, 13)
	del, err := newDeleteStmt(ctx)
	if err != nil {
		t.Fatalf("newDeleteStmt: %v", err)
	}
	if del.TargetTable() == "" {
		t.Fatal("TargetTable() is empty")
	}

	ctx2 := testContext(t, 14)
	merge, err := newMergeStmt(ctx2)
	if err != nil {
		t.Fatalf("newMergeStmt: %v", err)
	}
	if len(merge.Whens) == 0 {
		t.Fatal("merge statement must carry at least one WHEN clause")
	}
}
