package grammar

import (
	"strconv"
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// SchemaStmt is the family interface for create-table, create-table-as-
// select, and alter-table: statements that, once executed against the
// DUT, also change what the generator's own catalog believes exists.
// ApplyToCatalog is called immediately after the statement is chosen, so
// every later production in the same run sees the new shape.
type SchemaStmt interface {
	Node
	ApplyToCatalog(cat *catalog.Catalog)
	schemaStmt()
}

func sqlTypeName(k catalog.Kind) string {
	switch k {
	case catalog.KindBool:
		return "BOOLEAN"
	case catalog.KindInt:
		return "INTEGER"
	case catalog.KindReal:
		return "DOUBLE"
	default:
		return "TEXT"
	}
}

// wkeyColumn is the designated primary-key column every generated base
// table carries as its first column; its value identifies a row across
// writes.
func wkeyColumn() *catalog.Column {
	return &catalog.Column{Name: "wkey", Type: &catalog.Type{Name: "int", Kind: catalog.KindInt}}
}

// writeOpIDColumn is the designated version column every generated base
// table carries as its second column, advanced on each write and used by
// the instrumentor/analyzer as the row's current version.
func writeOpIDColumn() *catalog.Column {
	return &catalog.Column{Name: "write_op_id", Type: &catalog.Type{Name: "int", Kind: catalog.KindInt}}
}

// CreateTableStmt is `CREATE TABLE name (wkey INTEGER PRIMARY KEY,
// write_op_id INTEGER, ...)`.
type CreateTableStmt struct {
	Name    string
	Columns []*catalog.Column // Columns[0] is wkey, Columns[1] is write_op_id
}

func (c *CreateTableStmt) schemaStmt() {}
func (c *CreateTableStmt) Emit(w *strings.Builder) {
	w.WriteString("CREATE TABLE ")
	w.WriteString(c.Name)
	w.WriteString(" (wkey INTEGER PRIMARY KEY, write_op_id INTEGER")
	for _, col := range c.Columns[2:] {
		w.WriteString(", ")
		w.WriteString(col.Name)
		w.WriteByte(' ')
		w.WriteString(sqlTypeName(col.Type.Kind))
	}
	w.WriteByte(')')
}

func (c *CreateTableStmt) ApplyToCatalog(cat *catalog.Catalog) {
	cat.RegisterTable(&catalog.Table{
		Name:         c.Name,
		IsBaseTable:  true,
		IsInsertable: true,
		Columns:      c.Columns,
	})
}

var scalarKinds = []catalog.Kind{catalog.KindBool, catalog.KindInt, catalog.KindReal, catalog.KindText}

func newCreateTableStmt(ctx *Context) (*CreateTableStmt, error) {
	name := ctx.Scope.NextID("t")
	n := 2 + ctx.Source.Dx(4)
	stmt := &CreateTableStmt{Name: name, Columns: []*catalog.Column{wkeyColumn(), writeOpIDColumn()}}
	for i := 0; i < n; i++ {
		kind := scalarKinds[ctx.Source.Dx(len(scalarKinds))-1]
		stmt.Columns = append(stmt.Columns, &catalog.Column{
			Name: "c" + strconv.Itoa(i+1),
			Type: &catalog.Type{Name: kindTypeName(kind), Kind: kind},
		})
	}
	return stmt, nil
}

func kindTypeName(k catalog.Kind) string {
	switch k {
	case catalog.KindBool:
		return "bool"
	case catalog.KindInt:
		return "int"
	case catalog.KindReal:
		return "real"
	default:
		return "text"
	}
}

// CreateTableAsSelectStmt is `CREATE TABLE name AS SELECT ...`.
type CreateTableAsSelectStmt struct {
	Name  string
	Query Query
}

func (c *CreateTableAsSelectStmt) schemaStmt() {}
func (c *CreateTableAsSelectStmt) Emit(w *strings.Builder) {
	w.WriteString("CREATE TABLE ")
	w.WriteString(c.Name)
	w.WriteString(" AS ")
	c.Query.Emit(w)
}

func (c *CreateTableAsSelectStmt) ApplyToCatalog(cat *catalog.Catalog) {
	p, ok := c.Query.(projector)
	if !ok {
		return
	}
	cat.RegisterTable(&catalog.Table{
		Name:         c.Name,
		IsBaseTable:  false,
		IsInsertable: false,
		Columns:      p.projection(),
	})
}

func newCreateTableAsSelectStmt(ctx *Context) (*CreateTableAsSelectStmt, error) {
	q, err := NewQuery(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := q.(projector); !ok {
		return nil, wrapTryAgain("create-table-as-select: query has no statically known projection")
	}
	return &CreateTableAsSelectStmt{Name: ctx.Scope.NextID("t"), Query: q}, nil
}

// AlterTableKind enumerates the supported alterations.
type AlterTableKind int

const (
	AlterRenameTable AlterTableKind = iota
	AlterRenameColumn
	AlterAddColumn
)

// AlterTableStmt is one `ALTER TABLE ...` statement.
type AlterTableStmt struct {
	Kind      AlterTableKind
	Table     string
	NewName   string         // AlterRenameTable, AlterRenameColumn
	OldColumn string         // AlterRenameColumn
	NewColumn *catalog.Column // AlterAddColumn
}

func (a *AlterTableStmt) schemaStmt() {}
func (a *AlterTableStmt) Emit(w *strings.Builder) {
	w.WriteString("ALTER TABLE ")
	w.WriteString(a.Table)
	switch a.Kind {
	case AlterRenameTable:
		w.WriteString(" RENAME TO ")
		w.WriteString(a.NewName)
	case AlterRenameColumn:
		w.WriteString(" RENAME COLUMN ")
		w.WriteString(a.OldColumn)
		w.WriteString(" TO ")
		w.WriteString(a.NewName)
	case AlterAddColumn:
		w.WriteString(" ADD COLUMN ")
		w.WriteString(a.NewColumn.Name)
		w.WriteByte(' ')
		w.WriteString(sqlTypeName(a.NewColumn.Type.Kind))
	}
}

func (a *AlterTableStmt) ApplyToCatalog(cat *catalog.Catalog) {
	var table *catalog.Table
	for _, t := range cat.Tables() {
		if t.Name == a.Table {
			table = t
			break
		}
	}
	if table == nil {
		return
	}
	switch a.Kind {
	case AlterRenameTable:
		table.Name = a.NewName
	case AlterRenameColumn:
		if col := table.ColumnNamed(a.OldColumn); col != nil {
			col.Name = a.NewName
		}
	case AlterAddColumn:
		table.Columns = append(table.Columns, a.NewColumn)
	}
}

func newAlterTableStmt(ctx *Context) (*AlterTableStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("alter-table: catalog has no base table")
	}
	switch AlterTableKind(ctx.Source.Dx(3) - 1) {
	case AlterRenameTable:
		return &AlterTableStmt{Kind: AlterRenameTable, Table: table.Name, NewName: ctx.Scope.NextID("t")}, nil
	case AlterRenameColumn:
		// Columns[0] and Columns[1] are wkey and write_op_id; both are
		// load-bearing for the analyzer and never renamed.
		if len(table.Columns) < 3 {
			return nil, wrapTryAgain("alter-table: no renameable column")
		}
		col := table.Columns[2+ctx.Source.Dx(len(table.Columns)-2)-1]
		return &AlterTableStmt{Kind: AlterRenameColumn, Table: table.Name, OldColumn: col.Name, NewName: ctx.Scope.NextID("c")}, nil
	default:
		kind := scalarKinds[ctx.Source.Dx(len(scalarKinds))-1]
		return &AlterTableStmt{
			Kind:      AlterAddColumn,
			Table:     table.Name,
			NewColumn: &catalog.Column{Name: ctx.Scope.NextID("c"), Type: &catalog.Type{Name: kindTypeName(kind), Kind: kind}},
		}, nil
	}
}

// NewSchemaStmt builds a schema-changing statement, weighting among the
// three families. create-table is the only option before the catalog has
// any base table to alter or select from.
func NewSchemaStmt(ctx *Context) (SchemaStmt, error) {
	defer ctx.ResetRetryBudget()()

	if len(ctx.Scope.Catalog().BaseTables()) == 0 {
		return newCreateTableStmt(ctx)
	}

	type attempt func(*Context) (SchemaStmt, error)
	attempts := []attempt{
		func(c *Context) (SchemaStmt, error) { return newCreateTableStmt(c) },
		func(c *Context) (SchemaStmt, error) { return newCreateTableAsSelectStmt(c) },
		func(c *Context) (SchemaStmt, error) { return newAlterTableStmt(c) },
	}
	weights := []int{3, 1, 1}

	var lastErr error
	for ctx.Retry() {
		choice := ctx.Source.Pick(weights)
		node, err := attempts[choice](ctx)
		if err == nil {
			return node, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = wrapTryAgain("schema-stmt: exhausted retry budget")
	}
	return nil, lastErr
}
