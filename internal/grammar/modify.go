package grammar

import (
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/scope"
)

// Assignment is one `column = expr` pair in an UPDATE SET list or a MERGE
// matched-update action.
type Assignment struct {
	Column string
	Expr   ValueExpr
}

func emitAssignments(w *strings.Builder, as []*Assignment) {
	for i, a := range as {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(a.Column)
		w.WriteString(" = ")
		a.Expr.Emit(w)
	}
}

// scopeWithoutTarget forks a modifying statement's construction context so
// that predicate and value sub-expressions see every other table but not
// the row currently being written, preventing a generated read from
// silently aliasing the row this statement is about to mutate.
func scopeWithoutTarget(ctx *Context, table string) *Context {
	return ctx.WithScope(ctx.Scope.WithoutRelation(table))
}

func tableForInsert(ctx *Context) *catalog.Table {
	tables := ctx.Scope.Catalog().BaseTables()
	if len(tables) == 0 {
		return nil
	}
	return tables[ctx.Source.Dx(len(tables))-1]
}

// InsertStmt is `INSERT INTO table (cols) VALUES (...)`.
type InsertStmt struct {
	Table   string
	Columns []string
	Values  []ValueExpr
}

func (i *InsertStmt) modifyingStmt()      {}
func (i *InsertStmt) TargetTable() string { return i.Table }
func (i *InsertStmt) Emit(w *strings.Builder) {
	w.WriteString("INSERT INTO ")
	w.WriteString(i.Table)
	w.WriteString(" (")
	w.WriteString(strings.Join(i.Columns, ", "))
	w.WriteString(") VALUES (")
	for idx, v := range i.Values {
		if idx > 0 {
			w.WriteString(", ")
		}
		v.Emit(w)
	}
	w.WriteByte(')')
}

func newInsertStmt(ctx *Context) (*InsertStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("insert: catalog has no base table")
	}
	valueCtx := scopeWithoutTarget(ctx, table.Name)
	ins := &InsertStmt{Table: table.Name}
	for _, col := range table.Columns {
		v, err := NewValueExpr(valueCtx, col.Type.Name)
		if err != nil {
			return nil, err
		}
		ins.Columns = append(ins.Columns, col.Name)
		ins.Values = append(ins.Values, v)
	}
	return ins, nil
}

// DeleteStmt is `DELETE FROM table WHERE ...`.
type DeleteStmt struct {
	Table string
	Where BoolExpr
}

func (d *DeleteStmt) modifyingStmt()      {}
func (d *DeleteStmt) TargetTable() string { return d.Table }
func (d *DeleteStmt) Emit(w *strings.Builder) {
	w.WriteString("DELETE FROM ")
	w.WriteString(d.Table)
	if d.Where != nil {
		w.WriteString(" WHERE ")
		d.Where.Emit(w)
	}
}

func newDeleteStmt(ctx *Context) (*DeleteStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("delete: catalog has no base table")
	}
	predCtx := scopeWithoutTarget(ctx, table.Name)
	del := &DeleteStmt{Table: table.Name}
	if ctx.Source.Dx(5) != 1 {
		where, err := NewBoolExpr(predCtx)
		if err != nil {
			return nil, err
		}
		del.Where = where
	}
	return del, nil
}

// UpdateStmt is `UPDATE table SET a = ..., b = ... WHERE ...`.
type UpdateStmt struct {
	Table       string
	Assignments []*Assignment
	Where       BoolExpr
}

func (u *UpdateStmt) modifyingStmt()      {}
func (u *UpdateStmt) TargetTable() string { return u.Table }
func (u *UpdateStmt) Emit(w *strings.Builder) {
	w.WriteString("UPDATE ")
	w.WriteString(u.Table)
	w.WriteString(" SET ")
	emitAssignments(w, u.Assignments)
	if u.Where != nil {
		w.WriteString(" WHERE ")
		u.Where.Emit(w)
	}
}

// writeOpIDBump is `write_op_id = write_op_id + 1`, forced into every SET
// list so the version column genuinely advances on each write.
func writeOpIDBump(table *catalog.Table) *Assignment {
	return &Assignment{
		Column: "write_op_id",
		Expr: &BinOp{
			Symbol: "+",
			Type:   "int",
			Left:   &ColumnReference{Relation: table.Name, Column: "write_op_id", Type: "int"},
			Right:  &ConstExpr{Type: "int", Literal: "1"},
		},
	}
}

func newSetList(ctx *Context, table *catalog.Table) ([]*Assignment, error) {
	defer ctx.EnterUpdateSetList()()
	out := []*Assignment{writeOpIDBump(table)}
	ctx.ConsumeSetColumn("write_op_id")
	// wkey identifies a row across writes; assigning it would detach the
	// row from its own history.
	ctx.ConsumeSetColumn("wkey")

	n := 1 + ctx.Source.Dx(len(table.Columns))
	if n > len(table.Columns) {
		n = len(table.Columns)
	}
	for i := 0; i < n; i++ {
		col := table.Columns[ctx.Source.Dx(len(table.Columns))-1]
		if ctx.SetColumnConsumed(col.Name) {
			continue
		}
		v, err := NewValueExpr(ctx, col.Type.Name)
		if err != nil {
			continue
		}
		ctx.ConsumeSetColumn(col.Name)
		out = append(out, &Assignment{Column: col.Name, Expr: v})
	}
	return out, nil
}

func newUpdateStmt(ctx *Context) (*UpdateStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("update: catalog has no base table")
	}
	workCtx := scopeWithoutTarget(ctx, table.Name)
	assignments, err := newSetList(workCtx, table)
	if err != nil {
		return nil, err
	}
	upd := &UpdateStmt{Table: table.Name, Assignments: assignments}
	if ctx.Source.Dx(4) != 1 {
		where, err := NewBoolExpr(workCtx)
		if err != nil {
			return nil, err
		}
		upd.Where = where
	}
	return upd, nil
}

// UpsertStmt is `INSERT INTO table (cols) VALUES (...) ON CONFLICT
// (conflict cols) DO UPDATE SET ...`.
type UpsertStmt struct {
	Table           string
	Columns         []string
	Values          []ValueExpr
	ConflictColumns []string
	Assignments     []*Assignment
}

func (u *UpsertStmt) modifyingStmt()      {}
func (u *UpsertStmt) TargetTable() string { return u.Table }
func (u *UpsertStmt) Emit(w *strings.Builder) {
	w.WriteString("INSERT INTO ")
	w.WriteString(u.Table)
	w.WriteString(" (")
	w.WriteString(strings.Join(u.Columns, ", "))
	w.WriteString(") VALUES (")
	for i, v := range u.Values {
		if i > 0 {
			w.WriteString(", ")
		}
		v.Emit(w)
	}
	w.WriteString(") ON CONFLICT (")
	w.WriteString(strings.Join(u.ConflictColumns, ", "))
	w.WriteString(") DO UPDATE SET ")
	emitAssignments(w, u.Assignments)
}

func newUpsertStmt(ctx *Context) (*UpsertStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("upsert: catalog has no base table")
	}
	valueCtx := scopeWithoutTarget(ctx, table.Name)
	up := &UpsertStmt{Table: table.Name, ConflictColumns: []string{table.Columns[0].Name}}
	for _, col := range table.Columns {
		v, err := NewValueExpr(valueCtx, col.Type.Name)
		if err != nil {
			return nil, err
		}
		up.Columns = append(up.Columns, col.Name)
		up.Values = append(up.Values, v)
	}
	assignments, err := newSetList(valueCtx, table)
	if err != nil {
		return nil, err
	}
	up.Assignments = assignments
	return up, nil
}

// MergeWhenKind enumerates the three WHEN-clause actions a MergeWhen may
// carry.
type MergeWhenKind int

const (
	MergeMatchedDoNothing MergeWhenKind = iota
	MergeMatchedUpdate
	MergeNotMatchedInsert
)

// MergeWhen is one `WHEN [NOT] MATCHED THEN ...` clause.
type MergeWhen struct {
	Kind        MergeWhenKind
	Assignments []*Assignment // MergeMatchedUpdate only
	Columns     []string      // MergeNotMatchedInsert only
	Values      []ValueExpr   // MergeNotMatchedInsert only
}

func (m *MergeWhen) emit(w *strings.Builder) {
	switch m.Kind {
	case MergeMatchedDoNothing:
		w.WriteString("WHEN MATCHED THEN DO NOTHING")
	case MergeMatchedUpdate:
		w.WriteString("WHEN MATCHED THEN UPDATE SET ")
		emitAssignments(w, m.Assignments)
	case MergeNotMatchedInsert:
		w.WriteString("WHEN NOT MATCHED THEN INSERT (")
		w.WriteString(strings.Join(m.Columns, ", "))
		w.WriteString(") VALUES (")
		for i, v := range m.Values {
			if i > 0 {
				w.WriteString(", ")
			}
			v.Emit(w)
		}
		w.WriteByte(')')
	}
}

// MergeStmt is `MERGE INTO target USING source ON cond <when>+`, requiring
// at least one WHEN clause.
type MergeStmt struct {
	Target TableOrQueryName
	Source TableRef
	On     BoolExpr
	Whens  []*MergeWhen
}

func (m *MergeStmt) modifyingStmt()      {}
func (m *MergeStmt) TargetTable() string { return m.Target.Name }
func (m *MergeStmt) Emit(w *strings.Builder) {
	w.WriteString("MERGE INTO ")
	w.WriteString(m.Target.Name)
	w.WriteString(" USING ")
	m.Source.Emit(w)
	w.WriteString(" ON ")
	m.On.Emit(w)
	for _, when := range m.Whens {
		w.WriteByte(' ')
		when.emit(w)
	}
}

func newMergeStmt(ctx *Context) (*MergeStmt, error) {
	table := tableForInsert(ctx)
	if table == nil {
		return nil, wrapTryAgain("merge: catalog has no base table")
	}
	target := TableOrQueryName{Name: table.Name}
	for _, c := range table.Columns {
		target.Columns = append(target.Columns, c.Name)
	}

	workCtx := scopeWithoutTarget(ctx, table.Name)
	source, err := NewTableRef(workCtx)
	if err != nil {
		return nil, err
	}

	joinScope := workCtx.Scope.Fork()
	for _, rel := range relationsFor(workCtx, source) {
		joinScope.AddRelation(rel)
	}
	joinScope.AddRelation(&scope.Relation{Alias: table.Name, Table: table, Columns: table.Columns})
	condCtx := workCtx.WithScope(joinScope)
	defer condCtx.Push(KindJoinCondition)()
	on, err := NewBoolExpr(condCtx)
	if err != nil {
		return nil, err
	}

	m := &MergeStmt{Target: target, Source: source, On: on}
	kinds := []MergeWhenKind{MergeMatchedDoNothing, MergeMatchedUpdate, MergeNotMatchedInsert}
	for _, k := range kinds {
		if ctx.Source.Dx(2) != 1 {
			continue
		}
		when, err := newMergeWhen(ctx, table, k)
		if err != nil {
			continue
		}
		m.Whens = append(m.Whens, when)
	}
	if len(m.Whens) == 0 {
		when, err := newMergeWhen(ctx, table, MergeMatchedDoNothing)
		if err != nil {
			return nil, err
		}
		m.Whens = append(m.Whens, when)
	}
	return m, nil
}

func newMergeWhen(ctx *Context, table *catalog.Table, kind MergeWhenKind) (*MergeWhen, error) {
	switch kind {
	case MergeMatchedDoNothing:
		return &MergeWhen{Kind: kind}, nil
	case MergeMatchedUpdate:
		assignments, err := newSetList(ctx, table)
		if err != nil {
			return nil, err
		}
		return &MergeWhen{Kind: kind, Assignments: assignments}, nil
	default:
		when := &MergeWhen{Kind: kind}
		for _, col := range table.Columns {
			v, err := NewValueExpr(ctx, col.Type.Name)
			if err != nil {
				return nil, err
			}
			when.Columns = append(when.Columns, col.Name)
			when.Values = append(when.Values, v)
		}
		return when, nil
	}
}
