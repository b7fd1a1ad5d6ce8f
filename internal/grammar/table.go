package grammar

import (
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// TableOrQueryName is a bare reference to a registered base table or view.
type TableOrQueryName struct {
	Name    string
	Columns []string
}

func (t *TableOrQueryName) tableRef()             {}
func (t *TableOrQueryName) RelationAlias() string { return t.Name }
func (t *TableOrQueryName) Emit(w *strings.Builder) { w.WriteString(t.Name) }

func newTableOrQueryName(ctx *Context) (*TableOrQueryName, error) {
	tables := ctx.Scope.Catalog().Tables()
	if len(tables) == 0 {
		return nil, wrapTryAgain("table-or-query-name: catalog has no tables")
	}
	t := tables[ctx.Source.Dx(len(tables))-1]
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return &TableOrQueryName{Name: t.Name, Columns: names}, nil
}

// JoinType enumerates the supported join shapes.
type JoinType int

const (
	JoinCross JoinType = iota
	JoinInner
	JoinLeftOuter
)

// JoinedTable is a two-sided join, carrying a join condition for inner and
// left-outer joins (either a simple equi-join on compatibly typed columns,
// or an arbitrary boolean expression built in a scope that sees both
// sides).
type JoinedTable struct {
	Type      JoinType
	Left      TableRef
	Right     TableRef
	Condition BoolExpr // nil for JoinCross
}

func (j *JoinedTable) tableRef() {}
func (j *JoinedTable) RelationAlias() string {
	return j.Left.RelationAlias() + "_" + j.Right.RelationAlias()
}
func (j *JoinedTable) Emit(w *strings.Builder) {
	j.Left.Emit(w)
	switch j.Type {
	case JoinCross:
		w.WriteString(" CROSS JOIN ")
	case JoinInner:
		w.WriteString(" JOIN ")
	case JoinLeftOuter:
		w.WriteString(" LEFT OUTER JOIN ")
	}
	j.Right.Emit(w)
	if j.Condition != nil {
		w.WriteString(" ON ")
		j.Condition.Emit(w)
	}
}

func newJoinedTable(ctx *Context) (*JoinedTable, error) {
	left, err := NewTableRef(ctx)
	if err != nil {
		return nil, err
	}
	right, err := NewTableRef(ctx)
	if err != nil {
		return nil, err
	}

	jt := &JoinedTable{Left: left, Right: right, Type: JoinType(ctx.Source.Dx(3) - 1)}
	if jt.Type == JoinCross {
		return jt, nil
	}

	joinScope := ctx.Scope.Fork()
	for _, rel := range append(relationsFor(ctx, left), relationsFor(ctx, right)...) {
		joinScope.AddRelation(rel)
	}
	joinCtx := ctx.WithScope(joinScope)
	defer joinCtx.Push(KindJoinCondition)()

	if ctx.Source.Dx(2) == 1 {
		cond, err := equiJoinCondition(ctx, left, right)
		if err == nil {
			jt.Condition = cond
			return jt, nil
		}
	}
	cond, err := NewBoolExpr(joinCtx)
	if err != nil {
		return nil, err
	}
	jt.Condition = cond
	return jt, nil
}

// equiJoinCondition builds `left.col = right.col` over a pair of
// compatibly typed columns, chosen among the catalog's columns for each
// side's underlying table. It is only attempted for TableOrQueryName
// sides; any other shape falls back to the general boolean expression
// path above.
func equiJoinCondition(ctx *Context, left, right TableRef) (BoolExpr, error) {
	lt, lok := left.(*TableOrQueryName)
	rt, rok := right.(*TableOrQueryName)
	if !lok || !rok {
		return nil, wrapTryAgain("equi-join: sides must be base tables")
	}
	leftTable := findTable(ctx, lt.Name)
	rightTable := findTable(ctx, rt.Name)
	if leftTable == nil || rightTable == nil {
		return nil, wrapTryAgain("equi-join: table not found in catalog")
	}
	for _, lc := range leftTable.Columns {
		for _, rc := range rightTable.Columns {
			if lc.Type.Name == rc.Type.Name {
				return &ComparisonOp{
					Symbol: "=",
					Left:   &ColumnReference{Relation: lt.Name, Column: lc.Name, Type: lc.Type.Name},
					Right:  &ColumnReference{Relation: rt.Name, Column: rc.Name, Type: rc.Type.Name},
				}, nil
			}
		}
	}
	return nil, wrapTryAgain("equi-join: no compatibly typed column pair")
}

func findTable(ctx *Context, name string) *catalog.Table {
	for _, t := range ctx.Scope.Catalog().Tables() {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TableSubquery is `(subquery) AS alias`.
type TableSubquery struct {
	Alias string
	Query Query
}

func (t *TableSubquery) tableRef()             {}
func (t *TableSubquery) RelationAlias() string { return t.Alias }
func (t *TableSubquery) Emit(w *strings.Builder) {
	w.WriteByte('(')
	t.Query.Emit(w)
	w.WriteString(") AS ")
	w.WriteString(t.Alias)
}

// LateralSubquery is `LATERAL (subquery) AS alias`, whose body may
// reference columns from table references preceding it in the same
// FROM-clause.
type LateralSubquery struct {
	Alias string
	Query Query
}

func (l *LateralSubquery) tableRef()             {}
func (l *LateralSubquery) RelationAlias() string { return l.Alias }
func (l *LateralSubquery) Emit(w *strings.Builder) {
	w.WriteString("LATERAL (")
	l.Query.Emit(w)
	w.WriteString(") AS ")
	w.WriteString(l.Alias)
}

// TableSample is `table TABLESAMPLE BERNOULLI(pct)`.
type TableSample struct {
	Table   TableRef
	Percent int
}

func (t *TableSample) tableRef()             {}
func (t *TableSample) RelationAlias() string { return t.Table.RelationAlias() }
func (t *TableSample) Emit(w *strings.Builder) {
	t.Table.Emit(w)
	w.WriteString(" TABLESAMPLE BERNOULLI(")
	w.WriteString(itoa(t.Percent))
	w.WriteByte(')')
}

func newTableSample(ctx *Context) (*TableSample, error) {
	base, err := newTableOrQueryName(ctx)
	if err != nil {
		return nil, err
	}
	return &TableSample{Table: base, Percent: ctx.Source.Dx(100)}, nil
}

// subqueryTableFactory lets query.go install the query-spec constructor
// used by table-subquery and lateral-subquery, installed the same way as
// RegisterSubselectFactory to avoid a cycle.
var subqueryTableFactory func(*Context) (Query, string, error)

// RegisterSubqueryTableFactory installs the factory used by table-subquery
// and lateral-subquery; it returns the built query plus a fresh alias.
func RegisterSubqueryTableFactory(f func(*Context) (Query, string, error)) {
	subqueryTableFactory = f
}

// NewTableRef builds a table reference, weighting among the families.
func NewTableRef(ctx *Context) (TableRef, error) {
	defer ctx.ResetRetryBudget()()

	type attempt func(*Context) (TableRef, error)
	attempts := []attempt{
		func(c *Context) (TableRef, error) { return newTableOrQueryName(c) },
		func(c *Context) (TableRef, error) { return newJoinedTable(c) },
		func(c *Context) (TableRef, error) { return newTableSample(c) },
	}
	if subqueryTableFactory != nil {
		attempts = append(attempts,
			func(c *Context) (TableRef, error) {
				q, alias, err := subqueryTableFactory(c)
				if err != nil {
					return nil, err
				}
				return &TableSubquery{Alias: alias, Query: q}, nil
			},
			func(c *Context) (TableRef, error) {
				q, alias, err := subqueryTableFactory(c)
				if err != nil {
					return nil, err
				}
				return &LateralSubquery{Alias: alias, Query: q}, nil
			},
		)
	}

	weights := make([]int, len(attempts))
	for i := range weights {
		weights[i] = 1
	}
	weights[0] = 4 // favor plain table references

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
		lastErr = wrapTryAgain("table-ref: exhausted retry budget")
	}
	return nil, lastErr
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
