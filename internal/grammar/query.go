package grammar

import (
	"strconv"
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/scope"
)

func init() {
	RegisterSubselectFactory(newAtomicSubselect)
	RegisterExistsSubqueryFactory(newSubqueryForPredicate)
	RegisterSubqueryTableFactory(newSubqueryForTableRef)
}

// SelectItem is one projected expression, optionally aliased.
type SelectItem struct {
	Expr  ValueExpr
	Alias string
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr ValueExpr
	Desc bool
}

// QuerySpec is a single `SELECT ... FROM ... WHERE ... [GROUP BY ...]
// [ORDER BY ... [LIMIT n]]`.
type QuerySpec struct {
	Distinct   bool
	SelectList []*SelectItem
	From       TableRef // nil for a FROM-less "SELECT <exprs>"
	Where      BoolExpr
	GroupBy    []ValueExpr
	OrderBy    []*OrderItem
	Limit      *int
}

func (q *QuerySpec) query() {}

func (q *QuerySpec) Emit(w *strings.Builder) {
	w.WriteString("SELECT ")
	if q.Distinct {
		w.WriteString("DISTINCT ")
	}
	for i, item := range q.SelectList {
		if i > 0 {
			w.WriteString(", ")
		}
		item.Expr.Emit(w)
		if item.Alias != "" {
			w.WriteString(" AS ")
			w.WriteString(item.Alias)
		}
	}
	if q.From != nil {
		w.WriteString(" FROM ")
		q.From.Emit(w)
	}
	if q.Where != nil {
		w.WriteString(" WHERE ")
		q.Where.Emit(w)
	}
	if len(q.GroupBy) > 0 {
		w.WriteString(" GROUP BY ")
		for i, g := range q.GroupBy {
			if i > 0 {
				w.WriteString(", ")
			}
			g.Emit(w)
		}
	}
	if len(q.OrderBy) > 0 {
		w.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				w.WriteString(", ")
			}
			o.Expr.Emit(w)
			if o.Desc {
				w.WriteString(" DESC")
			}
		}
	}
	if q.Limit != nil {
		w.WriteString(" LIMIT ")
		w.WriteString(strconv.Itoa(*q.Limit))
	}
}

// projection reports the synthetic columns a nested scope sees when this
// query is used as a table-subquery or lateral-subquery's relation.
func (q *QuerySpec) projection() []*catalog.Column {
	out := make([]*catalog.Column, 0, len(q.SelectList))
	for i, item := range q.SelectList {
		name := item.Alias
		if name == "" {
			name = "col_" + strconv.Itoa(i+1)
		}
		out = append(out, &catalog.Column{Name: name, Type: &catalog.Type{Name: item.Expr.ResultType(), Kind: kindForTypeName(item.Expr.ResultType())}})
	}
	return out
}

// kindForTypeName returns the coarse Kind for one of the four well-known
// scalar type names, defaulting to KindText for anything else (matching
// the reflection path's fallback for exotic/enum column types).
func kindForTypeName(name string) catalog.Kind {
	switch name {
	case "bool":
		return catalog.KindBool
	case "int":
		return catalog.KindInt
	case "real":
		return catalog.KindReal
	default:
		return catalog.KindText
	}
}

// projector is implemented by any Query whose projected columns can seed a
// nested scope (currently only *QuerySpec; a CTE-wrapped query delegates to
// its own main query in cte.go).
type projector interface {
	projection() []*catalog.Column
}

func visibleScalarTypeNamesFromCatalog(cat *catalog.Catalog) []string {
	var out []string
	for _, t := range cat.Types() {
		switch t.Kind {
		case catalog.KindBool, catalog.KindInt, catalog.KindReal, catalog.KindText:
			out = append(out, t.Name)
		}
	}
	return out
}

// relationsFor flattens a table reference into the relation(s) it
// contributes to an enclosing scope.
func relationsFor(ctx *Context, tr TableRef) []*scope.Relation {
	switch t := tr.(type) {
	case *TableOrQueryName:
		table := findTable(ctx, t.Name)
		if table == nil {
			return nil
		}
		return []*scope.Relation{{Alias: t.Name, Table: table, Columns: table.Columns}}
	case *JoinedTable:
		return append(relationsFor(ctx, t.Left), relationsFor(ctx, t.Right)...)
	case *TableSample:
		return relationsFor(ctx, t.Table)
	case *TableSubquery:
		if p, ok := t.Query.(projector); ok {
			return []*scope.Relation{{Alias: t.Alias, Columns: p.projection()}}
		}
	case *LateralSubquery:
		if p, ok := t.Query.(projector); ok {
			return []*scope.Relation{{Alias: t.Alias, Columns: p.projection()}}
		}
	}
	return nil
}

func scopeForQuery(ctx *Context, from TableRef) *scope.Scope {
	s := ctx.Scope.Fork()
	for _, rel := range relationsFor(ctx, from) {
		s.AddRelation(rel)
	}
	return s
}

func newSelectItem(ctx *Context, idx int) (*SelectItem, error) {
	types := visibleScalarTypeNamesFromCatalog(ctx.Scope.Catalog())
	if len(types) == 0 {
		return nil, wrapTryAgain("select-item: catalog has no scalar types")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	expr, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	return &SelectItem{Expr: expr, Alias: "col_" + strconv.Itoa(idx)}, nil
}

// newQuerySpec builds one SELECT. It always pushes KindQuerySpec so nested
// window functions and select-list-only constructs (like a bare subquery
// comparison) can check their ancestry via Context.Enclosing.
func newQuerySpec(ctx *Context) (*QuerySpec, error) {
	defer ctx.Push(KindQuerySpec)()

	q := &QuerySpec{Distinct: ctx.Source.Dx(4) == 1}

	var from TableRef
	if ctx.Source.Dx(5) != 1 {
		var err error
		from, err = NewTableRef(ctx)
		if err != nil {
			return nil, err
		}
	}
	q.From = from

	bodyScope := scopeForQuery(ctx, from)
	bodyCtx := ctx.WithScope(bodyScope)

	n := ctx.Source.Dx(3)
	func() {
		defer bodyCtx.Push(KindSelectList)()
		for i := 0; i < n; i++ {
			item, err := newSelectItem(bodyCtx, i+1)
			if err != nil {
				continue
			}
			q.SelectList = append(q.SelectList, item)
		}
	}()
	if len(q.SelectList) == 0 {
		return nil, wrapTryAgain("query-spec: could not build a non-empty select-list")
	}

	if from != nil && ctx.Source.Dx(2) == 1 {
		func() {
			defer bodyCtx.Push(KindWhereClause)()
			where, err := NewBoolExpr(bodyCtx)
			if err == nil {
				q.Where = where
			}
		}()
	}

	if from != nil && ctx.Source.Dx(3) == 1 {
		func() {
			defer bodyCtx.Push(KindGroupBy)()
			gn := ctx.Source.Dx(2)
			for i := 0; i < gn; i++ {
				g, err := NewValueExpr(bodyCtx, q.SelectList[0].Expr.ResultType())
				if err != nil {
					break
				}
				q.GroupBy = append(q.GroupBy, g)
			}
		}()
	}

	if ctx.Source.Dx(3) == 1 {
		on := ctx.Source.Dx(2)
		for i := 0; i < on; i++ {
			o, err := NewValueExpr(bodyCtx, q.SelectList[0].Expr.ResultType())
			if err != nil {
				break
			}
			q.OrderBy = append(q.OrderBy, &OrderItem{Expr: o, Desc: ctx.Source.Dx(2) == 1})
		}
		// LIMIT is forbidden directly inside an IN sub-query; it is
		// otherwise allowed.
		if len(q.OrderBy) > 0 && !ctx.InInClause() {
			limit := ctx.Source.Dx(50)
			q.Limit = &limit
		}
	}

	return q, nil
}

// NewQuery is the top-level query-spec factory, exported for cte.go and the
// statement-level productions.
func NewQuery(ctx *Context) (Query, error) {
	defer ctx.ResetRetryBudget()()
	var lastErr error
	for ctx.Retry() {
		q, err := newQuerySpec(ctx)
		if err == nil {
			return q, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = wrapTryAgain("query: exhausted retry budget")
	}
	return nil, lastErr
}

// newAtomicSubselect builds a scalar sub-query producing a single column of
// targetType, correlated against ctx's current scope.
func newAtomicSubselect(ctx *Context, targetType string) (ValueExpr, error) {
	q, err := newCorrelatedScalarQuery(ctx, targetType)
	if err != nil {
		return nil, err
	}
	return &AtomicSubselect{Type: targetType, Query: q}, nil
}

// newSubqueryForPredicate builds the sub-query used by exists-predicate and
// comp-subquery: a single-column projection of an arbitrary visible scalar
// type, correlated against ctx's current scope.
func newSubqueryForPredicate(ctx *Context) (Query, error) {
	types := visibleScalarTypeNamesFromCatalog(ctx.Scope.Catalog())
	if len(types) == 0 {
		return nil, wrapTryAgain("subquery: catalog has no scalar types")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	return newCorrelatedScalarQuery(ctx, t)
}

func newCorrelatedScalarQuery(ctx *Context, targetType string) (Query, error) {
	sub := ctx.WithScope(ctx.Scope.Fork())
	defer sub.Push(KindQuerySpec)()

	table, err := NewTableRef(sub)
	if err != nil {
		return nil, err
	}
	innerScope := scopeForQuery(sub, table)
	innerCtx := sub.WithScope(innerScope)

	expr, err := NewValueExpr(innerCtx, targetType)
	if err != nil {
		return nil, err
	}
	q := &QuerySpec{From: table, SelectList: []*SelectItem{{Expr: expr, Alias: "v"}}}
	if !ctx.InInClause() {
		limit := 1
		q.Limit = &limit
	}
	return q, nil
}

// newSubqueryForTableRef builds the query behind a table-subquery or
// lateral-subquery, plus a fresh alias for it.
func newSubqueryForTableRef(ctx *Context) (Query, string, error) {
	q, err := NewQuery(ctx)
	if err != nil {
		return nil, "", err
	}
	return q, ctx.Scope.NextID("subq"), nil
}
