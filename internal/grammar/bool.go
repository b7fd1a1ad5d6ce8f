package grammar

import "strings"

// TruthValue is a bare boolean-typed value expression used as a predicate.
type TruthValue struct{ Expr ValueExpr }

func (t *TruthValue) boolExpr() {}
func (t *TruthValue) Emit(w *strings.Builder) { t.Expr.Emit(w) }

func newTruthValue(ctx *Context) (*TruthValue, error) {
	e, err := NewValueExpr(ctx, "bool")
	if err != nil {
		return nil, err
	}
	return &TruthValue{Expr: e}, nil
}

// ComparisonOp compares two value expressions of a shared type.
type ComparisonOp struct {
	Symbol string
	Left   ValueExpr
	Right  ValueExpr
}

func (c *ComparisonOp) boolExpr() {}
func (c *ComparisonOp) Emit(w *strings.Builder) {
	w.WriteByte('(')
	c.Left.Emit(w)
	w.WriteByte(' ')
	w.WriteString(c.Symbol)
	w.WriteByte(' ')
	c.Right.Emit(w)
	w.WriteByte(')')
}

var comparisonSymbols = []string{"=", "<>", "<", "<=", ">", ">="}

func newComparisonOp(ctx *Context) (*ComparisonOp, error) {
	typeNames := visibleScalarTypeNames(ctx)
	if len(typeNames) == 0 {
		return nil, wrapTryAgain("comparison-op: no scalar type in scope")
	}
	t := typeNames[ctx.Source.Dx(len(typeNames))-1]
	left, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	right, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	symbol := comparisonSymbols[ctx.Source.Dx(len(comparisonSymbols))-1]
	return &ComparisonOp{Symbol: symbol, Left: left, Right: right}, nil
}

func visibleScalarTypeNames(ctx *Context) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range ctx.Scope.Columns() {
		if !seen[c.Column.Type.Name] {
			seen[c.Column.Type.Name] = true
			out = append(out, c.Column.Type.Name)
		}
	}
	return out
}

// BoolTerm combines two boolean expressions with AND or OR.
type BoolTerm struct {
	IsAnd bool
	Left  BoolExpr
	Right BoolExpr
}

func (b *BoolTerm) boolExpr() {}
func (b *BoolTerm) Emit(w *strings.Builder) {
	w.WriteByte('(')
	b.Left.Emit(w)
	if b.IsAnd {
		w.WriteString(" AND ")
	} else {
		w.WriteString(" OR ")
	}
	b.Right.Emit(w)
	w.WriteByte(')')
}

func newBoolTerm(ctx *Context) (*BoolTerm, error) {
	left, err := NewBoolExpr(ctx)
	if err != nil {
		return nil, err
	}
	right, err := NewBoolExpr(ctx)
	if err != nil {
		return nil, err
	}
	return &BoolTerm{IsAnd: ctx.Source.Dx(2) == 1, Left: left, Right: right}, nil
}

// NullPredicate is `expr IS [NOT] NULL`.
type NullPredicate struct {
	Expr   ValueExpr
	IsNull bool
}

func (n *NullPredicate) boolExpr() {}
func (n *NullPredicate) Emit(w *strings.Builder) {
	n.Expr.Emit(w)
	if n.IsNull {
		w.WriteString(" IS NULL")
	} else {
		w.WriteString(" IS NOT NULL")
	}
}

func newNullPredicate(ctx *Context) (*NullPredicate, error) {
	types := visibleScalarTypeNames(ctx)
	if len(types) == 0 {
		return nil, wrapTryAgain("null-predicate: no scalar type in scope")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	e, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	return &NullPredicate{Expr: e, IsNull: ctx.Source.Dx(2) == 1}, nil
}

// BetweenOp is `expr BETWEEN low AND high` over a shared type.
type BetweenOp struct {
	Expr, Low, High ValueExpr
}

func (b *BetweenOp) boolExpr() {}
func (b *BetweenOp) Emit(w *strings.Builder) {
	b.Expr.Emit(w)
	w.WriteString(" BETWEEN ")
	b.Low.Emit(w)
	w.WriteString(" AND ")
	b.High.Emit(w)
}

func newBetweenOp(ctx *Context) (*BetweenOp, error) {
	types := visibleScalarTypeNames(ctx)
	if len(types) == 0 {
		return nil, wrapTryAgain("between-op: no scalar type in scope")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	expr, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	low, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	high, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	return &BetweenOp{Expr: expr, Low: low, High: high}, nil
}

// LikeOp is `expr LIKE pattern` over text.
type LikeOp struct{ Expr, Pattern ValueExpr }

func (l *LikeOp) boolExpr() {}
func (l *LikeOp) Emit(w *strings.Builder) {
	l.Expr.Emit(w)
	w.WriteString(" LIKE ")
	l.Pattern.Emit(w)
}

func newLikeOp(ctx *Context) (*LikeOp, error) {
	expr, err := NewValueExpr(ctx, "text")
	if err != nil {
		return nil, err
	}
	pattern, err := NewValueExpr(ctx, "text")
	if err != nil {
		return nil, err
	}
	return &LikeOp{Expr: expr, Pattern: pattern}, nil
}

// InOp is `expr IN (v1, v2, ...)`. Forbidden inside a CHECK constraint;
// LIMIT is forbidden inside the list this production builds (enforced by
// its sub-expressions, not by InOp itself — InOp only needs to set
// InInClause on its context before recursing).
type InOp struct {
	Expr ValueExpr
	List []ValueExpr
}

func (i *InOp) boolExpr() {}
func (i *InOp) Emit(w *strings.Builder) {
	i.Expr.Emit(w)
	w.WriteString(" IN (")
	for idx, v := range i.List {
		if idx > 0 {
			w.WriteString(", ")
		}
		v.Emit(w)
	}
	w.WriteByte(')')
}

func newInOp(ctx *Context) (*InOp, error) {
	if ctx.InCheckConstraint() {
		return nil, wrapTryAgain("in-op: forbidden inside CHECK constraint")
	}
	types := visibleScalarTypeNames(ctx)
	if len(types) == 0 {
		return nil, wrapTryAgain("in-op: no scalar type in scope")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	expr, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	defer ctx.EnterInClause()()
	n := ctx.Source.Dx(4)
	list := make([]ValueExpr, 0, n)
	for k := 0; k < n; k++ {
		v, err := NewValueExpr(ctx, t)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return &InOp{Expr: expr, List: list}, nil
}

// CompSubquery is `expr op ALL|ANY (subquery)`.
type CompSubquery struct {
	Symbol string
	IsAll  bool
	Expr   ValueExpr
	Query  Query
}

func (c *CompSubquery) boolExpr() {}
func (c *CompSubquery) Emit(w *strings.Builder) {
	c.Expr.Emit(w)
	w.WriteByte(' ')
	w.WriteString(c.Symbol)
	if c.IsAll {
		w.WriteString(" ALL (")
	} else {
		w.WriteString(" ANY (")
	}
	c.Query.Emit(w)
	w.WriteByte(')')
}

func newCompSubquery(ctx *Context, subquery func(*Context) (Query, error)) (*CompSubquery, error) {
	if subquery == nil {
		return nil, wrapTryAgain("comp-subquery: no sub-query factory installed")
	}
	types := visibleScalarTypeNames(ctx)
	if len(types) == 0 {
		return nil, wrapTryAgain("comp-subquery: no scalar type in scope")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	expr, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	q, err := subquery(ctx)
	if err != nil {
		return nil, err
	}
	symbol := comparisonSymbols[ctx.Source.Dx(len(comparisonSymbols))-1]
	return &CompSubquery{Symbol: symbol, IsAll: ctx.Source.Dx(2) == 1, Expr: expr, Query: q}, nil
}

// ExistsPredicate is `[NOT] EXISTS (subquery)`. Forbidden inside a CHECK
// constraint.
type ExistsPredicate struct {
	Negated bool
	Query   Query
}

func (e *ExistsPredicate) boolExpr() {}
func (e *ExistsPredicate) Emit(w *strings.Builder) {
	if e.Negated {
		w.WriteString("NOT ")
	}
	w.WriteString("EXISTS (")
	e.Query.Emit(w)
	w.WriteByte(')')
}

func newExistsPredicate(ctx *Context, subquery func(*Context) (Query, error)) (*ExistsPredicate, error) {
	if ctx.InCheckConstraint() {
		return nil, wrapTryAgain("exists-predicate: forbidden inside CHECK constraint")
	}
	if subquery == nil {
		return nil, wrapTryAgain("exists-predicate: no sub-query factory installed")
	}
	q, err := subquery(ctx)
	if err != nil {
		return nil, err
	}
	return &ExistsPredicate{Negated: ctx.Source.Dx(2) == 1, Query: q}, nil
}

// DistinctPred is `a IS [NOT] DISTINCT FROM b` over a shared type.
type DistinctPred struct {
	Negated bool
	A, B    ValueExpr
}

func (d *DistinctPred) boolExpr() {}
func (d *DistinctPred) Emit(w *strings.Builder) {
	d.A.Emit(w)
	w.WriteString(" IS ")
	if d.Negated {
		w.WriteString("NOT ")
	}
	w.WriteString("DISTINCT FROM ")
	d.B.Emit(w)
}

func newDistinctPred(ctx *Context) (*DistinctPred, error) {
	types := visibleScalarTypeNames(ctx)
	if len(types) == 0 {
		return nil, wrapTryAgain("distinct-pred: no scalar type in scope")
	}
	t := types[ctx.Source.Dx(len(types))-1]
	a, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	b, err := NewValueExpr(ctx, t)
	if err != nil {
		return nil, err
	}
	return &DistinctPred{Negated: ctx.Source.Dx(2) == 1, A: a, B: b}, nil
}

// existsSubqueryFactory lets query.go install the sub-query
// constructor after both files are loaded, avoiding an import
// cycle the way RegisterSubselectFactory does for value expressions.
var existsSubqueryFactory func(*Context) (Query, error)

// RegisterExistsSubqueryFactory installs the query-spec constructor used
// by exists-predicate and comp-subquery.
func RegisterExistsSubqueryFactory(f func(*Context) (Query, error)) {
	existsSubqueryFactory = f
}

// NewBoolExpr builds a boolean expression, weighting among the families.
func NewBoolExpr(ctx *Context) (BoolExpr, error) {
	defer ctx.ResetRetryBudget()()

	type attempt func(*Context) (BoolExpr, error)
	attempts := []attempt{
		func(c *Context) (BoolExpr, error) { return newTruthValue(c) },
		func(c *Context) (BoolExpr, error) { return newComparisonOp(c) },
		func(c *Context) (BoolExpr, error) { return newBoolTerm(c) },
		func(c *Context) (BoolExpr, error) { return newNullPredicate(c) },
		func(c *Context) (BoolExpr, error) { return newBetweenOp(c) },
		func(c *Context) (BoolExpr, error) { return newLikeOp(c) },
		func(c *Context) (BoolExpr, error) { return newInOp(c) },
		func(c *Context) (BoolExpr, error) { return newExistsPredicate(c, existsSubqueryFactory) },
		func(c *Context) (BoolExpr, error) { return newDistinctPred(c) },
		func(c *Context) (BoolExpr, error) { return newCompSubquery(c, existsSubqueryFactory) },
	}
	weights := make([]int, len(attempts))
	for i := range weights {
		weights[i] = 1
	}
	weights[0] = 3
	weights[1] = 3

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
		lastErr = wrapTryAgain("bool-expr: exhausted retry budget")
	}
	return nil, lastErr
}
