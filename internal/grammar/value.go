package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

// ConstExpr is a literal of a given type: a number, string, or boolean.
type ConstExpr struct {
	Type    string
	Literal string
}

func (c *ConstExpr) valueExpr()        {}
func (c *ConstExpr) ResultType() string { return c.Type }
func (c *ConstExpr) Emit(w *strings.Builder) { w.WriteString(c.Literal) }

func newConstExpr(ctx *Context, targetType string) (*ConstExpr, error) {
	switch targetType {
	case "bool":
		if ctx.Source.Dx(2) == 1 {
			return &ConstExpr{Type: "bool", Literal: "true"}, nil
		}
		return &ConstExpr{Type: "bool", Literal: "false"}, nil
	case "int":
		return &ConstExpr{Type: "int", Literal: strconv.Itoa(ctx.Source.Dx(1000) - 500)}, nil
	case "real":
		return &ConstExpr{Type: "real", Literal: fmt.Sprintf("%d.%d", ctx.Source.Dx(1000), ctx.Source.Dx(100))}, nil
	case "text":
		return &ConstExpr{Type: "text", Literal: "'" + ctx.Source.Ident("lit") + "'"}, nil
	default:
		return nil, wrapTryAgain("const-expr: unsupported literal type %q", targetType)
	}
}

// ColumnReference names a visible column, optionally qualified by its
// relation. Under an UPDATE's SET list it refuses any column already
// consumed by an earlier assignment in the same statement.
type ColumnReference struct {
	Relation string
	Column   string
	Type     string
}

func (c *ColumnReference) valueExpr()         {}
func (c *ColumnReference) ResultType() string { return c.Type }
func (c *ColumnReference) Emit(w *strings.Builder) {
	w.WriteString(c.Relation)
	w.WriteByte('.')
	w.WriteString(c.Column)
}

func newColumnReference(ctx *Context, targetType string) (*ColumnReference, error) {
	candidates := ctx.Scope.ColumnsOfType(targetType)
	var usable []*ColumnReference
	for _, c := range candidates {
		if ctx.InUpdateSetList() && ctx.SetColumnConsumed(c.Column.Name) {
			continue
		}
		usable = append(usable, &ColumnReference{Relation: c.Relation, Column: c.Column.Name, Type: c.Column.Type.Name})
	}
	if len(usable) == 0 {
		return nil, wrapTryAgain("column-reference: no visible column of type %q", targetType)
	}
	choice := usable[ctx.Source.Dx(len(usable))-1]
	if ctx.InUpdateSetList() {
		ctx.ConsumeSetColumn(choice.Column)
	}
	return choice, nil
}

// FuncCall invokes a registered routine with freshly generated arguments.
type FuncCall struct {
	Name string
	Type string
	Args []ValueExpr
}

func (f *FuncCall) valueExpr()         {}
func (f *FuncCall) ResultType() string { return f.Type }
func (f *FuncCall) Emit(w *strings.Builder) {
	w.WriteString(f.Name)
	w.WriteByte('(')
	for i, a := range f.Args {
		if i > 0 {
			w.WriteString(", ")
		}
		a.Emit(w)
	}
	w.WriteByte(')')
}

func newFuncCall(ctx *Context, targetType string) (*FuncCall, error) {
	routines := ctx.Scope.Catalog().RoutinesReturning(targetType)
	if len(routines) == 0 {
		return nil, wrapTryAgain("funcall: no routine returns %q", targetType)
	}
	r := routines[ctx.Source.Dx(len(routines))-1]
	fc := &FuncCall{Name: r.Name, Type: r.ResultType.Name}
	for _, argType := range r.ArgTypes {
		arg, err := NewValueExpr(ctx, argType.Name)
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, arg)
	}
	return fc, nil
}

// CaseExpr is a simple two-branch CASE WHEN <cond> THEN <a> ELSE <b> END.
type CaseExpr struct {
	Type      string
	Condition BoolExpr
	Then      ValueExpr
	Else      ValueExpr
}

func (c *CaseExpr) valueExpr()         {}
func (c *CaseExpr) ResultType() string { return c.Type }
func (c *CaseExpr) Emit(w *strings.Builder) {
	w.WriteString("CASE WHEN ")
	c.Condition.Emit(w)
	w.WriteString(" THEN ")
	c.Then.Emit(w)
	w.WriteString(" ELSE ")
	c.Else.Emit(w)
	w.WriteString(" END")
}

func newCaseExpr(ctx *Context, targetType string) (*CaseExpr, error) {
	cond, err := NewBoolExpr(ctx)
	if err != nil {
		return nil, err
	}
	then, err := NewValueExpr(ctx, targetType)
	if err != nil {
		return nil, err
	}
	els, err := NewValueExpr(ctx, targetType)
	if err != nil {
		return nil, err
	}
	return &CaseExpr{Type: targetType, Condition: cond, Then: then, Else: els}, nil
}

// CoalesceExpr is COALESCE(a, b) or NULLIF(a, b) depending on IsNullIf.
type CoalesceExpr struct {
	Type     string
	IsNullIf bool
	A, B     ValueExpr
}

func (c *CoalesceExpr) valueExpr()         {}
func (c *CoalesceExpr) ResultType() string { return c.Type }
func (c *CoalesceExpr) Emit(w *strings.Builder) {
	if c.IsNullIf {
		w.WriteString("NULLIF(")
	} else {
		w.WriteString("COALESCE(")
	}
	c.A.Emit(w)
	w.WriteString(", ")
	c.B.Emit(w)
	w.WriteByte(')')
}

func newCoalesceExpr(ctx *Context, targetType string) (*CoalesceExpr, error) {
	a, err := NewValueExpr(ctx, targetType)
	if err != nil {
		return nil, err
	}
	b, err := NewValueExpr(ctx, targetType)
	if err != nil {
		return nil, err
	}
	return &CoalesceExpr{Type: targetType, IsNullIf: ctx.Source.Dx(2) == 1, A: a, B: b}, nil
}

// BinOp applies a registered binary operator. When the operator's declared
// left and right types are the same but the two freshly built children
// disagree, the right child is rebuilt under the left child's type.
// Consistent is not consulted, and the left child is never rebuilt.
type BinOp struct {
	Symbol string
	Type   string
	Left   ValueExpr
	Right  ValueExpr
}

func (b *BinOp) valueExpr()         {}
func (b *BinOp) ResultType() string { return b.Type }
func (b *BinOp) Emit(w *strings.Builder) {
	w.WriteByte('(')
	b.Left.Emit(w)
	w.WriteByte(' ')
	w.WriteString(b.Symbol)
	w.WriteByte(' ')
	b.Right.Emit(w)
	w.WriteByte(')')
}

func newBinOp(ctx *Context, targetType string) (*BinOp, error) {
	ops := ctx.Scope.Catalog().OperatorsReturning(targetType)
	if len(ops) == 0 {
		return nil, wrapTryAgain("binop: no operator returns %q", targetType)
	}
	op := ops[ctx.Source.Dx(len(ops))-1]

	left, err := NewValueExpr(ctx, op.LeftType.Name)
	if err != nil {
		return nil, err
	}
	right, err := NewValueExpr(ctx, op.RightType.Name)
	if err != nil {
		return nil, err
	}
	if op.LeftType.Name == op.RightType.Name && left.ResultType() != right.ResultType() {
		// Declared operand types agree but the children disagree: rebuild
		// the right child under the left child's concrete type.
		rebuilt, rerr := NewValueExpr(ctx, left.ResultType())
		if rerr == nil {
			right = rebuilt
		}
	}
	return &BinOp{Symbol: op.Symbol, Type: op.ResultType.Name, Left: left, Right: right}, nil
}

// WindowFunction is a call to a registered window routine with an OVER ()
// clause. Allowed only when the construction context is nested inside a
// select-list within a query-spec, checked via Context.Enclosing.
type WindowFunction struct {
	Name string
	Type string
	Args []ValueExpr
}

func (wf *WindowFunction) valueExpr()         {}
func (wf *WindowFunction) ResultType() string { return wf.Type }
func (wf *WindowFunction) Emit(w *strings.Builder) {
	w.WriteString(wf.Name)
	w.WriteString("(")
	for i, a := range wf.Args {
		if i > 0 {
			w.WriteString(", ")
		}
		a.Emit(w)
	}
	w.WriteString(") OVER ()")
}

func windowFunctionAllowed(ctx *Context) bool {
	return ctx.Enclosing(KindSelectList) && ctx.Enclosing(KindQuerySpec)
}

func newWindowFunction(ctx *Context, targetType string) (*WindowFunction, error) {
	if !windowFunctionAllowed(ctx) {
		return nil, wrapTryAgain("window-function: not allowed outside select-list")
	}
	wins := ctx.Scope.Catalog().WindowsReturning(targetType)
	if len(wins) == 0 {
		return nil, wrapTryAgain("window-function: none returns %q", targetType)
	}
	r := wins[ctx.Source.Dx(len(wins))-1]
	wf := &WindowFunction{Name: r.Name, Type: r.ResultType.Name}
	for _, argType := range r.ArgTypes {
		arg, err := NewValueExpr(ctx, argType.Name)
		if err != nil {
			return nil, err
		}
		wf.Args = append(wf.Args, arg)
	}
	return wf, nil
}

// AtomicSubselect is a scalar sub-query: (SELECT col FROM ...) producing a
// single value of the target type.
type AtomicSubselect struct {
	Type  string
	Query Query
}

func (a *AtomicSubselect) valueExpr()         {}
func (a *AtomicSubselect) ResultType() string { return a.Type }
func (a *AtomicSubselect) Emit(w *strings.Builder) {
	w.WriteByte('(')
	a.Query.Emit(w)
	w.WriteByte(')')
}

// subselectFactory builds an AtomicSubselect; query.go installs it through
// RegisterSubselectFactory. When it is set, NewValueExpr offers it as one
// more family in its weighted pick.
var subselectFactory func(ctx *Context, targetType string) (ValueExpr, error)

// RegisterSubselectFactory lets query.go install the atomic-subselect
// constructor after both files are loaded, avoiding an import cycle
// between "value expression" and "query spec" productions that both this
// package owns.
func RegisterSubselectFactory(f func(ctx *Context, targetType string) (ValueExpr, error)) {
	subselectFactory = f
}

// NewValueExpr builds a value expression of the given target type,
// weighting among the families and backing off to another family when
// one's retry budget is exhausted.
func NewValueExpr(ctx *Context, targetType string) (ValueExpr, error) {
	defer ctx.ResetRetryBudget()()

	type attempt func(*Context, string) (ValueExpr, error)
	attempts := []attempt{
		func(c *Context, t string) (ValueExpr, error) { return newConstExpr(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newColumnReference(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newFuncCall(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newCaseExpr(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newCoalesceExpr(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newBinOp(c, t) },
		func(c *Context, t string) (ValueExpr, error) { return newWindowFunction(c, t) },
	}
	if subselectFactory != nil {
		attempts = append(attempts, subselectFactory)
	}

	weights := make([]int, len(attempts))
	for i := range weights {
		weights[i] = 1
	}
	weights[0] = 3 // favor constants so construction terminates quickly

	var lastErr error
	for ctx.Retry() {
		choice := ctx.Source.Pick(weights)
		node, err := attempts[choice](ctx, targetType)
		if err == nil {
			return node, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = wrapTryAgain("value-expr: exhausted retry budget for type %q", targetType)
	}
	return nil, lastErr
}
