package grammar

import "strings"

// StmtFamily classifies a top-level statement for the instrumentation pass,
// which needs to know whether a statement reads, writes, or changes schema
// before it can decide what micro-sequence to rewrite it into.
type StmtFamily int

const (
	StmtSelect StmtFamily = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtUpsert
	StmtMerge
	StmtSchema
)

func (f StmtFamily) String() string {
	switch f {
	case StmtSelect:
		return "select"
	case StmtInsert:
		return "insert"
	case StmtUpdate:
		return "update"
	case StmtDelete:
		return "delete"
	case StmtUpsert:
		return "upsert"
	case StmtMerge:
		return "merge"
	case StmtSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// PlannedStmt pairs one generated statement with the transaction it was
// generated for, the unit the scheduler and instrumentor both consume.
type PlannedStmt struct {
	Stmt   Node
	Family StmtFamily
	Tid    int
}

func (p *PlannedStmt) Emit(w *strings.Builder) { p.Stmt.Emit(w) }

type topLevelAttempt struct {
	family StmtFamily
	build  func(*Context) (Node, error)
	weight int
}

var topLevelAttempts = []topLevelAttempt{
	{StmtSelect, func(c *Context) (Node, error) { return NewQueryWithCTEs(c) }, 4},
	{StmtInsert, func(c *Context) (Node, error) { return newInsertStmt(c) }, 3},
	{StmtUpdate, func(c *Context) (Node, error) { return newUpdateStmt(c) }, 3},
	{StmtDelete, func(c *Context) (Node, error) { return newDeleteStmt(c) }, 2},
	{StmtUpsert, func(c *Context) (Node, error) { return newUpsertStmt(c) }, 1},
	{StmtMerge, func(c *Context) (Node, error) { return newMergeStmt(c) }, 1},
	{StmtSchema, func(c *Context) (Node, error) { return NewSchemaStmt(c) }, 1},
}

// NewTopLevelStmt builds one statement for transaction tid, weighting among
// every statement family the catalog currently supports. Before any base
// table exists the only legal choice is table creation, so generation can
// start from an empty catalog.
func NewTopLevelStmt(ctx *Context, tid int) (*PlannedStmt, error) {
	defer ctx.ResetRetryBudget()()

	if len(ctx.Scope.Catalog().BaseTables()) == 0 {
		stmt, err := newCreateTableStmt(ctx)
		if err != nil {
			return nil, err
		}
		return &PlannedStmt{Stmt: stmt, Family: StmtSchema, Tid: tid}, nil
	}

	weights := make([]int, len(topLevelAttempts))
	for i, a := range topLevelAttempts {
		weights[i] = a.weight
	}

	var lastErr error
	for ctx.Retry() {
		choice := topLevelAttempts[ctx.Source.Pick(weights)]
		node, err := choice.build(ctx)
		if err == nil {
			return &PlannedStmt{Stmt: node, Family: choice.family, Tid: tid}, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = wrapTryAgain("top-level-stmt: exhausted retry budget")
	}
	return nil, lastErr
}
