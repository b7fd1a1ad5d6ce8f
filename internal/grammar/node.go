package grammar

import "strings"

// Node is satisfied by every production in the grammar. Nodes are built
// bottom-up, serialized to text once via Emit, and then dropped — no
// cross-statement references survive past one Emit call.
type Node interface {
	Emit(w *strings.Builder)
}

// Typed is satisfied by every production that carries a static result
// type, used by callers that need to propagate a type constraint through a
// child choice (e.g. a binop whose declared operand type disagrees with
// what a child actually produced).
type Typed interface {
	Node
	ResultType() string
}

// ValueExpr is the family interface for const-expr, column-reference,
// funcall, case-expr, coalesce/nullif, binop, window-function, and
// atomic-subselect.
type ValueExpr interface {
	Typed
	valueExpr()
}

// BoolExpr is the family interface for truth-value, comparison-op,
// bool-term, null-predicate, between-op, like-op, in-op, comp-subquery,
// exists-predicate, and distinct-pred.
type BoolExpr interface {
	Node
	boolExpr()
}

// TableRef is the family interface for table-or-query-name, joined-table,
// table-subquery, lateral-subquery, and table-sample.
type TableRef interface {
	Node
	// RelationAlias is the name under which this table reference's columns
	// become visible to an enclosing scope.
	RelationAlias() string
	tableRef()
}

// ModifyingStmt is the family interface for insert, delete, update, upsert,
// and merge.
type ModifyingStmt interface {
	Node
	// TargetTable returns the base table this statement writes to.
	TargetTable() string
	modifyingStmt()
}

// Query is the family interface for a top-level or nested SELECT (query
// spec, possibly preceded by a CTE list).
type Query interface {
	Node
	query()
}

// Emit renders n to a string in one pass.
func Emit(n Node) string {
	var b strings.Builder
	n.Emit(&b)
	return b.String()
}
