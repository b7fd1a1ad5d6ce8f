package depgraph

import "github.com/txnfuzz/txnfuzz/internal/instrument"

// TxnStatus is the terminal state of one transaction in the history.
type TxnStatus int

const (
	StatusCommitted TxnStatus = iota
	StatusAborted
)

// TxnInf is the synthetic transaction id standing for the database's
// initial content, always ordered before every real transaction and never
// a node in an anomaly predicate's graph.
const TxnInf = -1

// StmtOutput is one statement's observed outcome in ACTUAL execution
// order (the order internal/scheduler recorded, not the planned tid
// queue). Rows is nil for a write that returned no result set; reads
// (select-read, before/after-write-read, version-set-read) carry the rows
// they observed.
type StmtOutput struct {
	Tid    int
	Role   instrument.Role
	Target string
	Rows   []Row
}

// Row is one observed result row, keyed by column name. Mirrors
// internal/dut.Row without importing that package, so depgraph stays
// usable from a reproducer that never opens a live DUT.
type Row map[string]any

// Input is everything Build needs to reconstruct a history and its
// dependency graph.
type Input struct {
	// InitialContent is the database's content at test start, table name
	// to ordered rows, treated as having come from TxnInf with stmt index
	// -1 and role AfterWriteRead.
	InitialContent map[string][]Row
	// Stmts is every executed statement in actual order.
	Stmts []StmtOutput
	// TxnStatus maps each real transaction id to its terminal status.
	TxnStatus map[int]TxnStatus
	// WkeyColumn and VersionColumn name the designated primary-key and
	// version columns (default "wkey"/"write_op_id" when empty).
	WkeyColumn    string
	VersionColumn string
}

// EdgeLabel is one kind of dependency an edge between two transactions
// (or, for Inner/Instrument, two statements) can carry. An edge is a set
// of labels, never a single one.
type EdgeLabel int

const (
	WriteRead EdgeLabel = iota
	WriteWrite
	ReadWrite
	VersionSet
	Overwrite
	Start
	StrictStart
	Inner
	Instrumentation
)

func (l EdgeLabel) String() string {
	switch l {
	case WriteRead:
		return "write-read"
	case WriteWrite:
		return "write-write"
	case ReadWrite:
		return "read-write"
	case VersionSet:
		return "version-set"
	case Overwrite:
		return "overwrite"
	case Start:
		return "start"
	case StrictStart:
		return "strict-start"
	case Inner:
		return "inner"
	case Instrumentation:
		return "instrument"
	default:
		return "unknown"
	}
}

// edgeKey identifies a directed edge i -> j.
type edgeKey struct{ from, to int }

// LabelSet is the set of labels attached to one edge.
type LabelSet map[EdgeLabel]bool

// Has reports whether l is a member of s (nil-safe).
func (s LabelSet) Has(l EdgeLabel) bool { return s != nil && s[l] }

// Graph is the dependency graph Build reconstructs: a transaction-level
// edge set (used by the anomaly predicates) and a statement-level edge
// set (used by the minimizer's longest-path/topo-sort queries).
type Graph struct {
	TxnEdges  map[edgeKey]LabelSet
	StmtEdges map[edgeKey]LabelSet

	TxnStatus map[int]TxnStatus
	NumStmts  int
}

func newGraph() *Graph {
	return &Graph{
		TxnEdges:  map[edgeKey]LabelSet{},
		StmtEdges: map[edgeKey]LabelSet{},
		TxnStatus: map[int]TxnStatus{},
	}
}

func (g *Graph) addTxnEdge(from, to int, label EdgeLabel) {
	if from == to {
		return
	}
	k := edgeKey{from, to}
	if g.TxnEdges[k] == nil {
		g.TxnEdges[k] = LabelSet{}
	}
	g.TxnEdges[k][label] = true
}

func (g *Graph) addStmtEdge(from, to int, label EdgeLabel) {
	if from == to {
		return
	}
	k := edgeKey{from, to}
	if g.StmtEdges[k] == nil {
		g.StmtEdges[k] = LabelSet{}
	}
	g.StmtEdges[k][label] = true
}

// CommittedTxns returns every real (non-TxnInf) transaction id whose
// status is StatusCommitted, the node set the anomaly predicates operate
// over unless documented otherwise.
func (g *Graph) CommittedTxns() []int {
	var out []int
	for tid, st := range g.TxnStatus {
		if st == StatusCommitted {
			out = append(out, tid)
		}
	}
	return out
}

// TxnEdgesWithAny returns the subgraph (as an adjacency set) containing
// only edges that carry at least one of the given labels.
func (g *Graph) TxnEdgesWithAny(labels ...EdgeLabel) map[edgeKey]bool {
	out := map[edgeKey]bool{}
	for k, ls := range g.TxnEdges {
		for _, l := range labels {
			if ls.Has(l) {
				out[k] = true
				break
			}
		}
	}
	return out
}
