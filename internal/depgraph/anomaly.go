package depgraph

import "github.com/txnfuzz/txnfuzz/internal/instrument"

// Violation names one anomaly instance: the predicate that fired and the
// transactions (and, where meaningful, the row) involved.
type Violation struct {
	Predicate string
	Txns      []int
	RowID     int64
	Detail    string
}

// Detect runs every Adya-style predicate against g and hist, returning
// every violation found. An empty result means the run's
// observed history is consistent with serializability (G1a/G1b/G1c/G2-item)
// and, additionally, with snapshot isolation (GSIa/GSIb).
func Detect(g *Graph, hist RowHistory) []Violation {
	var out []Violation
	out = append(out, detectG1a(g, hist)...)
	out = append(out, detectG1b(hist)...)
	out = append(out, cycleViolation("G1c", g, committedOnly(g, edgeSetAsBool(g.TxnEdges, WriteRead, WriteWrite)))...)
	out = append(out, cycleViolation("G2-item", g, committedOnly(g, edgeSetAsBool(g.TxnEdges, WriteRead, WriteWrite, ReadWrite)))...)
	out = append(out, detectGSIa(g)...)
	out = append(out, detectGSIb(g)...)
	return out
}

// detectG1a finds a committed transaction reading a row version whose
// writer aborted: an AfterWriteRead by an aborted Tid whose hash is later
// observed by a read belonging to a committed Tid.
func detectG1a(g *Graph, hist RowHistory) []Violation {
	var out []Violation
	for rowID, ops := range hist {
		var abortedWrites []*OperateUnit
		for _, op := range ops {
			if op.Role == instrument.AfterWriteRead && op.Tid != TxnInf && g.TxnStatus[op.Tid] == StatusAborted {
				abortedWrites = append(abortedWrites, op)
			}
			if op.Role == instrument.AfterWriteRead {
				continue
			}
			if g.TxnStatus[op.Tid] != StatusCommitted {
				continue
			}
			for _, w := range abortedWrites {
				if w.Hash == op.Hash {
					out = append(out, Violation{
						Predicate: "G1a",
						Txns:      []int{w.Tid, op.Tid},
						RowID:     rowID,
						Detail:    "committed transaction read a value written by an aborted transaction",
					})
				}
			}
		}
	}
	return out
}

// detectG1b finds a committed transaction reading an intermediate (not
// final) version a same-row writer produced before its own later write to
// that same row.
func detectG1b(hist RowHistory) []Violation {
	var out []Violation
	for rowID, ops := range hist {
		// writesByTid[tid] is every AfterWriteRead this tid made to the row,
		// in order; the last entry is that writer's final version.
		writesByTid := map[int][]*OperateUnit{}
		for _, op := range ops {
			if op.Role == instrument.AfterWriteRead && op.Tid != TxnInf {
				writesByTid[op.Tid] = append(writesByTid[op.Tid], op)
			}
		}
		for _, op := range ops {
			if op.Role == instrument.AfterWriteRead {
				continue
			}
			for writerTid, writes := range writesByTid {
				if writerTid == op.Tid || len(writes) < 2 {
					continue
				}
				final := writes[len(writes)-1]
				for _, w := range writes[:len(writes)-1] {
					if w.Hash == op.Hash && op.Hash != final.Hash {
						out = append(out, Violation{
							Predicate: "G1b",
							Txns:      []int{writerTid, op.Tid},
							RowID:     rowID,
							Detail:    "read an intermediate version instead of the writer's final version",
						})
					}
				}
			}
		}
	}
	return out
}

// detectGSIa finds any WW or WR edge between two committed transactions
// that has no accompanying Start edge in the same direction — a pair the
// scheduler let race without the temporal ordering snapshot isolation
// would have guaranteed.
func detectGSIa(g *Graph) []Violation {
	var out []Violation
	for k, ls := range g.TxnEdges {
		if k.from == TxnInf || k.to == TxnInf {
			continue
		}
		if g.TxnStatus[k.from] != StatusCommitted || g.TxnStatus[k.to] != StatusCommitted {
			continue
		}
		if (ls.Has(WriteWrite) || ls.Has(WriteRead)) && !ls.Has(Start) {
			out = append(out, Violation{
				Predicate: "GSIa",
				Txns:      []int{k.from, k.to},
				Detail:    "WW/WR edge with no accompanying start edge",
			})
		}
	}
	return out
}

// detectGSIb finds a cycle over WW ∪ WR ∪ RW ∪ StrictStart edges among
// committed transactions that uses exactly one RW (anti-dependency) edge.
func detectGSIb(g *Graph) []Violation {
	edges := committedOnly(g, edgeSetAsBool(g.TxnEdges, WriteWrite, WriteRead, ReadWrite, StrictStart))
	members := Reduce(committedNodes(g, edges), edges)
	if len(members) == 0 {
		return nil
	}
	rwCount := 0
	for k, ls := range g.TxnEdges {
		if !inSet(members, k.from) || !inSet(members, k.to) {
			continue
		}
		if ls.Has(ReadWrite) {
			rwCount++
		}
	}
	if rwCount != 1 {
		return nil
	}
	return []Violation{{Predicate: "GSIb", Txns: members, Detail: "snapshot-isolation dependency cycle with exactly one anti-dependency edge"}}
}

func cycleViolation(name string, g *Graph, edges map[edgeKey]bool) []Violation {
	members := Reduce(committedNodes(g, edges), edges)
	if len(members) == 0 {
		return nil
	}
	return []Violation{{Predicate: name, Txns: members, Detail: "dependency cycle"}}
}

func inSet(members []int, n int) bool {
	for _, m := range members {
		if m == n {
			return true
		}
	}
	return false
}

// committedOnly restricts edges to those whose endpoints are both
// committed transactions.
func committedOnly(g *Graph, edges map[edgeKey]bool) map[edgeKey]bool {
	out := map[edgeKey]bool{}
	for k := range edges {
		if g.TxnStatus[k.from] == StatusCommitted && g.TxnStatus[k.to] == StatusCommitted {
			out[k] = true
		}
	}
	return out
}

// committedNodes returns every committed transaction id, whether or not
// edges touches it; Reduce strips the untouched ones in its first pass.
func committedNodes(g *Graph, edges map[edgeKey]bool) []int {
	set := map[int]bool{}
	for _, tid := range g.CommittedTxns() {
		set[tid] = true
	}
	var out []int
	for n := range set {
		out = append(out, n)
	}
	return out
}
