package depgraph

import "github.com/txnfuzz/txnfuzz/internal/instrument"

// deriveRowEdges walks every row's operate-unit list in observed order and
// derives the WR, RW, and WW transaction-level (and, where both ends have
// a real statement index, statement-level) edges.
func deriveRowEdges(g *Graph, hist RowHistory) {
	for _, ops := range hist {
		writesByHash := map[uint64][]*OperateUnit{}

		for _, op := range ops {
			if op.Role != instrument.AfterWriteRead {
				// WR: a non-after-write-read read whose hash matches an
				// earlier after-write-read.
				if ws := writesByHash[op.Hash]; len(ws) > 0 {
					w := ws[len(ws)-1]
					g.addTxnEdge(w.Tid, op.Tid, WriteRead)
					if w.StmtIdx >= 0 && op.StmtIdx >= 0 {
						g.addStmtEdge(w.StmtIdx, op.StmtIdx, WriteRead)
					}
				}
			}

			if op.Role == instrument.BeforeWriteRead {
				// RW: every select-read/after-write-read whose version
				// matches this before-write-read's version.
				for _, other := range ops {
					if other == op {
						continue
					}
					if other.Role != instrument.SelectRead && other.Role != instrument.AfterWriteRead {
						continue
					}
					if other.WriteOpID == op.WriteOpID {
						g.addTxnEdge(other.Tid, op.Tid, ReadWrite)
						if other.StmtIdx >= 0 && op.StmtIdx >= 0 {
							g.addStmtEdge(other.StmtIdx, op.StmtIdx, ReadWrite)
						}
					}
				}
				// WW: nearest earlier after-write-read with the same
				// hash is this row's previous writer.
				if ws := writesByHash[op.Hash]; len(ws) > 0 {
					lastWrite := ws[len(ws)-1]
					g.addTxnEdge(lastWrite.Tid, op.Tid, WriteWrite)
					if lastWrite.StmtIdx >= 0 && op.StmtIdx >= 0 {
						g.addStmtEdge(lastWrite.StmtIdx, op.StmtIdx, WriteWrite)
					}
				}
			}

			if op.Role == instrument.AfterWriteRead {
				writesByHash[op.Hash] = append(writesByHash[op.Hash], op)
			}
		}
	}
}

// txnSpan is a transaction's footprint in actual-order statement indices,
// used to derive Start/StrictStart edges from temporal non-overlap alone.
type txnSpan struct {
	tid          int
	firstIdx     int // index of the very first statement, including a trivial begin
	firstRealIdx int // index of the first non-trivial statement
	lastIdx      int
}

func txnSpans(stmts []StmtOutput) map[int]*txnSpan {
	spans := map[int]*txnSpan{}
	for idx, s := range stmts {
		sp := spans[s.Tid]
		if sp == nil {
			sp = &txnSpan{tid: s.Tid, firstIdx: idx, firstRealIdx: -1, lastIdx: idx}
			spans[s.Tid] = sp
		}
		sp.lastIdx = idx
		if s.Role != instrument.Init && sp.firstRealIdx < 0 {
			sp.firstRealIdx = idx
		}
	}
	for _, sp := range spans {
		if sp.firstRealIdx < 0 {
			sp.firstRealIdx = sp.firstIdx
		}
	}
	return spans
}

// deriveStartEdges adds Start/StrictStart transaction edges purely from
// temporal non-overlap of transaction spans, independent of any data
// observation.
func deriveStartEdges(g *Graph, spans map[int]*txnSpan) {
	for _, i := range spans {
		for _, j := range spans {
			if i.tid == j.tid {
				continue
			}
			if i.lastIdx < j.firstRealIdx {
				g.addTxnEdge(i.tid, j.tid, Start)
			}
			if i.lastIdx < j.firstIdx {
				g.addTxnEdge(i.tid, j.tid, StrictStart)
			}
		}
	}
}

// writeEvent is one write statement paired with the row snapshot observed
// by its adjacent instrumentation read, used to build the
// version-set/overwrite rules.
type writeEvent struct {
	tid     int
	idx     int
	target  string
	role    instrument.Role // InsertWrite/UpdateWrite/DeleteWrite
	rows    []Row           // after-write-read rows for insert/update, before-write-read rows for delete
	withVer bool            // true when rows carry a meaningful version column (insert/update)
}

// collectWriteEvents pairs each write statement with the row set of its
// neighboring before/after-write-read, which the instrumentor guarantees
// is adjacent.
func collectWriteEvents(stmts []StmtOutput) []writeEvent {
	var out []writeEvent
	for idx, s := range stmts {
		switch s.Role {
		case instrument.InsertWrite, instrument.UpdateWrite:
			var rows []Row
			if idx+1 < len(stmts) && stmts[idx+1].Role == instrument.AfterWriteRead && stmts[idx+1].Tid == s.Tid {
				rows = stmts[idx+1].Rows
			}
			out = append(out, writeEvent{tid: s.Tid, idx: idx, target: s.Target, role: s.Role, rows: rows, withVer: true})
		case instrument.DeleteWrite:
			var rows []Row
			if idx > 0 && stmts[idx-1].Role == instrument.BeforeWriteRead && stmts[idx-1].Tid == s.Tid {
				rows = stmts[idx-1].Rows
			}
			out = append(out, writeEvent{tid: s.Tid, idx: idx, target: s.Target, role: s.Role, rows: rows})
		}
	}
	return out
}

func rowKeySet(rows []Row, wkeyCol, versionCol string, withVersion bool) map[[2]int64]bool {
	set := map[[2]int64]bool{}
	for _, r := range rows {
		rowID, ok := intColumn(r, wkeyCol)
		if !ok {
			continue
		}
		var ver int64
		if withVersion {
			ver, _ = intColumn(r, versionCol)
		}
		set[[2]int64{rowID, ver}] = true
	}
	return set
}

func rowIDSet(rows []Row, wkeyCol string) map[int64]bool {
	set := map[int64]bool{}
	for _, r := range rows {
		if rowID, ok := intColumn(r, wkeyCol); ok {
			set[rowID] = true
		}
	}
	return set
}

// deriveVersionSetAndOverwrite implements the version-set and overwrite
// dependency rules: a version-set-read V in transaction i depends on (or
// is depended on by) another transaction j's write to the same table when
// their observed row sets intersect. The row-id/version set is built
// completely before the intersection test runs.
func deriveVersionSetAndOverwrite(g *Graph, stmts []StmtOutput, wkeyCol, versionCol string) {
	writes := collectWriteEvents(stmts)

	for vIdx, v := range stmts {
		if v.Role != instrument.VersionSetRead {
			continue
		}
		vSetVer := rowKeySet(v.Rows, wkeyCol, versionCol, true)
		vSetID := rowIDSet(v.Rows, wkeyCol)

		for _, w := range writes {
			if w.tid == v.Tid || w.target != v.Target {
				continue
			}

			var intersects bool
			if w.withVer {
				wSet := rowKeySet(w.rows, wkeyCol, versionCol, true)
				for k := range wSet {
					if vSetVer[k] {
						intersects = true
						break
					}
				}
			} else {
				wSet := rowIDSet(w.rows, wkeyCol)
				for k := range wSet {
					if vSetID[k] {
						intersects = true
						break
					}
				}
			}
			if !intersects {
				continue
			}

			if w.idx < vIdx {
				// j's write is visible to i's version-set-read: VERSION_SET,
				// skipped when the pair is already strict-start-ordered.
				k1, k2 := edgeKey{w.tid, v.Tid}, edgeKey{v.Tid, w.tid}
				if g.TxnEdges[k1].Has(StrictStart) || g.TxnEdges[k2].Has(StrictStart) {
					continue
				}
				g.addTxnEdge(w.tid, v.Tid, VersionSet)
			} else {
				// V's rows reappear in a later write: OVERWRITE, i -> j.
				g.addTxnEdge(v.Tid, w.tid, Overwrite)
			}
		}
	}
}

// deriveInnerAndInstrumentEdges adds statement-level Inner edges chaining
// each transaction's statements in order, and Instrument edges tying each
// write to its immediately adjacent instrumentation reads.
func deriveInnerAndInstrumentEdges(g *Graph, stmts []StmtOutput) {
	lastByTid := map[int]int{}
	for idx, s := range stmts {
		if prev, ok := lastByTid[s.Tid]; ok {
			g.addStmtEdge(prev, idx, Inner)
		}
		lastByTid[s.Tid] = idx

		if !s.Role.IsWrite() {
			continue
		}
		if idx > 0 && stmts[idx-1].Tid == s.Tid && stmts[idx-1].Role.IsInstrumentation() {
			g.addStmtEdge(idx-1, idx, Instrumentation)
		}
		if idx+1 < len(stmts) && stmts[idx+1].Tid == s.Tid && stmts[idx+1].Role.IsInstrumentation() {
			g.addStmtEdge(idx, idx+1, Instrumentation)
		}
	}
}
