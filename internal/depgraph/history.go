package depgraph

import "github.com/txnfuzz/txnfuzz/internal/instrument"

// OperateUnit is a per-row observation emitted by the history build: the
// value of the designated version column, which transaction and statement
// produced it, the row it describes, and a stable hash of the row's
// values.
type OperateUnit struct {
	Role      instrument.Role
	WriteOpID int64
	Tid       int
	StmtIdx   int // index into Input.Stmts; -1 for initial content
	RowID     int64
	Hash      uint64
}

// RowHistory is, for each distinct row id, the insertion-ordered list of
// operate-units observed against it across every statement.
type RowHistory map[int64][]*OperateUnit

// isReadRole reports whether r is a statement role that produces observable rows;
// writes themselves never do in this model (no RETURNING), only the
// before/after/version-set reads the instrumentor wraps them in.
func isReadRole(r instrument.Role) bool {
	switch r {
	case instrument.SelectRead, instrument.BeforeWriteRead, instrument.AfterWriteRead, instrument.VersionSetRead:
		return true
	default:
		return false
	}
}

// buildHistory walks the initial content and every statement's rows in
// order, hashing each row and appending an OperateUnit to its row's list.
func buildHistory(in Input) RowHistory {
	wkeyCol := in.WkeyColumn
	if wkeyCol == "" {
		wkeyCol = "wkey"
	}
	versionCol := in.VersionColumn
	if versionCol == "" {
		versionCol = "write_op_id"
	}

	hist := RowHistory{}
	appendRow := func(row Row, role instrument.Role, tid, stmtIdx int) {
		rowID, ok := intColumn(row, wkeyCol)
		if !ok {
			return
		}
		version, _ := intColumn(row, versionCol)
		hist[rowID] = append(hist[rowID], &OperateUnit{
			Role:      role,
			WriteOpID: version,
			Tid:       tid,
			StmtIdx:   stmtIdx,
			RowID:     rowID,
			Hash:      RowHash(row),
		})
	}

	for _, rows := range in.InitialContent {
		for _, r := range rows {
			appendRow(r, instrument.AfterWriteRead, TxnInf, -1)
		}
	}
	for idx, s := range in.Stmts {
		if !isReadRole(s.Role) {
			continue
		}
		for _, r := range s.Rows {
			appendRow(r, s.Role, s.Tid, idx)
		}
	}
	return hist
}
