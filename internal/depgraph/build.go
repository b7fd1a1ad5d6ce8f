package depgraph

// History reconstructs just the per-row observation history, without the
// dependency graph, for callers (internal/orchestrator, internal/reproducer)
// that need to hand it to Detect alongside a separately built Graph.
func History(in Input) RowHistory {
	return buildHistory(in)
}

// Build reconstructs the row-level history and the full dependency graph
// (transaction-level and statement-level edges) from one test run's
// observations.
func Build(in Input) (*Graph, error) {
	wkeyCol := in.WkeyColumn
	if wkeyCol == "" {
		wkeyCol = "wkey"
	}
	versionCol := in.VersionColumn
	if versionCol == "" {
		versionCol = "write_op_id"
	}

	g := newGraph()
	for tid, st := range in.TxnStatus {
		g.TxnStatus[tid] = st
	}
	g.NumStmts = len(in.Stmts)

	hist := buildHistory(in)
	deriveRowEdges(g, hist)

	spans := txnSpans(in.Stmts)
	deriveStartEdges(g, spans)

	deriveVersionSetAndOverwrite(g, in.Stmts, wkeyCol, versionCol)
	deriveInnerAndInstrumentEdges(g, in.Stmts)

	return g, nil
}
