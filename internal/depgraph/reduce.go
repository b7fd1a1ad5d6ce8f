package depgraph

// Reduce is the cycle-existence check: repeatedly strip every
// zero-in-degree node, then every zero-out-degree node, from the induced
// subgraph over nodes restricted to edges, until neither pass removes
// anything. On a DAG this empties the node set entirely; on any graph
// containing a cycle it leaves exactly the remaining strongly connected
// members.
func Reduce(nodes []int, edges map[edgeKey]bool) []int {
	remaining := map[int]bool{}
	for _, n := range nodes {
		remaining[n] = true
	}

	for {
		before := len(remaining)
		stripZero(remaining, edges, true)
		stripZero(remaining, edges, false)
		if len(remaining) == before {
			break
		}
	}

	out := make([]int, 0, len(remaining))
	for n := range remaining {
		out = append(out, n)
	}
	return out
}

// stripZero removes, in one pass, every node in remaining whose in-degree
// (inDegree=true) or out-degree (inDegree=false) within the induced
// subgraph is zero.
func stripZero(remaining map[int]bool, edges map[edgeKey]bool, inDegree bool) {
	for {
		var toRemove []int
		for n := range remaining {
			deg := 0
			for k := range edges {
				if !remaining[k.from] || !remaining[k.to] {
					continue
				}
				if inDegree && k.to == n {
					deg++
				}
				if !inDegree && k.from == n {
					deg++
				}
			}
			if deg == 0 {
				toRemove = append(toRemove, n)
			}
		}
		if len(toRemove) == 0 {
			return
		}
		for _, n := range toRemove {
			delete(remaining, n)
		}
	}
}

// HasCycle reports whether the subgraph induced by edges over nodes
// contains a cycle.
func HasCycle(nodes []int, edges map[edgeKey]bool) bool {
	return len(Reduce(nodes, edges)) > 0
}

// graphNodes returns 0..n-1 as a node slice, the universe Reduce/HasCycle
// operate over when called on the full committed-transaction or
// statement-index set.
func graphNodes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// edgeSetAsBool converts a labeled edge map restricted to the given
// labels into the boolean adjacency shape Reduce consumes.
func edgeSetAsBool(edges map[edgeKey]LabelSet, labels ...EdgeLabel) map[edgeKey]bool {
	out := map[edgeKey]bool{}
	for k, ls := range edges {
		for _, l := range labels {
			if ls.Has(l) {
				out[k] = true
				break
			}
		}
	}
	return out
}
