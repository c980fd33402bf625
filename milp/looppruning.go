package milp

import "sort"

// PruneLoops removes slack flow on cycles from a raw flow solution
// (spec.md §4.E, "Loop pruning"): flow balance alone does not forbid
// flow circulating on a cycle that contributes nothing to any demand.
// It runs a DFS from the supersource tracking the minimum flow along the
// current path; on discovering a back-edge into an ancestor, it
// subtracts that minimum from every edge of the cycle and restarts the
// DFS from the same root, repeating until no cycle remains or the edge
// that closed the loop has been driven to zero.
//
// flow is keyed by "from|to" pair keys, mirroring Index.LinkCapacities.
// The input map is not mutated; the returned map is a pruned copy.
func PruneLoops(idx *Index, flow map[string]float64) map[string]float64 {
	const eps = 1e-9
	out := make(map[string]float64, len(flow))
	for k, v := range flow {
		out[k] = v
	}

	adj := make(map[string][]string)
	for _, key := range sortedFlowKeys(out) {
		from, to := splitPairKey(key)
		adj[from] = append(adj[from], to)
	}
	for from := range adj {
		sort.Strings(adj[from])
	}

	for iterations := 0; iterations < 10000; iterations++ {
		if !pruneOnePass(idx.Supersource, adj, out, eps) {
			break
		}
	}
	return out
}

// pruneOnePass runs one DFS from root and removes at most one cycle's
// worth of flow; it returns true if a cycle was found and pruned.
func pruneOnePass(root string, adj map[string][]string, flow map[string]float64, eps float64) bool {
	onStack := map[string]bool{}
	stackEdges := []string{} // pair keys, in DFS order
	visited := map[string]bool{}

	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		for _, to := range adj[node] {
			key := pairKey(node, to)
			if flow[key] <= eps {
				continue
			}
			if onStack[to] {
				stackEdges = append(stackEdges, key)
				pruneCycle(stackEdges, to, flow, eps)
				return true
			}
			if visited[to] {
				continue
			}
			stackEdges = append(stackEdges, key)
			if dfs(to) {
				return true
			}
			stackEdges = stackEdges[:len(stackEdges)-1]
		}
		onStack[node] = false
		return false
	}
	return dfs(root)
}

// pruneCycle finds the suffix of stackEdges forming the cycle back to
// ancestor, subtracts the minimum flow among those edges from each.
func pruneCycle(stackEdges []string, ancestor string, flow map[string]float64, eps float64) {
	start := 0
	for i := len(stackEdges) - 1; i >= 0; i-- {
		from, _ := splitPairKey(stackEdges[i])
		if from == ancestor {
			start = i
			break
		}
	}
	cycle := stackEdges[start:]
	min := flow[cycle[0]]
	for _, key := range cycle {
		if flow[key] < min {
			min = flow[key]
		}
	}
	if min <= eps {
		return
	}
	for _, key := range cycle {
		flow[key] -= min
	}
}

func sortedFlowKeys(flow map[string]float64) []string {
	keys := make([]string, 0, len(flow))
	for k := range flow {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitPairKey(key string) (from, to string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
