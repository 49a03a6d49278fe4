package graph

// order returns nodes sorted from sources to sinks. Nodes are sorted
// topologically by links, ties are resolved by insertion order. Nodes that
// form a cycle are appended in insertion order. If upward is true, the
// order is reversed: state changes towards PLAYING start from sinks, so
// downstream is ready to receive before upstream starts to produce.
func order(nodes []*Node, upward bool) []*Node {
	index := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	indegree := make([]int, len(nodes))
	next := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, p := range n.SrcPads() {
			peer := p.Peer()
			if peer == nil {
				continue
			}
			j, ok := index[peer.node]
			if !ok || j == i {
				continue
			}
			next[i] = append(next[i], j)
			indegree[j]++
		}
	}

	sorted := make([]*Node, 0, len(nodes))
	visited := make([]bool, len(nodes))
	for len(sorted) < len(nodes) {
		// pick the first ready node in insertion order.
		pick := -1
		for i := range nodes {
			if !visited[i] && indegree[i] == 0 {
				pick = i
				break
			}
		}
		if pick == -1 {
			// cycle
			for i := range nodes {
				if !visited[i] {
					visited[i] = true
					sorted = append(sorted, nodes[i])
				}
			}
			break
		}
		visited[pick] = true
		sorted = append(sorted, nodes[pick])
		for _, j := range next[pick] {
			indegree[j]--
		}
	}

	if upward {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	return sorted
}
