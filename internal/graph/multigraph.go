package graph

// MultiGraph is a directed graph of concrete "id.prop" nodes with an edge
// from every expanded input to every expanded output of the same callback.
//
// Nodes and edges keep insertion order so OverallOrder and cycle reports are
// deterministic.
type MultiGraph struct {
	nodes []string
	seen  map[string]bool
	edges map[string][]string
	has   map[[2]string]bool
}

// NewMultiGraph returns an empty graph.
func NewMultiGraph() *MultiGraph {
	return &MultiGraph{
		seen:  make(map[string]bool),
		edges: make(map[string][]string),
		has:   make(map[[2]string]bool),
	}
}

// AddNode adds node if it is not present.
func (g *MultiGraph) AddNode(node string) {
	if g.seen[node] {
		return
	}
	g.seen[node] = true
	g.nodes = append(g.nodes, node)
}

// AddEdge adds an edge from -> to, adding missing nodes. Duplicate edges
// are ignored.
func (g *MultiGraph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	key := [2]string{from, to}
	if g.has[key] {
		return
	}
	g.has[key] = true
	g.edges[from] = append(g.edges[from], to)
}

// Nodes returns the nodes in insertion order.
func (g *MultiGraph) Nodes() []string {
	return g.nodes
}

// Successors returns the targets of edges leaving node.
func (g *MultiGraph) Successors(node string) []string {
	return g.edges[node]
}

// OverallOrder returns every node ordered so that each edge points forward
// (inputs before the outputs they feed). A cycle yields a *CycleError.
func (g *MultiGraph) OverallOrder() ([]string, error) {
	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	var (
		order   = make([]string, 0, len(g.nodes))
		visited = make(map[string]bool, len(g.nodes))
		visit   func(string)
	)
	// Reverse post-order of a DFS over an acyclic graph is topological.
	visit = func(n string) {
		visited[n] = true
		for _, m := range g.edges[n] {
			if !visited[m] {
				visit(m)
			}
		}
		order = append(order, n)
	}
	for _, n := range g.nodes {
		if !visited[n] {
			visit(n)
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// findCycle returns one loop as a node path, or nil when the graph is a DAG.
func (g *MultiGraph) findCycle() []string {
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 {
			return g.reconstructCyclePath(scc)
		}
		if n := scc[0]; g.has[[2]string{n, n}] {
			return []string{n, n}
		}
	}
	return nil
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func (g *MultiGraph) tarjanSCC() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside an SCC from its earliest inserted
// member until it returns to it.
func (g *MultiGraph) reconstructCyclePath(scc []string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := ""
	for _, n := range g.nodes {
		if members[n] {
			start = n
			break
		}
	}

	// BFS inside the SCC for the shortest way back to start.
	prev := map[string]string{}
	queue := []string{start}
	visited := map[string]bool{start: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[cur] {
			if !members[next] {
				continue
			}
			if next == start {
				path := []string{start}
				for n := cur; n != start; n = prev[n] {
					path = append(path, n)
				}
				// path is start, then the loop backwards; flip the tail.
				tail := path[1:]
				for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
					tail[i], tail[j] = tail[j], tail[i]
				}
				return append(path, start)
			}
			if !visited[next] {
				visited[next] = true
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return append([]string{}, scc...)
}
