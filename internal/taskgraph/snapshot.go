package taskgraph

// Snapshot is the serializable form of a graph, used by the checkpoint
// sink. Node order matches insertion order so a restored graph keeps the
// deterministic ready-node ordering.
type Snapshot struct {
	Goal  string `json:"goal"`
	Nodes []Node `json:"nodes"`
}

// Snapshot captures the current graph state.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{Goal: g.goal, Nodes: make([]Node, 0, len(g.order))}
	for _, id := range g.order {
		n := g.nodes[id]
		copied := *n
		copied.Dependencies = append([]string(nil), n.Dependencies...)
		snap.Nodes = append(snap.Nodes, copied)
	}
	return snap
}

// FromSnapshot rebuilds a graph from a snapshot, preserving statuses,
// results and retry counts verbatim. Dependency and cycle validation is
// skipped; snapshots are trusted output of Snapshot.
func FromSnapshot(snap *Snapshot) *Graph {
	g := New(snap.Goal)
	for i := range snap.Nodes {
		n := snap.Nodes[i]
		restored := n
		restored.Dependencies = append([]string(nil), n.Dependencies...)
		g.nodes[restored.ID] = &restored
		g.order = append(g.order, restored.ID)
	}
	return g
}
