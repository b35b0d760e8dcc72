package adp

// unionFind is a disjoint-set over cluster ids with path compression.
// There is no union by rank: the merge heuristic dictates which cluster
// absorbs which, so union takes an explicit winner.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1 // -1 means "is a root"
	}
	return &unionFind{parent: parent}
}

// find returns the root of the set containing x, with path compression.
func (uf *unionFind) find(x int) int {
	// Walk to the root.
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	// Path compression: point all nodes along the path directly to root.
	for uf.parent[x] != -1 {
		x, uf.parent[x] = uf.parent[x], root
	}
	return root
}

// union absorbs the set rooted at loser into the set rooted at winner.
// Both arguments must be roots.
func (uf *unionFind) union(winner, loser int) {
	if winner == loser {
		return
	}
	uf.parent[loser] = winner
}
