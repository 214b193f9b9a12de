package expreplay

// sumTree is a binary tree whose leaves hold priorities and whose
// internal nodes hold the sum of their children. Node i has children
// 2i and 2i+1; the root is node 1.
type sumTree struct {
	leaves int
	nodes  []float64
}

func newSumTree(capacity int) *sumTree {
	leaves := 1
	for leaves < capacity {
		leaves *= 2
	}
	return &sumTree{leaves: leaves, nodes: make([]float64, 2*leaves)}
}

// set sets the priority of leaf i
func (s *sumTree) set(i int, priority float64) {
	node := i + s.leaves
	s.nodes[node] = priority
	for node /= 2; node >= 1; node /= 2 {
		s.nodes[node] = s.nodes[2*node] + s.nodes[2*node+1]
	}
}

// get returns the priority of leaf i
func (s *sumTree) get(i int) float64 {
	return s.nodes[i+s.leaves]
}

func (s *sumTree) total() float64 {
	return s.nodes[1]
}

// find returns the leaf i such that the sum of the priorities of leaves
// before i is <= mass < that sum plus the priority of leaf i. Leaves
// with zero priority are never returned unless all are zero.
func (s *sumTree) find(mass float64) int {
	if mass >= s.total() {
		mass = s.total()
	}

	node := 1
	for node < s.leaves {
		left := 2 * node
		if mass < s.nodes[left] || s.nodes[left+1] == 0 {
			node = left
		} else {
			mass -= s.nodes[left]
			node = left + 1
		}
	}
	return node - s.leaves
}
