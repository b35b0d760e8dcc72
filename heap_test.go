package adp

import (
	"math"
	"sort"
	"testing"
)

// --- Capacity and bookkeeping ---

func TestNeighborHeap_BelowCapacityKeepsAll(t *testing.T) {
	h := NewNeighborHeap(5)
	h.Insert(0, 3.0)
	h.Insert(1, 1.0)
	h.Insert(2, 2.0)

	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
	if h.Full() {
		t.Error("Full() = true below capacity")
	}
	if h.Cap() != 5 {
		t.Errorf("Cap() = %d, want 5", h.Cap())
	}
}

func TestNeighborHeap_CapacityClampedToOne(t *testing.T) {
	h := NewNeighborHeap(0)
	if h.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", h.Cap())
	}
	h.Insert(7, 1.5)
	idx, dist := h.DrainSorted()
	if len(idx) != 1 || idx[0] != 7 || dist[0] != 1.5 {
		t.Errorf("drained (%v, %v), want ([7], [1.5])", idx, dist)
	}
}

func TestNeighborHeap_PeekMaxEmptyIsInf(t *testing.T) {
	h := NewNeighborHeap(3)
	if !math.IsInf(h.PeekMax(), 1) {
		t.Errorf("PeekMax() on empty heap = %v, want +Inf", h.PeekMax())
	}
}

func TestNeighborHeap_PeekMaxTracksWorst(t *testing.T) {
	h := NewNeighborHeap(2)
	h.Insert(0, 1.0)
	h.Insert(1, 5.0)
	if h.PeekMax() != 5.0 {
		t.Errorf("PeekMax() = %v, want 5.0", h.PeekMax())
	}
	// 2.0 evicts 5.0; worst kept becomes 2.0.
	h.Insert(2, 2.0)
	if h.PeekMax() != 2.0 {
		t.Errorf("PeekMax() after eviction = %v, want 2.0", h.PeekMax())
	}
}

// --- Eviction ---

func TestNeighborHeap_AtCapacityKeepsSmallest(t *testing.T) {
	h := NewNeighborHeap(3)
	for i, d := range []float64{9, 4, 7, 1, 8, 3} {
		h.Insert(i, d)
	}

	_, dists := h.DrainSorted()
	want := []float64{1, 3, 4}
	if len(dists) != 3 {
		t.Fatalf("drained %d candidates, want 3", len(dists))
	}
	for i := range want {
		if dists[i] != want[i] {
			t.Errorf("dists[%d] = %v, want %v", i, dists[i], want[i])
		}
	}
}

func TestNeighborHeap_TieAtCapacityKeepsEarlier(t *testing.T) {
	h := NewNeighborHeap(1)
	h.Insert(1, 5.0)
	h.Insert(2, 5.0) // equal distance, must not evict the earlier candidate

	idx, _ := h.DrainSorted()
	if idx[0] != 1 {
		t.Errorf("kept index %d, want 1 (earlier insertion wins ties)", idx[0])
	}
}

// --- Drain ordering ---

func TestNeighborHeap_DrainSortedAscending(t *testing.T) {
	h := NewNeighborHeap(10)
	in := []float64{5, 2, 9, 1, 7, 3, 8, 4, 6, 0}
	for i, d := range in {
		h.Insert(i, d)
	}

	_, dists := h.DrainSorted()
	for i := 1; i < len(dists); i++ {
		if dists[i-1] > dists[i] {
			t.Fatalf("drain not ascending at %d: %v", i, dists)
		}
	}
}

func TestNeighborHeap_DrainTiesInInsertionOrder(t *testing.T) {
	h := NewNeighborHeap(4)
	h.Insert(10, 2.0)
	h.Insert(11, 1.0)
	h.Insert(12, 2.0)
	h.Insert(13, 2.0)

	idx, _ := h.DrainSorted()
	want := []int{11, 10, 12, 13}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("idx[%d] = %d, want %d (ties keep insertion order)", i, idx[i], want[i])
		}
	}
}

// Offering a long random stream through the heap must agree with sorting
// the whole stream by (distance, arrival) and keeping the first k.
func TestNeighborHeap_MatchesSortTruncate(t *testing.T) {
	rng := newTestRNG(7)
	const n, k = 500, 16

	type arrival struct {
		index int
		dist  float64
		seq   int
	}
	stream := make([]arrival, n)
	h := NewNeighborHeap(k)
	for i := 0; i < n; i++ {
		// Coarse quantization forces plenty of exact ties.
		d := math.Floor(rng.Float64()*32) / 8
		stream[i] = arrival{index: i, dist: d, seq: i}
		h.Insert(i, d)
	}

	sort.Slice(stream, func(i, j int) bool {
		if stream[i].dist != stream[j].dist {
			return stream[i].dist < stream[j].dist
		}
		return stream[i].seq < stream[j].seq
	})

	idx, dists := h.DrainSorted()
	if len(idx) != k {
		t.Fatalf("drained %d candidates, want %d", len(idx), k)
	}
	for i := 0; i < k; i++ {
		if idx[i] != stream[i].index || dists[i] != stream[i].dist {
			t.Errorf("position %d: got (%d, %v), want (%d, %v)",
				i, idx[i], dists[i], stream[i].index, stream[i].dist)
		}
	}
}
