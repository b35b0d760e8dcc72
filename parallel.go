package adp

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// forEachChunk splits [0,n) into contiguous chunks and runs fn(start, end)
// once per chunk, using up to workers goroutines. fn must only write state
// owned by its own range, so no synchronization is needed. Chunk boundaries
// depend only on n and workers; a deterministic fn therefore produces
// bitwise identical results for any worker count.
func forEachChunk(n, workers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// AllKNN queries the index for the k nearest other points of every indexed
// point, in parallel. Row i of both results holds point i's neighbors in
// ascending distance order, excluding point i itself. The rows are
// identical for any worker count.
func AllKNN(index NeighborIndex, k, workers int) ([][]int, [][]float64, error) {
	n := index.NumPoints()
	neighbors := make([][]int, n)
	distances := make([][]float64, n)
	if n == 0 {
		return neighbors, distances, nil
	}

	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			idx, dist, err := index.KNNOf(i, k)
			if err != nil {
				return nil, nil, err
			}
			neighbors[i] = idx
			distances[i] = dist
		}
		return neighbors, distances, nil
	}

	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		s, e := start, start+chunk
		if e > n {
			e = n
		}
		g.Go(func() error {
			for i := s; i < e; i++ {
				idx, dist, err := index.KNNOf(i, k)
				if err != nil {
					return err
				}
				neighbors[i] = idx
				distances[i] = dist
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return neighbors, distances, nil
}
