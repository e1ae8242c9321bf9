package retrieval

import (
	"cmp"
	"math"
	"slices"
	"sync"
)

// Match is one search hit.
type Match struct {
	ID       string
	Distance float32
}

// Index is a brute-force cosine index. Collections are small (a timetable
// is tens of chunks), so a linear scan is fast enough.
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Insert adds or replaces a vector.
func (x *Index) Insert(id string, v []float32) {
	x.mu.Lock()
	x.vectors[id] = slices.Clone(v)
	x.mu.Unlock()
}

// Delete removes a vector. Unknown ids are ignored.
func (x *Index) Delete(id string) {
	x.mu.Lock()
	delete(x.vectors, id)
	x.mu.Unlock()
}

// Len returns the number of vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Search returns up to k matches closest to q, nearest first. Ties are
// broken by id so results are deterministic.
func (x *Index) Search(q []float32, k int) []Match {
	x.mu.RLock()
	matches := make([]Match, 0, len(x.vectors))
	for id, v := range x.vectors {
		matches = append(matches, Match{ID: id, Distance: CosineDistance(q, v)})
	}
	x.mu.RUnlock()

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// CosineDistance returns 1 - cos(a, b) in [0, 2]. Vectors of different
// length or with zero norm are at distance 2.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	sim := max(-1, min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
	return float32(1 - sim)
}
