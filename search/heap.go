package search

import (
	"container/heap"
	"sort"

	"github.com/viant/vecshard/vector"
)

// resultHeap is a bounded min-heap keeping the k best candidates seen so
// far. The root is the worst kept result: lowest similarity, and on equal
// similarity the largest id, so that the final ordering ties break toward
// smaller ids.
type resultHeap []vector.SearchResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].Similarity != h[j].Similarity {
		return h[i].Similarity < h[j].Similarity
	}
	return h[i].ID > h[j].ID
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(vector.SearchResult)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK accumulates candidates and returns the k best in deterministic order.
type topK struct {
	k int
	h resultHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(resultHeap, 0, k)}
}

func (t *topK) offer(r vector.SearchResult) {
	if len(t.h) < t.k {
		heap.Push(&t.h, r)
		return
	}
	worst := t.h[0]
	if r.Similarity > worst.Similarity || (r.Similarity == worst.Similarity && r.ID < worst.ID) {
		t.h[0] = r
		heap.Fix(&t.h, 0)
	}
}

// results drains the heap ordered by similarity descending, id ascending.
func (t *topK) results() []vector.SearchResult {
	out := make([]vector.SearchResult, len(t.h))
	copy(out, t.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	return out
}
