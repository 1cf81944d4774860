package search

import (
	"bytes"
	"context"
	"errors"

	"github.com/tidwall/btree"

	"github.com/viant/vecshard/metrics"
	"github.com/viant/vecshard/shard"
	"github.com/viant/vecshard/vector"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("search: k must be positive")

	// ErrInvalidThreshold is returned when threshold is outside [-1, 1],
	// the range of cosine similarity.
	ErrInvalidThreshold = errors.New("search: threshold must be in [-1, 1]")
)

// Options tunes a single search.
type Options struct {
	// NormSensitivity widens or narrows the norm pruning window
	// [n*(1-s), n*(1+s)]. Zero means the default of 0.3.
	NormSensitivity float32

	// FullScan disables norm pruning for this search.
	FullScan bool

	// FullScanFraction switches to a full scan when the norm window would
	// cover at least this fraction of the index span. Zero means the
	// default of 0.5.
	FullScanFraction float64
}

const (
	defaultNormSensitivity  = 0.3
	defaultFullScanFraction = 0.5
)

// Engine answers top-K cosine similarity queries over shard stores. It keeps
// a per-shard in-memory norm index, rebuilt when the shard's version stamp
// moves, so repeated searches on a warm shard never touch SQLite.
type Engine struct {
	cache *indexCache
}

// New returns a search engine with an empty index cache.
func New() *Engine {
	return &Engine{cache: newIndexCache()}
}

// Forget drops the cached index for a shard. Call it when a shard is
// evicted or dropped.
func (e *Engine) Forget(shardID string) {
	e.cache.forget(shardID)
}

// Search returns up to k live records most similar to query, ordered by
// similarity descending with ties broken by ascending id. Records with
// similarity below threshold are excluded. Fewer than k results may be
// returned; the norm window is never widened to fill the count.
func (e *Engine) Search(ctx context.Context, store *shard.Store, query []float32, k int, threshold float32, opts Options) ([]vector.SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if threshold < -1 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if len(query) != store.Dimension() {
		return nil, &shard.DimensionError{Want: store.Dimension(), Got: len(query)}
	}
	if !vector.Finite(query) {
		return nil, shard.ErrNotFinite
	}
	queryNorm := vector.Norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	sensitivity := opts.NormSensitivity
	if sensitivity <= 0 {
		sensitivity = defaultNormSensitivity
	}
	// A high threshold cannot be met far from the query norm, so the
	// window tightens with it. It never widens past the caller's setting.
	if threshold > 0 {
		if t := 1 - threshold; t < sensitivity {
			sensitivity = t
		}
	}
	lo, hi := vector.NormWindow(queryNorm, sensitivity)

	tree, err := e.cache.get(ctx, store)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.SearchesTotal.Inc()

	full := opts.FullScan || fullScanCheaper(tree, lo, hi, opts.FullScanFraction)

	top := newTopK(k)
	score := func(it normItem) bool {
		sim := vector.CosineSimilarityWithNorms(query, it.vec, queryNorm, it.norm)
		if sim >= threshold {
			// The index outlives the result; hand the caller its own copy.
			top.offer(vector.SearchResult{ID: it.id, Similarity: sim, Metadata: bytes.Clone(it.metadata)})
		}
		return true
	}
	if full {
		tree.Scan(score)
	} else {
		tree.Ascend(normItem{norm: lo}, func(it normItem) bool {
			if it.norm > hi {
				return false
			}
			return score(it)
		})
	}
	return top.results(), nil
}

// fullScanCheaper reports whether the window covers enough of the index's
// norm span that range pruning buys nothing.
func fullScanCheaper(tree *btree.BTreeG[normItem], lo, hi float32, fraction float64) bool {
	if fraction <= 0 {
		fraction = defaultFullScanFraction
	}
	min, ok := tree.Min()
	if !ok {
		return false
	}
	max, _ := tree.Max()
	span := max.norm - min.norm
	if span <= 0 {
		return true
	}
	cLo, cHi := lo, hi
	if cLo < min.norm {
		cLo = min.norm
	}
	if cHi > max.norm {
		cHi = max.norm
	}
	if cHi <= cLo {
		return false
	}
	return float64((cHi-cLo)/span) >= fraction
}
