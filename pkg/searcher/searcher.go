// Package searcher answers multimodal similarity queries against a built
// index: encode the query through the same fusion path used at build time,
// query the forest, and join the resulting positions back to catalog records.
package searcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/modalsearch/pkg/catalog"
	"github.com/orneryd/modalsearch/pkg/embed"
	"github.com/orneryd/modalsearch/pkg/forest"
)

// ErrInvalidArgument is returned for unusable queries (no modality supplied,
// or a non-positive k after defaulting).
var ErrInvalidArgument = errors.New("searcher: invalid argument")

// DefaultK is the result count used when a query does not specify one.
const DefaultK = 1

// Query is one search request. At least one of Text and ImageRef must be
// set; K <= 0 falls back to DefaultK.
type Query struct {
	Text     string
	ImageRef string
	K        int
}

// Result is one ranked hit joined with its catalog record.
type Result struct {
	Item     catalog.Item
	Distance float32
}

// Service orchestrates query-time search. All collaborators are injected:
// the loaded index/id-map pair, the catalog store, and the aligned encoder
// variant picked by configuration.
type Service struct {
	index   *forest.Index
	idMap   *forest.IDMap
	store   catalog.Store
	encoder embed.AlignedEncoder

	// BudgetFactor scales the candidate work budget to k×BudgetFactor for
	// recall tuning. Zero keeps the engine default of k×numTrees.
	BudgetFactor int
}

// New wires a search service. The index and id map must come from the same
// build (use forest.LoadPair); the encoder must produce vectors of the
// index's dimension.
func New(index *forest.Index, idMap *forest.IDMap, store catalog.Store, encoder embed.AlignedEncoder) (*Service, error) {
	if index == nil || idMap == nil || store == nil || encoder == nil {
		return nil, errors.New("searcher: index, id map, store, and encoder are required")
	}
	if idMap.Len() != index.Len() {
		return nil, fmt.Errorf("%w: id map has %d positions, index has %d vectors",
			forest.ErrCorruptIndexState, idMap.Len(), index.Len())
	}
	if encoder.Dim() != index.Dim() {
		return nil, fmt.Errorf("%w: encoder dim %d, index dim %d",
			forest.ErrDimensionMismatch, encoder.Dim(), index.Dim())
	}
	return &Service{index: index, idMap: idMap, store: store, encoder: encoder}, nil
}

// Search returns up to q.K catalog items ranked by angular distance to the
// query. Results whose id no longer resolves to a catalog record are dropped
// silently: the catalog may have moved on since the index was built.
func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Text == "" && q.ImageRef == "" {
		return nil, fmt.Errorf("%w: query needs text or an image reference", ErrInvalidArgument)
	}
	k := q.K
	if k <= 0 {
		k = DefaultK
	}

	var texts, refs []string
	if q.Text != "" {
		texts = []string{q.Text}
	}
	if q.ImageRef != "" {
		refs = []string{q.ImageRef}
	}

	vecs, err := s.encoder.Embed(ctx, texts, refs)
	if err != nil {
		return nil, fmt.Errorf("searcher: encode query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("searcher: encoder returned %d vectors for one query", len(vecs))
	}

	hits, err := s.index.QueryWithBudget(vecs[0], k, k*s.BudgetFactor)
	if err != nil {
		return nil, err
	}

	// One batched metadata lookup for all hits, never one round trip each.
	ids := make([]string, 0, len(hits))
	distByID := make(map[string]float32, len(hits))
	for _, h := range hits {
		id, ok := s.idMap.Resolve(h.Position)
		if !ok {
			return nil, fmt.Errorf("%w: position %d has no id mapping", forest.ErrCorruptIndexState, h.Position)
		}
		ids = append(ids, id)
		distByID[id] = h.Distance
	}
	items, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("searcher: resolve metadata: %w", err)
	}
	byID := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	// Preserve the ANN distance ordering; ids without a record are dropped.
	results := make([]Result, 0, len(hits))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			continue
		}
		results = append(results, Result{Item: it, Distance: distByID[id]})
	}
	return results, nil
}
