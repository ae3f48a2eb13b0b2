// Package pipeline runs the batch index build: catalog items in, persisted
// ANN index plus id-map sidecar out.
//
// A build is one-shot and run-to-completion. Both artifacts are written to
// fresh staging paths and renamed into place only after both are complete, so
// a previous on-disk index/id-map pair stays valid for queries for the whole
// duration of a build, and a failed build leaves nothing behind.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/orneryd/modalsearch/pkg/catalog"
	"github.com/orneryd/modalsearch/pkg/embed"
	"github.com/orneryd/modalsearch/pkg/embedcache"
	"github.com/orneryd/modalsearch/pkg/forest"
	"github.com/orneryd/modalsearch/pkg/fusion"
)

// modality names used as cache artifact keys
const (
	modalityText  = "text"
	modalityImage = "image"
)

// Builder assembles the collaborators of one index build. All dependencies
// are injected; the builder holds no ambient state.
type Builder struct {
	Store   catalog.Store
	Text    embed.TextEncoder
	Image   embed.ImageEncoder
	Cache   *embedcache.Cache
	Aligner *fusion.Aligner

	NumTrees   int
	LeafSize   int
	SampleSize int // <= 0 indexes the whole catalog
	IndexPath  string
	IDMapPath  string
}

// Result summarizes a completed build.
type Result struct {
	Items     int
	Dim       int
	NumTrees  int
	IndexPath string
	IDMapPath string
	Duration  time.Duration
}

// Build fetches the item selection, computes (or reuses cached) per-modality
// embeddings, fuses them, builds the forest, and atomically swaps both
// artifacts into place. Any error aborts with no artifact replaced.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	ids, err := b.selectIDs(ctx)
	if err != nil {
		return nil, err
	}

	items, err := b.Store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch items: %w", err)
	}
	if len(items) == 0 {
		return nil, catalog.ErrEmptyCatalog
	}

	// Positions follow the fetched item order; texts and image refs are
	// addressed through the same id list so cache rows line up with items.
	itemIDs := make([]string, len(items))
	byID := make(map[string]catalog.Item, len(items))
	for i, it := range items {
		itemIDs[i] = it.ID
		byID[it.ID] = it
	}

	textVecs, err := b.Cache.GetOrCompute(ctx, itemIDs, modalityText, func(ctx context.Context, batch []string) ([][]float32, error) {
		texts := make([]string, len(batch))
		for i, id := range batch {
			texts[i] = byID[id].SearchText()
		}
		return b.Text.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: text embeddings: %w", err)
	}

	imageVecs, err := b.Cache.GetOrCompute(ctx, itemIDs, modalityImage, func(ctx context.Context, batch []string) ([][]float32, error) {
		refs := make([]string, len(batch))
		for i, id := range batch {
			refs[i] = byID[id].ImageURL
		}
		return b.Image.EmbedImages(ctx, refs)
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: image embeddings: %w", err)
	}

	aligned, err := b.Aligner.Align(textVecs, imageVecs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: align: %w", err)
	}

	idx, err := forest.Build(aligned, b.NumTrees, forest.Options{LeafSize: b.LeafSize})
	if err != nil {
		return nil, fmt.Errorf("pipeline: build index: %w", err)
	}

	if err := b.swapArtifacts(idx, forest.NewIDMap(itemIDs, idx.Dim())); err != nil {
		return nil, err
	}

	res := &Result{
		Items:     len(items),
		Dim:       idx.Dim(),
		NumTrees:  b.NumTrees,
		IndexPath: b.IndexPath,
		IDMapPath: b.IDMapPath,
		Duration:  time.Since(start),
	}
	log.Printf("✅ pipeline: built index | items=%d dim=%d trees=%d duration=%v",
		res.Items, res.Dim, res.NumTrees, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (b *Builder) validate() error {
	if b.Store == nil || b.Text == nil || b.Image == nil || b.Cache == nil || b.Aligner == nil {
		return fmt.Errorf("pipeline: builder is missing a collaborator")
	}
	if b.NumTrees <= 0 {
		return fmt.Errorf("%w: numTrees must be positive, got %d", forest.ErrInvalidArgument, b.NumTrees)
	}
	if b.IndexPath == "" || b.IDMapPath == "" {
		return fmt.Errorf("pipeline: index and id-map paths are required")
	}
	return nil
}

func (b *Builder) selectIDs(ctx context.Context) ([]string, error) {
	if b.SampleSize > 0 {
		ids, err := b.Store.SampleIDs(ctx, b.SampleSize)
		if err != nil {
			return nil, fmt.Errorf("pipeline: sample ids: %w", err)
		}
		return ids, nil
	}
	ids, err := b.Store.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, catalog.ErrEmptyCatalog
	}
	return ids, nil
}

// swapArtifacts stages both artifacts next to their final paths, then renames
// the pair into place. A crash between the two renames leaves a stale id map
// that LoadPair rejects on count/dim mismatch rather than serving silently.
func (b *Builder) swapArtifacts(idx *forest.Index, idMap *forest.IDMap) error {
	stagedIndex := b.IndexPath + ".next"
	stagedIDMap := b.IDMapPath + ".next"

	if err := idx.Save(stagedIndex); err != nil {
		return fmt.Errorf("pipeline: stage index: %w", err)
	}
	if err := idMap.Save(stagedIDMap); err != nil {
		os.Remove(stagedIndex)
		return fmt.Errorf("pipeline: stage id map: %w", err)
	}
	if err := os.Rename(stagedIndex, b.IndexPath); err != nil {
		os.Remove(stagedIndex)
		os.Remove(stagedIDMap)
		return fmt.Errorf("pipeline: swap index: %w", err)
	}
	if err := os.Rename(stagedIDMap, b.IDMapPath); err != nil {
		os.Remove(stagedIDMap)
		return fmt.Errorf("pipeline: swap id map: %w", err)
	}
	return nil
}
