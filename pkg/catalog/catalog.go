// Package catalog provides the product metadata store consumed by the build
// pipeline and the search orchestrator.
//
// Items are addressed by their external string id, never by a store-native
// key. The Store interface is what the core depends on; BadgerStore is the
// embedded implementation.
package catalog

import (
	"context"
	"errors"
)

// Item is one catalog record. Immutable for the duration of one index build.
// Price is opaque to the search core and carried for display only.
type Item struct {
	ID       string  `json:"id" msgpack:"id"`
	Name     string  `json:"name" msgpack:"name"`
	Category string  `json:"category" msgpack:"category"`
	Price    float64 `json:"price" msgpack:"price"`
	ImageURL string  `json:"image_url" msgpack:"image_url"`
}

// SearchText is the text representation embedded for this item: name plus
// category, matching what the index was built from.
func (it Item) SearchText() string {
	return it.Name + " " + it.Category
}

// ErrEmptyCatalog is returned when an operation needs items and none exist.
var ErrEmptyCatalog = errors.New("catalog: no items")

// Store is the catalog collaborator interface.
type Store interface {
	// FindByIDs returns the items for ids in one batched lookup. Unknown ids
	// are omitted from the result, not errors.
	FindByIDs(ctx context.Context, ids []string) ([]Item, error)

	// SampleIDs returns a bounded, deterministic sample of up to n item ids,
	// used to build a reduced index for testing or cost control.
	SampleIDs(ctx context.Context, n int) ([]string, error)

	// AllIDs returns every item id in stable order.
	AllIDs(ctx context.Context) ([]string, error)

	// PutBatch upserts items.
	PutBatch(ctx context.Context, items []Item) error

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)
}
