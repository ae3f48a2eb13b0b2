package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// SeedFromJSON loads a products JSON file (a list of item records) into the
// store, skipping ids that already exist. Records without an id are assigned
// a fresh uuid. Returns the number of newly inserted items.
func SeedFromJSON(ctx context.Context, store Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: read seed file: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("catalog: parse seed file %s: %w", path, err)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("catalog: seed file %s holds no items", path)
	}

	for i := range items {
		if items[i].Name == "" || items[i].Category == "" {
			return 0, fmt.Errorf("catalog: seed item %d is missing name or category", i)
		}
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}

	existing, err := store.AllIDs(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	fresh := items[:0]
	for _, it := range items {
		if _, ok := known[it.ID]; ok {
			continue
		}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := store.PutBatch(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
