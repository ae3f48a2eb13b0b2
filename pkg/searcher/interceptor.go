package searcher

import (
	"context"
	"log"
	"time"
)

// SearchFunc is the shape of a search call, so interceptors can wrap either
// a Service or another interceptor.
type SearchFunc func(ctx context.Context, q Query) ([]Result, error)

// WithLogging wraps a search call with boundary logging: start, outcome, and
// duration. The core stays unaware of logging; this is the explicit stage a
// front end installs around Service.Search.
func WithLogging(next SearchFunc) SearchFunc {
	return func(ctx context.Context, q Query) ([]Result, error) {
		start := time.Now()
		log.Printf("🔍 search: start | text=%q image=%q k=%d", q.Text, q.ImageRef, q.K)

		results, err := next(ctx, q)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			log.Printf("❌ search: failed after %v | %v", elapsed, err)
			return nil, err
		}
		log.Printf("✅ search: %d results in %v", len(results), elapsed)
		return results, nil
	}
}
