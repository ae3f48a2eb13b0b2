// Package embedcache persists computed embedding matrices across index builds.
//
// Artifacts are content-addressed: the key is a fingerprint of the exact id
// selection plus the modality, so two different selections never share an
// entry even when they overlap. Expiry is lazy (checked on access, nothing is
// deleted proactively) and the clock is injectable so tests can simulate
// expiry without sleeping or touching file metadata.
//
// The cache is an optimization, not a correctness dependency: a failed
// artifact write is reported but the computed result is still returned.
package embedcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrCacheWrite wraps failures to persist a cache artifact. The computation
// result is still returned to the caller when this is reported.
var ErrCacheWrite = errors.New("embedcache: artifact write failed")

// DefaultTTL is how long a cached embedding matrix stays valid (30 days).
const DefaultTTL = 30 * 24 * time.Hour

// DefaultBatchSize bounds how many items are handed to one compute call.
const DefaultBatchSize = 32

// lock acquisition bounds for concurrent builds targeting the same fingerprint
const (
	lockPollInterval = 50 * time.Millisecond
	lockWaitMax      = 5 * time.Second
)

// ComputeFunc computes the embedding matrix for one batch of item ids,
// returning exactly one row per id, in id order.
type ComputeFunc func(ctx context.Context, ids []string) ([][]float32, error)

// Config configures a Cache. Zero values fall back to defaults.
type Config struct {
	Dir       string
	TTL       time.Duration
	BatchSize int

	// Now is the clock source; defaults to time.Now.
	Now func() time.Time

	// OnWriteError receives persist failures (already wrapped in ErrCacheWrite).
	// Defaults to logging. Compute results are returned regardless.
	OnWriteError func(error)
}

// Cache stores one msgpack artifact per (fingerprint, modality) under Dir.
type Cache struct {
	dir          string
	ttl          time.Duration
	batchSize    int
	now          func() time.Time
	onWriteError func(error)
}

// New creates a Cache rooted at cfg.Dir, creating the directory if needed.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("embedcache: cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("embedcache: create cache dir: %w", err)
	}
	c := &Cache{
		dir:          cfg.Dir,
		ttl:          cfg.TTL,
		batchSize:    cfg.BatchSize,
		now:          cfg.Now,
		onWriteError: cfg.OnWriteError,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.onWriteError == nil {
		c.onWriteError = func(err error) { log.Printf("⚠️ %v", err) }
	}
	return c, nil
}

// Fingerprint derives the cache key for an id selection: the first 8 hex chars
// of md5 over the sorted, deduplicated ids joined by commas. An empty
// selection means "the whole catalog" and uses the sentinel "all".
func Fingerprint(ids []string) string {
	if len(ids) == 0 {
		return hashKey("all")
	}
	dedup := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dedup = append(dedup, id)
	}
	sort.Strings(dedup)
	return hashKey(strings.Join(dedup, ","))
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:8]
}

// ArtifactPath returns the artifact filename for (fingerprint, modality).
// The name is derivable solely from those two values.
func (c *Cache) ArtifactPath(fingerprint, modality string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_emb_%s.msgpack", modality, fingerprint))
}

// artifact is the on-disk form of one cached embedding matrix.
type artifact struct {
	CreatedAtUnix int64       `msgpack:"created_at_unix"`
	Rows          [][]float32 `msgpack:"rows"`
}

// GetOrCompute returns the embedding matrix for ids/modality, reading a valid
// cached artifact when one exists and otherwise invoking fn in batches.
//
// ids order determines row order. A valid (unexpired) cache hit never calls
// fn. On a miss, fn is invoked per batch of at most BatchSize ids and the
// batch results are concatenated in the original order; a batch yielding zero
// rows, the wrong row count, or an inconsistent row width aborts the
// population with nothing written.
func (c *Cache) GetOrCompute(ctx context.Context, ids []string, modality string, fn ComputeFunc) ([][]float32, error) {
	if modality == "" {
		return nil, errors.New("embedcache: modality is required")
	}
	path := c.ArtifactPath(Fingerprint(ids), modality)

	if rows, ok := c.readValid(path, len(ids)); ok {
		log.Printf("⚡ embedcache: hit for %s (%d rows)", filepath.Base(path), len(rows))
		return rows, nil
	}

	rows, err := c.computeBatched(ctx, ids, fn)
	if err != nil {
		return nil, err
	}

	if err := c.write(path, rows); err != nil {
		c.onWriteError(fmt.Errorf("%w: %s: %v", ErrCacheWrite, filepath.Base(path), err))
	}
	return rows, nil
}

// readValid loads the artifact at path if it exists, decodes, and is within
// TTL. wantRows > 0 additionally requires a matching row count (a stale
// artifact from a hash collision or manual tampering forces a recompute).
func (c *Cache) readValid(path string, wantRows int) ([][]float32, bool) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	var art artifact
	if err := msgpack.NewDecoder(file).Decode(&art); err != nil {
		return nil, false
	}
	age := c.now().Sub(time.Unix(art.CreatedAtUnix, 0))
	if age > c.ttl {
		return nil, false
	}
	if len(art.Rows) == 0 {
		return nil, false
	}
	if wantRows > 0 && len(art.Rows) != wantRows {
		return nil, false
	}
	return art.Rows, true
}

func (c *Cache) computeBatched(ctx context.Context, ids []string, fn ComputeFunc) ([][]float32, error) {
	if fn == nil {
		return nil, errors.New("embedcache: compute function is required")
	}
	if len(ids) == 0 {
		return nil, errors.New("embedcache: no item ids to compute")
	}

	rows := make([][]float32, 0, len(ids))
	width := -1
	for start := 0; start < len(ids); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		got, err := fn(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedcache: compute batch [%d:%d]: %w", start, end, err)
		}
		if len(got) == 0 {
			return nil, fmt.Errorf("embedcache: compute batch [%d:%d] yielded zero rows", start, end)
		}
		if len(got) != len(batch) {
			return nil, fmt.Errorf("embedcache: compute batch [%d:%d] row count mismatch: got %d, want %d", start, end, len(got), len(batch))
		}
		for i, row := range got {
			if width == -1 {
				width = len(row)
			}
			if len(row) != width || width == 0 {
				return nil, fmt.Errorf("embedcache: row %d width %d inconsistent with %d", start+i, len(row), width)
			}
		}
		rows = append(rows, got...)
	}
	return rows, nil
}

// write persists rows at path under an exclusive lock file, via temp file +
// rename so a partial artifact is never visible.
func (c *Cache) write(path string, rows [][]float32) error {
	unlock, err := c.acquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	art := artifact{CreatedAtUnix: c.now().Unix(), Rows: rows}
	if err := msgpack.NewEncoder(tmp).Encode(&art); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// acquireLock takes an exclusive-create lock file, polling briefly when a
// concurrent build holds it. Bounded wait: a held lock past lockWaitMax fails
// the write (reported, not fatal) rather than blocking the build.
func (c *Cache) acquireLock(lockPath string) (func(), error) {
	deadline := time.Now().Add(lockWaitMax)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held too long", filepath.Base(lockPath))
		}
		time.Sleep(lockPollInterval)
	}
}
