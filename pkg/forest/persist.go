package forest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// indexFormatVersion is written into saved index files. On load, a different
// version fails with ErrCorruptIndexState (caller rebuilds).
const indexFormatVersion = "1.0.0"

// indexSnapshot is the serializable form of the index (msgpack).
type indexSnapshot struct {
	Version  string      `msgpack:"version"`
	Dim      int         `msgpack:"dim"`
	Count    int         `msgpack:"count"`
	Trees    []tree      `msgpack:"trees"`
	Vectors  [][]float32 `msgpack:"vectors"`
	LeafSize int         `msgpack:"leaf_size"`
}

// Save writes the index to path as one msgpack artifact. The parent directory
// is created if needed; the file is written to a temp name and renamed into
// place so a partial artifact is never visible.
func (i *Index) Save(path string) error {
	if i == nil || !i.built {
		return ErrNotBuilt
	}
	snap := indexSnapshot{
		Version:  indexFormatVersion,
		Dim:      i.dim,
		Count:    len(i.vectors),
		Trees:    i.trees,
		Vectors:  i.vectors,
		LeafSize: i.opts.LeafSize,
	}
	return writeMsgpackAtomic(path, &snap)
}

// Load reads an index saved by Save. The loaded index answers queries
// identically to the saved one (deterministic replay, not byte-identical
// layout). Unreadable, mismatched-version, or internally inconsistent
// artifacts fail with ErrCorruptIndexState.
func Load(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open index %s: %v", ErrCorruptIndexState, path, err)
	}
	defer file.Close()

	var snap indexSnapshot
	if err := msgpack.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode index %s: %v", ErrCorruptIndexState, path, err)
	}
	if snap.Version != indexFormatVersion {
		return nil, fmt.Errorf("%w: index format %q, want %q", ErrCorruptIndexState, snap.Version, indexFormatVersion)
	}
	if snap.Dim <= 0 || snap.Count != len(snap.Vectors) || len(snap.Trees) == 0 {
		return nil, fmt.Errorf("%w: inconsistent index snapshot (dim=%d count=%d vectors=%d trees=%d)",
			ErrCorruptIndexState, snap.Dim, snap.Count, len(snap.Vectors), len(snap.Trees))
	}
	for _, v := range snap.Vectors {
		if len(v) != snap.Dim {
			return nil, fmt.Errorf("%w: stored vector dim %d, want %d", ErrCorruptIndexState, len(v), snap.Dim)
		}
	}

	opts := Options{LeafSize: snap.LeafSize}.withDefaults()
	return &Index{
		dim:     snap.Dim,
		trees:   snap.Trees,
		vectors: snap.Vectors,
		opts:    opts,
		built:   true,
	}, nil
}

// IDMap is the bijection between index positions (0..N-1) and catalog item
// ids. It is created atomically with the index it describes and read-only
// after build.
type IDMap struct {
	ids []string
	dim int
}

// NewIDMap creates an IDMap where position i maps to ids[i]. dim records the
// aligned vector dimension of the paired index.
func NewIDMap(ids []string, dim int) *IDMap {
	cp := make([]string, len(ids))
	copy(cp, ids)
	return &IDMap{ids: cp, dim: dim}
}

// Resolve returns the catalog id for a position.
func (m *IDMap) Resolve(position int) (string, bool) {
	if position < 0 || position >= len(m.ids) {
		return "", false
	}
	return m.ids[position], true
}

// Len returns the number of mapped positions.
func (m *IDMap) Len() int { return len(m.ids) }

// Dim returns the aligned vector dimension recorded at build time.
func (m *IDMap) Dim() int { return m.dim }

// idMapRecord is the sidecar wire form: positions as string keys, plus the
// vector dimension of the paired index.
type idMapRecord struct {
	IDMap map[string]string `msgpack:"id_map"`
	Dim   int               `msgpack:"dim"`
}

// Save writes the id-map sidecar to path (temp file + rename).
func (m *IDMap) Save(path string) error {
	rec := idMapRecord{
		IDMap: make(map[string]string, len(m.ids)),
		Dim:   m.dim,
	}
	for i, id := range m.ids {
		rec.IDMap[strconv.Itoa(i)] = id
	}
	return writeMsgpackAtomic(path, &rec)
}

// LoadIDMap reads an id-map sidecar written by Save. The record must cover
// dense positions 0..N-1 exactly; gaps or duplicates fail with
// ErrCorruptIndexState.
func LoadIDMap(path string) (*IDMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open id map %s: %v", ErrCorruptIndexState, path, err)
	}
	defer file.Close()

	var rec idMapRecord
	if err := msgpack.NewDecoder(file).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode id map %s: %v", ErrCorruptIndexState, path, err)
	}
	if rec.Dim <= 0 {
		return nil, fmt.Errorf("%w: id map has invalid dim %d", ErrCorruptIndexState, rec.Dim)
	}
	ids := make([]string, len(rec.IDMap))
	for key, id := range rec.IDMap {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 || pos >= len(ids) {
			return nil, fmt.Errorf("%w: id map position %q out of range 0..%d", ErrCorruptIndexState, key, len(ids)-1)
		}
		if ids[pos] != "" {
			return nil, fmt.Errorf("%w: duplicate id map position %d", ErrCorruptIndexState, pos)
		}
		ids[pos] = id
	}
	return &IDMap{ids: ids, dim: rec.Dim}, nil
}

// LoadPair loads an index and its id-map sidecar together, verifying that
// they came from the same build: vector counts and dimensions must agree.
// Loading one without the other fails with ErrCorruptIndexState.
func LoadPair(indexPath, idMapPath string) (*Index, *IDMap, error) {
	idx, err := Load(indexPath)
	if err != nil {
		return nil, nil, err
	}
	m, err := LoadIDMap(idMapPath)
	if err != nil {
		return nil, nil, err
	}
	if m.Len() != idx.Len() {
		return nil, nil, fmt.Errorf("%w: id map has %d positions, index has %d vectors",
			ErrCorruptIndexState, m.Len(), idx.Len())
	}
	if m.Dim() != idx.Dim() {
		return nil, nil, fmt.Errorf("%w: id map dim %d, index dim %d",
			ErrCorruptIndexState, m.Dim(), idx.Dim())
	}
	return idx, m, nil
}

// writeMsgpackAtomic creates parent directories, encodes snapshot to a temp
// file in the target directory, and renames it into place.
func writeMsgpackAtomic(path string, snapshot any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(tmp).Encode(snapshot); err != nil {
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
