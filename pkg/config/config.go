// Package config centralizes the environment-driven configuration surface.
//
// Nothing in the core resolves configuration from ambient state: FromEnv
// builds one Config and callers inject it (or pieces of it) explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/orneryd/modalsearch/pkg/envutil"
)

// EncoderMode selects which aligned-encoder variant serves queries.
type EncoderMode string

const (
	// EncoderLocal computes per-modality embeddings in process and fuses them.
	EncoderLocal EncoderMode = "local"
	// EncoderRemote delegates to an inference server hosting the aligned model.
	EncoderRemote EncoderMode = "remote"
)

// Config holds every tunable of the build pipeline and search orchestrator.
type Config struct {
	// ANN index
	NumTrees      int
	LeafSize      int
	IndexPath     string
	IDMapPath     string
	SampleSize    int
	SearchKFactor int // scales the query candidate budget; 0 uses the engine default

	// Embedding cache
	CacheDir  string
	CacheTTL  time.Duration
	BatchSize int

	// Modality dimensions (fixed constants of the deployed encoders)
	TextDim  int
	ImageDim int

	// Encoders
	Encoder        EncoderMode
	InferenceURL   string
	InferenceModel string
	TextModel      string
	ImageModel     string
	InferTimeout   time.Duration
	OpenAIModel    string

	// Catalog
	DataDir string
}

// FromEnv reads MODALSEARCH_* variables, applying defaults for anything unset.
func FromEnv() Config {
	return Config{
		NumTrees:      envutil.GetInt("MODALSEARCH_NUM_TREES", 10),
		LeafSize:      envutil.GetInt("MODALSEARCH_LEAF_SIZE", 16),
		IndexPath:     envutil.Get("MODALSEARCH_INDEX_PATH", "data/index/ann"),
		IDMapPath:     envutil.Get("MODALSEARCH_IDMAP_PATH", "data/index/idmap"),
		SampleSize:    envutil.GetInt("MODALSEARCH_SAMPLE_SIZE", 10),
		SearchKFactor: envutil.GetInt("MODALSEARCH_SEARCH_K_FACTOR", 0),

		CacheDir:  envutil.Get("MODALSEARCH_CACHE_DIR", "data/cache"),
		CacheTTL:  envutil.GetDurationOrDays("MODALSEARCH_CACHE_TTL", 30*24*time.Hour),
		BatchSize: envutil.GetInt("MODALSEARCH_BATCH_SIZE", 32),

		TextDim:  envutil.GetInt("MODALSEARCH_TEXT_DIM", 768),
		ImageDim: envutil.GetInt("MODALSEARCH_IMAGE_DIM", 768),

		Encoder:        EncoderMode(envutil.Get("MODALSEARCH_ENCODER", string(EncoderLocal))),
		InferenceURL:   envutil.Get("MODALSEARCH_INFERENCE_URL", "http://localhost:8000"),
		InferenceModel: envutil.Get("MODALSEARCH_INFERENCE_MODEL", "aligned"),
		TextModel:      envutil.Get("MODALSEARCH_TEXT_MODEL", "text_encoder"),
		ImageModel:     envutil.Get("MODALSEARCH_IMAGE_MODEL", "image_encoder"),
		InferTimeout:   envutil.GetDuration("MODALSEARCH_INFER_TIMEOUT", 30*time.Second),
		OpenAIModel:    envutil.Get("MODALSEARCH_OPENAI_MODEL", "text-embedding-3-small"),

		DataDir: envutil.Get("MODALSEARCH_DATA_DIR", "data/catalog"),
	}
}

// Validate checks invariants that would otherwise surface deep inside a build.
func (c Config) Validate() error {
	if c.NumTrees <= 0 {
		return fmt.Errorf("config: NumTrees must be positive, got %d", c.NumTrees)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("config: SampleSize must be positive, got %d", c.SampleSize)
	}
	if c.TextDim <= 0 || c.ImageDim <= 0 {
		return fmt.Errorf("config: modality dimensions must be positive (text=%d image=%d)", c.TextDim, c.ImageDim)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: BatchSize must be positive, got %d", c.BatchSize)
	}
	if c.SearchKFactor < 0 {
		return fmt.Errorf("config: SearchKFactor must not be negative, got %d", c.SearchKFactor)
	}
	switch c.Encoder {
	case EncoderLocal, EncoderRemote:
	default:
		return fmt.Errorf("config: unknown encoder mode %q", c.Encoder)
	}
	if c.Encoder == EncoderRemote && c.InferenceURL == "" {
		return fmt.Errorf("config: remote encoder requires MODALSEARCH_INFERENCE_URL")
	}
	return nil
}

// AlignedDim returns the fused vector dimension.
func (c Config) AlignedDim() int { return c.TextDim + c.ImageDim }
