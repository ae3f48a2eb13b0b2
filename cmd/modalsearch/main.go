// Command modalsearch drives the product search core from the shell:
//
//	modalsearch seed  -file products.json   load catalog records into badger
//	modalsearch build                       build the ANN index from the catalog
//	modalsearch search -text "red shoe"     query the index
//
// Configuration comes from MODALSEARCH_* environment variables, with an
// optional .env file loaded first.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/orneryd/modalsearch/pkg/catalog"
	"github.com/orneryd/modalsearch/pkg/config"
	"github.com/orneryd/modalsearch/pkg/embed"
	"github.com/orneryd/modalsearch/pkg/embedcache"
	"github.com/orneryd/modalsearch/pkg/forest"
	"github.com/orneryd/modalsearch/pkg/fusion"
	"github.com/orneryd/modalsearch/pkg/pipeline"
	"github.com/orneryd/modalsearch/pkg/searcher"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "seed":
		err = runSeed(ctx, cfg, os.Args[2:])
	case "build":
		err = runBuild(ctx, cfg, os.Args[2:])
	case "search":
		err = runSearch(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: modalsearch <seed|build|search> [flags]")
	fmt.Fprintln(os.Stderr, "  seed   -file <products.json>")
	fmt.Fprintln(os.Stderr, "  build")
	fmt.Fprintln(os.Stderr, "  search -text <query> [-image <ref>] [-k <n>]")
}

func runSeed(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "products.json", "catalog JSON file to load")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := catalog.OpenBadger(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := catalog.SeedFromJSON(ctx, store, *file)
	if err != nil {
		return err
	}
	log.Printf("✅ seeded %d items from %s", n, *file)
	return nil
}

func runBuild(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	all := fs.Bool("all", false, "index the whole catalog instead of the configured sample")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := catalog.OpenBadger(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	text, image, err := modalityEncoders(cfg)
	if err != nil {
		return err
	}
	cache, err := embedcache.New(embedcache.Config{
		Dir:       cfg.CacheDir,
		TTL:       cfg.CacheTTL,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return err
	}
	aligner, err := fusion.NewAligner(cfg.TextDim, cfg.ImageDim)
	if err != nil {
		return err
	}

	sample := cfg.SampleSize
	if *all {
		sample = 0
	}
	b := &pipeline.Builder{
		Store:      store,
		Text:       text,
		Image:      image,
		Cache:      cache,
		Aligner:    aligner,
		NumTrees:   cfg.NumTrees,
		LeafSize:   cfg.LeafSize,
		SampleSize: sample,
		IndexPath:  cfg.IndexPath,
		IDMapPath:  cfg.IDMapPath,
	}
	_, err = b.Build(ctx)
	return err
}

func runSearch(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	text := fs.String("text", "", "query text")
	image := fs.String("image", "", "query image reference")
	k := fs.Int("k", searcher.DefaultK, "number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *text == "" && *image == "" {
		return errors.New("search needs -text or -image")
	}

	store, err := catalog.OpenBadger(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	index, idMap, err := forest.LoadPair(cfg.IndexPath, cfg.IDMapPath)
	if err != nil {
		return fmt.Errorf("load index (did you run build?): %w", err)
	}

	encoder, err := queryEncoder(cfg)
	if err != nil {
		return err
	}
	svc, err := searcher.New(index, idMap, store, encoder)
	if err != nil {
		return err
	}
	svc.BudgetFactor = cfg.SearchKFactor
	search := searcher.WithLogging(svc.Search)

	results, err := search(ctx, searcher.Query{Text: *text, ImageRef: *image, K: *k})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %-30s %-12s $%.2f  (distance %.4f)\n",
			i+1, r.Item.Name, r.Item.Category, r.Item.Price, r.Distance)
	}
	return nil
}

// modalityEncoders picks the per-modality encoders used at build time. Text
// prefers a hosted embeddings API when a key is present; images always go
// through the inference server's image model.
func modalityEncoders(cfg config.Config) (embed.TextEncoder, embed.ImageEncoder, error) {
	var text embed.TextEncoder
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		enc, err := embed.NewOpenAITextEncoder(key, cfg.OpenAIModel, cfg.TextDim)
		if err != nil {
			return nil, nil, err
		}
		text = enc
	} else {
		enc, err := embed.NewRemoteTextEncoder(cfg.InferenceURL, cfg.TextModel, cfg.TextDim, cfg.InferTimeout)
		if err != nil {
			return nil, nil, err
		}
		text = enc
	}

	image, err := embed.NewRemoteImageEncoder(cfg.InferenceURL, cfg.ImageModel, cfg.ImageDim, cfg.InferTimeout)
	if err != nil {
		return nil, nil, err
	}
	return text, image, nil
}

// queryEncoder picks the aligned encoder variant for search, driven purely by
// configuration.
func queryEncoder(cfg config.Config) (embed.AlignedEncoder, error) {
	switch cfg.Encoder {
	case config.EncoderRemote:
		return embed.NewRemoteEncoder(cfg.InferenceURL, cfg.InferenceModel, cfg.AlignedDim(), cfg.InferTimeout)
	case config.EncoderLocal:
		text, image, err := modalityEncoders(cfg)
		if err != nil {
			return nil, err
		}
		aligner, err := fusion.NewAligner(cfg.TextDim, cfg.ImageDim)
		if err != nil {
			return nil, err
		}
		return embed.NewLocalEncoder(text, image, aligner)
	default:
		return nil, fmt.Errorf("unknown encoder mode %q", cfg.Encoder)
	}
}
