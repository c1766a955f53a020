// Package setup wires a retrieval engine from resolved configuration. Every
// reels subcommand that touches an engine goes through BuildEngine so the
// driver selection and defaulting logic lives in exactly one place.
package setup

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/reels/pkg/budget"
	"github.com/papercomputeco/reels/pkg/chunk"
	"github.com/papercomputeco/reels/pkg/config"
	"github.com/papercomputeco/reels/pkg/dotdir"
	"github.com/papercomputeco/reels/pkg/embeddings"
	"github.com/papercomputeco/reels/pkg/embeddings/ollama"
	"github.com/papercomputeco/reels/pkg/engine"
	"github.com/papercomputeco/reels/pkg/eventstream"
	"github.com/papercomputeco/reels/pkg/eventstream/kafka"
	"github.com/papercomputeco/reels/pkg/eventstream/nop"
	"github.com/papercomputeco/reels/pkg/retriever"
	"github.com/papercomputeco/reels/pkg/vector"
	"github.com/papercomputeco/reels/pkg/vector/chromavec"
	"github.com/papercomputeco/reels/pkg/vector/memvec"
	"github.com/papercomputeco/reels/pkg/vector/qdrantvec"
)

// BuildEngine constructs a fully wired engine from the resolved config.
// The caller owns the returned engine and must Close it.
func BuildEngine(cfg *config.Config, configDir string, logger *zap.Logger) (*engine.Engine, error) {
	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	estimator, err := buildEstimator(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	snapshotsDir, err := resolveSnapshotsDir(cfg, configDir)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Options{
		Backend:  backend,
		Embedder: embedder,
		Transformer: chunk.NewTransformer(chunk.Config{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		}),
		Filter: budget.NewFilter(estimator, budget.Config{
			PromptOverhead:  cfg.Budget.PromptOverhead,
			ResponseReserve: cfg.Budget.ResponseReserve,
		}, logger),
		Publisher: publisher,
		Retriever: retriever.Config{
			VectorWeight:   cfg.Retrieval.VectorWeight,
			TextWeight:     cfg.Retrieval.TextWeight,
			PoolMultiplier: cfg.Retrieval.PoolMultiplier,
		},
		ContextWindow: cfg.Engine.ContextWindow,
		SnapshotsDir:  snapshotsDir,
		AutoPersist:   cfg.Engine.AutoPersist,
	}, logger)
}

func buildBackend(cfg *config.Config, logger *zap.Logger) (vector.Backend, error) {
	switch cfg.VectorStore.Driver {
	case "", "memvec":
		return memvec.New(logger), nil

	case "qdrant":
		return qdrantvec.New(qdrantvec.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		}, logger)

	case "chroma":
		return chromavec.New(chromavec.Config{
			URL: cfg.Chroma.Target,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown vector store driver: %q (available: memvec, qdrant, chroma)", cfg.VectorStore.Driver)
	}
}

func buildEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "", "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    cfg.Embedding.Target,
			Model:      cfg.Embedding.Model,
			Dimensions: int(cfg.Embedding.Dimensions),
		})

	default:
		return nil, fmt.Errorf("unknown embedding provider: %q (available: ollama)", cfg.Embedding.Provider)
	}
}

func buildEstimator(cfg *config.Config) (budget.Estimator, error) {
	switch cfg.Budget.Estimator {
	case "", "heuristic":
		return budget.NewHeuristic(cfg.Budget.CharsPerToken), nil

	case "tiktoken":
		if cfg.Budget.Model == "" {
			return nil, fmt.Errorf("budget.model is required for the tiktoken estimator")
		}
		return budget.NewTiktoken(cfg.Budget.Model)

	default:
		return nil, fmt.Errorf("unknown budget estimator: %q (available: heuristic, tiktoken)", cfg.Budget.Estimator)
	}
}

func buildPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown events driver: %q (available: nop, kafka)", cfg.Events.Driver)
	}
}

// resolveSnapshotsDir prefers the configured directory and falls back to the
// snapshots/ subdirectory of the resolved .reels/ directory.
func resolveSnapshotsDir(cfg *config.Config, configDir string) (string, error) {
	if cfg.Engine.SnapshotsDir != "" {
		return cfg.Engine.SnapshotsDir, nil
	}
	return dotdir.NewManager().SnapshotsDir(configDir)
}

// LoadConfig resolves the effective config for a command: defaults, then
// config.toml, then REELS_ environment variables.
func LoadConfig(configDir string) (*config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	return config.FromViper(v), nil
}
