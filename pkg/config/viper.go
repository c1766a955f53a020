package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/reels/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the REELS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (REELS_VECTOR_STORE_DRIVER, REELS_QDRANT_HOST, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: REELS_EMBEDDING_MODEL, REELS_EVENTS_BROKERS, etc.
	v.SetEnvPrefix("REELS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Engine
	v.SetDefault("engine.context_window", d.Engine.ContextWindow)
	v.SetDefault("engine.snapshots_dir", d.Engine.SnapshotsDir)
	v.SetDefault("engine.auto_persist", d.Engine.AutoPersist)

	// Vector store
	v.SetDefault("vector_store.driver", d.VectorStore.Driver)

	// Qdrant
	v.SetDefault("qdrant.host", d.Qdrant.Host)
	v.SetDefault("qdrant.port", d.Qdrant.Port)
	v.SetDefault("qdrant.api_key", d.Qdrant.APIKey)
	v.SetDefault("qdrant.use_tls", d.Qdrant.UseTLS)

	// Chroma
	v.SetDefault("chroma.target", d.Chroma.Target)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Retrieval
	v.SetDefault("retrieval.vector_weight", d.Retrieval.VectorWeight)
	v.SetDefault("retrieval.text_weight", d.Retrieval.TextWeight)
	v.SetDefault("retrieval.pool_multiplier", d.Retrieval.PoolMultiplier)
	v.SetDefault("retrieval.max_results", d.Retrieval.MaxResults)

	// Budget
	v.SetDefault("budget.estimator", d.Budget.Estimator)
	v.SetDefault("budget.chars_per_token", d.Budget.CharsPerToken)
	v.SetDefault("budget.model", d.Budget.Model)
	v.SetDefault("budget.prompt_overhead", d.Budget.PromptOverhead)
	v.SetDefault("budget.response_reserve", d.Budget.ResponseReserve)

	// Chunking
	v.SetDefault("chunking.chunk_size", d.Chunking.ChunkSize)
	v.SetDefault("chunking.chunk_overlap", d.Chunking.ChunkOverlap)

	// Events
	v.SetDefault("events.driver", d.Events.Driver)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}

// FromViper materializes a Config from the viper precedence chain.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Engine: EngineConfig{
			ContextWindow: v.GetInt("engine.context_window"),
			SnapshotsDir:  v.GetString("engine.snapshots_dir"),
			AutoPersist:   v.GetBool("engine.auto_persist"),
		},
		VectorStore: VectorStoreConfig{
			Driver: v.GetString("vector_store.driver"),
		},
		Qdrant: QdrantConfig{
			Host:   v.GetString("qdrant.host"),
			Port:   v.GetInt("qdrant.port"),
			APIKey: v.GetString("qdrant.api_key"),
			UseTLS: v.GetBool("qdrant.use_tls"),
		},
		Chroma: ChromaConfig{
			Target: v.GetString("chroma.target"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Retrieval: RetrievalConfig{
			VectorWeight:   v.GetFloat64("retrieval.vector_weight"),
			TextWeight:     v.GetFloat64("retrieval.text_weight"),
			PoolMultiplier: v.GetFloat64("retrieval.pool_multiplier"),
			MaxResults:     v.GetInt("retrieval.max_results"),
		},
		Budget: BudgetConfig{
			Estimator:       v.GetString("budget.estimator"),
			CharsPerToken:   v.GetFloat64("budget.chars_per_token"),
			Model:           v.GetString("budget.model"),
			PromptOverhead:  v.GetInt("budget.prompt_overhead"),
			ResponseReserve: v.GetInt("budget.response_reserve"),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    v.GetInt("chunking.chunk_size"),
			ChunkOverlap: v.GetInt("chunking.chunk_overlap"),
		},
		Events: EventsConfig{
			Driver:  v.GetString("events.driver"),
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		},
	}
	return cfg
}
