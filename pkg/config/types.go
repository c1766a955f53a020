package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent reels configuration stored as config.toml
// in the .reels/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Engine      EngineConfig      `toml:"engine"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Qdrant      QdrantConfig      `toml:"qdrant"`
	Chroma      ChromaConfig      `toml:"chroma"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Budget      BudgetConfig      `toml:"budget"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	Events      EventsConfig      `toml:"events"`
}

// EngineConfig holds engine-wide settings.
type EngineConfig struct {
	ContextWindow int    `toml:"context_window,omitempty"`
	SnapshotsDir  string `toml:"snapshots_dir,omitempty"`
	AutoPersist   bool   `toml:"auto_persist,omitempty"`
}

// VectorStoreConfig selects the vector backend.
type VectorStoreConfig struct {
	// Driver is one of "memvec", "qdrant", or "chroma".
	Driver string `toml:"driver,omitempty"`
}

// QdrantConfig holds connection settings for the qdrant driver.
type QdrantConfig struct {
	Host   string `toml:"host,omitempty"`
	Port   int    `toml:"port,omitempty"`
	APIKey string `toml:"api_key,omitempty"`
	UseTLS bool   `toml:"use_tls,omitempty"`
}

// ChromaConfig holds connection settings for the chroma driver.
type ChromaConfig struct {
	Target string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// RetrievalConfig holds hybrid fusion parameters.
type RetrievalConfig struct {
	VectorWeight   float64 `toml:"vector_weight,omitempty"`
	TextWeight     float64 `toml:"text_weight,omitempty"`
	PoolMultiplier float64 `toml:"pool_multiplier,omitempty"`
	MaxResults     int     `toml:"max_results,omitempty"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	// Estimator is "heuristic" or "tiktoken".
	Estimator       string  `toml:"estimator,omitempty"`
	CharsPerToken   float64 `toml:"chars_per_token,omitempty"`
	Model           string  `toml:"model,omitempty"`
	PromptOverhead  int     `toml:"prompt_overhead,omitempty"`
	ResponseReserve int     `toml:"response_reserve,omitempty"`
}

// ChunkingConfig holds document splitter sizing.
type ChunkingConfig struct {
	ChunkSize    int `toml:"chunk_size,omitempty"`
	ChunkOverlap int `toml:"chunk_overlap,omitempty"`
}

// EventsConfig holds document event publishing settings.
type EventsConfig struct {
	// Driver is "nop" or "kafka".
	Driver  string   `toml:"driver,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.Itoa(*get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			*get(c) = n
			return nil
		},
	}
}

func floatKey(get func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*get(c), 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			*get(c) = f
			return nil
		},
	}
}

func boolKey(get func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*get(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			*get(c) = b
			return nil
		},
	}
}

func stringKey(get func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *get(c) },
		set: func(c *Config, v string) error { *get(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"engine.context_window": intKey(func(c *Config) *int { return &c.Engine.ContextWindow }),
	"engine.snapshots_dir":  stringKey(func(c *Config) *string { return &c.Engine.SnapshotsDir }),
	"engine.auto_persist":   boolKey(func(c *Config) *bool { return &c.Engine.AutoPersist }),

	"vector_store.driver": stringKey(func(c *Config) *string { return &c.VectorStore.Driver }),

	"qdrant.host":    stringKey(func(c *Config) *string { return &c.Qdrant.Host }),
	"qdrant.port":    intKey(func(c *Config) *int { return &c.Qdrant.Port }),
	"qdrant.api_key": stringKey(func(c *Config) *string { return &c.Qdrant.APIKey }),
	"qdrant.use_tls": boolKey(func(c *Config) *bool { return &c.Qdrant.UseTLS }),

	"chroma.target": stringKey(func(c *Config) *string { return &c.Chroma.Target }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"retrieval.vector_weight":   floatKey(func(c *Config) *float64 { return &c.Retrieval.VectorWeight }),
	"retrieval.text_weight":     floatKey(func(c *Config) *float64 { return &c.Retrieval.TextWeight }),
	"retrieval.pool_multiplier": floatKey(func(c *Config) *float64 { return &c.Retrieval.PoolMultiplier }),
	"retrieval.max_results":     intKey(func(c *Config) *int { return &c.Retrieval.MaxResults }),

	"budget.estimator":        stringKey(func(c *Config) *string { return &c.Budget.Estimator }),
	"budget.chars_per_token":  floatKey(func(c *Config) *float64 { return &c.Budget.CharsPerToken }),
	"budget.model":            stringKey(func(c *Config) *string { return &c.Budget.Model }),
	"budget.prompt_overhead":  intKey(func(c *Config) *int { return &c.Budget.PromptOverhead }),
	"budget.response_reserve": intKey(func(c *Config) *int { return &c.Budget.ResponseReserve }),

	"chunking.chunk_size":    intKey(func(c *Config) *int { return &c.Chunking.ChunkSize }),
	"chunking.chunk_overlap": intKey(func(c *Config) *int { return &c.Chunking.ChunkOverlap }),

	"events.driver": stringKey(func(c *Config) *string { return &c.Events.Driver }),
	"events.topic":  stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			var brokers []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			c.Events.Brokers = brokers
			return nil
		},
	},
}
