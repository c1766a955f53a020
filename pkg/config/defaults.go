package config

const (
	defaultContextWindow = 4096

	defaultVectorDriver = "memvec"

	defaultQdrantHost = "localhost"
	defaultQdrantPort = 6334

	defaultChromaTarget = "http://localhost:8000"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultVectorWeight   = 0.5
	defaultTextWeight     = 0.5
	defaultPoolMultiplier = 2.0
	defaultMaxResults     = 10

	defaultBudgetEstimator = "heuristic"
	defaultCharsPerToken   = 3.0
	defaultPromptOverhead  = 150
	defaultResponseReserve = 1000

	defaultChunkSize    = 512
	defaultChunkOverlap = 100

	defaultEventsDriver = "nop"
	defaultEventsTopic  = "reels.documents"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Engine: EngineConfig{
			ContextWindow: defaultContextWindow,
		},
		VectorStore: VectorStoreConfig{
			Driver: defaultVectorDriver,
		},
		Qdrant: QdrantConfig{
			Host: defaultQdrantHost,
			Port: defaultQdrantPort,
		},
		Chroma: ChromaConfig{
			Target: defaultChromaTarget,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Retrieval: RetrievalConfig{
			VectorWeight:   defaultVectorWeight,
			TextWeight:     defaultTextWeight,
			PoolMultiplier: defaultPoolMultiplier,
			MaxResults:     defaultMaxResults,
		},
		Budget: BudgetConfig{
			Estimator:       defaultBudgetEstimator,
			CharsPerToken:   defaultCharsPerToken,
			PromptOverhead:  defaultPromptOverhead,
			ResponseReserve: defaultResponseReserve,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    defaultChunkSize,
			ChunkOverlap: defaultChunkOverlap,
		},
		Events: EventsConfig{
			Driver: defaultEventsDriver,
			Topic:  defaultEventsTopic,
		},
	}
}
