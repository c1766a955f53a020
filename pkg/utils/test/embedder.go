package testutils

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
)

// MockEmbedder is a test embedder that returns predictable embeddings.
// Unless overridden, a text's embedding is a unit vector derived from its
// SHA-256, so identical text always embeds identically.
type MockEmbedder struct {
	// Dimensions sizes the derived embeddings.
	Dimensions int

	// Embeddings overrides the derived embedding for exact texts.
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches.
	FailOn string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Dimensions: 8,
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	sum := sha256.Sum256([]byte(text))
	emb := make([]float32, m.Dimensions)
	var norm float64
	for i := range emb {
		emb[i] = float32(sum[i%len(sum)]) / 255.0
		norm += float64(emb[i]) * float64(emb[i])
	}
	norm = math.Sqrt(norm)
	for i := range emb {
		emb[i] = float32(float64(emb[i]) / norm)
	}
	return emb, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}
