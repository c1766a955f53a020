// Package chunk turns documents into indexable nodes.
//
// The splitter is chosen per document from the split_type metadata key:
// "code" documents are split along language-specific boundaries (the language
// metadata key is required), everything else goes through the prose splitter.
package chunk

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	// MetadataSplitType selects the splitter ("code" or prose default).
	MetadataSplitType = "split_type"

	// MetadataLanguage names the programming language for code splitting.
	MetadataLanguage = "language"

	// SplitTypeCode is the split_type value requesting the code splitter.
	SplitTypeCode = "code"

	// DefaultChunkSize is the default chunk size in characters.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the default overlap between adjacent chunks.
	DefaultChunkOverlap = 100
)

// proseSeparators splits on paragraph, then sentence, then word boundaries.
var proseSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// codeSeparators maps a language to the boundaries its splitter prefers.
// Languages not listed fall back to genericCodeSeparators.
var codeSeparators = map[string][]string{
	"go":         {"\nfunc ", "\ntype ", "\nvar ", "\nconst ", "\n\n", "\n", " ", ""},
	"python":     {"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ", ""},
	"javascript": {"\nfunction ", "\nconst ", "\nclass ", "\n\n", "\n", " ", ""},
	"typescript": {"\nfunction ", "\nconst ", "\nclass ", "\ninterface ", "\n\n", "\n", " ", ""},
	"java":       {"\nclass ", "\npublic ", "\nprivate ", "\nprotected ", "\n\n", "\n", " ", ""},
	"rust":       {"\nfn ", "\nimpl ", "\nstruct ", "\nenum ", "\n\n", "\n", " ", ""},
	"c":          {"\nvoid ", "\nint ", "\nstruct ", "\n\n", "\n", " ", ""},
	"cpp":        {"\nvoid ", "\nint ", "\nclass ", "\nstruct ", "\n\n", "\n", " ", ""},
}

var genericCodeSeparators = []string{"\n\n", "\n", " ", ""}

// Config holds splitter sizing.
type Config struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the overlap between adjacent chunks in characters.
	ChunkOverlap int
}

// Transformer splits documents into nodes, caching one splitter per language.
type Transformer struct {
	chunkSize    int
	chunkOverlap int

	prose textsplitter.RecursiveCharacter

	mu   sync.Mutex
	code map[string]textsplitter.RecursiveCharacter
}

// NewTransformer creates a transformer with the given sizing. Zero values
// fall back to the defaults.
func NewTransformer(cfg Config) *Transformer {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}

	return &Transformer{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		prose: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(proseSeparators),
		),
		code: make(map[string]textsplitter.RecursiveCharacter),
	}
}

// Split chunks the document into nodes owned by docID. Each node gets a
// fresh UUID and inherits the document's metadata.
func (t *Transformer) Split(doc document.Document, docID string) ([]vector.Node, error) {
	splitter, err := t.splitterFor(doc.Metadata)
	if err != nil {
		return nil, err
	}

	chunks, err := splitter.SplitText(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("splitting document %s: %w", docID, err)
	}

	nodes := make([]vector.Node, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		nodes = append(nodes, vector.Node{
			ID:       uuid.NewString(),
			DocID:    docID,
			Text:     chunk,
			Metadata: cloneMetadata(doc.Metadata),
		})
	}
	return nodes, nil
}

func (t *Transformer) splitterFor(metadata map[string]string) (textsplitter.RecursiveCharacter, error) {
	if metadata[MetadataSplitType] != SplitTypeCode {
		return t.prose, nil
	}

	language, ok := metadata[MetadataLanguage]
	if !ok || language == "" {
		return textsplitter.RecursiveCharacter{}, ErrMissingLanguage
	}
	return t.codeSplitter(language), nil
}

func (t *Transformer) codeSplitter(language string) textsplitter.RecursiveCharacter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if splitter, ok := t.code[language]; ok {
		return splitter
	}

	separators, ok := codeSeparators[language]
	if !ok {
		separators = genericCodeSeparators
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(t.chunkSize),
		textsplitter.WithChunkOverlap(t.chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
	t.code[language] = splitter
	return splitter
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
