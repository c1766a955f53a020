package retriever

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/papercomputeco/reels/pkg/vector"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Index is an in-memory keyword index over nodes. It is rebuilt from the
// vector backend on restore and kept in step with it on every write.
type BM25Index struct {
	mu sync.RWMutex

	// entries holds the indexed nodes keyed by node id.
	entries map[string]*bm25Entry

	// byDoc groups node ids by owning document for removal.
	byDoc map[string][]string

	// df counts how many nodes contain each term.
	df map[string]int

	totalTerms int
}

type bm25Entry struct {
	node vector.Node

	// tf counts term occurrences in the node text.
	tf map[string]int

	length int
}

// NewBM25Index creates an empty keyword index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		entries: make(map[string]*bm25Entry),
		byDoc:   make(map[string][]string),
		df:      make(map[string]int),
	}
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Add indexes the given nodes. Nodes already present are re-indexed.
func (idx *BM25Index) Add(nodes []vector.Node) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, node := range nodes {
		if _, ok := idx.entries[node.ID]; ok {
			idx.removeEntry(node.ID)
		}

		terms := tokenize(node.Text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}

		idx.entries[node.ID] = &bm25Entry{node: node, tf: tf, length: len(terms)}
		idx.byDoc[node.DocID] = append(idx.byDoc[node.DocID], node.ID)
		for term := range tf {
			idx.df[term]++
		}
		idx.totalTerms += len(terms)
	}
}

// RemoveDoc drops every node belonging to docID.
func (idx *BM25Index) RemoveDoc(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, nodeID := range idx.byDoc[docID] {
		idx.removeEntry(nodeID)
	}
	delete(idx.byDoc, docID)
}

// removeEntry drops one node. Callers must hold the write lock. The byDoc
// slice is left to be cleaned up by RemoveDoc or Reset.
func (idx *BM25Index) removeEntry(nodeID string) {
	entry, ok := idx.entries[nodeID]
	if !ok {
		return
	}
	for term := range entry.tf {
		idx.df[term]--
		if idx.df[term] <= 0 {
			delete(idx.df, term)
		}
	}
	idx.totalTerms -= entry.length
	delete(idx.entries, nodeID)
}

// Reset clears the index.
func (idx *BM25Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]*bm25Entry)
	idx.byDoc = make(map[string][]string)
	idx.df = make(map[string]int)
	idx.totalTerms = 0
}

// Count returns the number of indexed nodes.
func (idx *BM25Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

// scored pairs a node with its BM25 score.
type scored struct {
	node  vector.Node
	score float64
}

// Search returns up to topK nodes ranked by BM25 score, best first. Nodes
// scoring zero are omitted.
func (idx *BM25Index) Search(query string, topK int) []scored {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if topK <= 0 || len(idx.entries) == 0 {
		return nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(idx.entries))
	avgLen := float64(idx.totalTerms) / n

	var results []scored
	for _, entry := range idx.entries {
		score := entry.score(terms, n, avgLen, idx.df)
		if score > 0 {
			results = append(results, scored{node: entry.node, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].node.ID < results[j].node.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SearchNodes returns the ranked nodes themselves, best first.
func (idx *BM25Index) SearchNodes(query string, topK int) []vector.Node {
	hits := idx.Search(query, topK)
	nodes := make([]vector.Node, 0, len(hits))
	for _, hit := range hits {
		nodes = append(nodes, hit.node)
	}
	return nodes
}

func (e *bm25Entry) score(terms []string, n, avgLen float64, df map[string]int) float64 {
	var score float64
	dl := float64(e.length)
	for _, term := range terms {
		tf := float64(e.tf[term])
		if tf == 0 {
			continue
		}
		idf := logIDF(n, float64(df[term]))
		denom := tf + bm25K1*(1-bm25B+bm25B*dl/avgLen)
		score += idf * tf * (bm25K1 + 1) / denom
	}
	return score
}
