// Package memory provides recall strategies and vector plumbing over
// the store. Recall hands callers ordered content-bearing records,
// never raw vectors.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/axonworks/cortexd/internal/store"
)

const (
	lexicalLimit     = 5
	vectorLimit      = 4
	vectorCandidates = 50
)

// Recaller returns prior memories relevant to a query, most relevant
// first.
type Recaller interface {
	Recall(ctx context.Context, userID, query string) ([]store.Memory, error)
}

// LexicalRecall matches the query's first token as a substring, most
// recent first.
type LexicalRecall struct {
	Engine *store.Engine
}

func (r *LexicalRecall) Recall(ctx context.Context, userID, query string) ([]store.Memory, error) {
	token := firstToken(query)
	if token == "" {
		return nil, nil
	}
	return r.Engine.SearchMemories(ctx, userID, token, lexicalLimit)
}

func firstToken(query string) string {
	for _, f := range strings.Fields(query) {
		return f
	}
	return ""
}

// VectorRecall embeds the query and ranks a candidate pool of
// vectorized memories by cosine similarity.
type VectorRecall struct {
	Engine   *store.Engine
	Embedder Embedder
}

type scoredMemory struct {
	mem   store.Memory
	score float64
}

func (r *VectorRecall) Recall(ctx context.Context, userID, query string) ([]store.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	queryVec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall: embed query: %w", err)
	}

	candidates, err := r.Engine.VectorCandidates(ctx, userID, vectorCandidates)
	if err != nil {
		return nil, fmt.Errorf("recall: load candidates: %w", err)
	}

	scored := make([]scoredMemory, 0, len(candidates))
	for _, m := range candidates {
		vec, err := DecodeVector(m.Vector)
		if err != nil {
			log.Printf("[memory] skip memory %s: %v", m.ID, err)
			continue
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			log.Printf("[memory] skip memory %s: %v", m.ID, err)
			continue
		}
		scored = append(scored, scoredMemory{mem: m, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > vectorLimit {
		scored = scored[:vectorLimit]
	}

	out := make([]store.Memory, len(scored))
	for i, s := range scored {
		out[i] = s.mem
		out[i].Similarity = s.score
	}
	return out, nil
}

// ContextText flattens recalled memories into the text handed to a
// lobe prompt.
func ContextText(memories []store.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	parts := make([]string, 0, len(memories))
	for _, m := range memories {
		if m.Context != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", m.Context, m.Content))
		} else {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}
