package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/axonworks/cortexd/internal/bus"
	"github.com/axonworks/cortexd/internal/memory"
	"github.com/axonworks/cortexd/internal/store"
)

// Tags stamped on a memory once its embedding is stored.
var vectorizedTags = []string{"processed", "ai-vectorized"}

// Vectorizer consumes memory-ingested events and backfills embeddings.
// Processing is idempotent, so redelivery after a crash is harmless.
type Vectorizer struct {
	engine   *store.Engine
	stream   *bus.Stream
	embedder memory.Embedder
	group    string
	block    time.Duration

	// retryDelay spaces out re-polls after a failed read or handle.
	// A pending entry is redelivered immediately, so without the delay
	// a down embedding provider would busy-spin on the same entry.
	retryDelay time.Duration
}

func NewVectorizer(engine *store.Engine, stream *bus.Stream, embedder memory.Embedder, group string, block time.Duration) *Vectorizer {
	return &Vectorizer{
		engine:     engine,
		stream:     stream,
		embedder:   embedder,
		group:      group,
		block:      block,
		retryDelay: 5 * time.Second,
	}
}

// Run consumes the stream until the context is cancelled. A failed
// entry stays unacknowledged and is redelivered; the loop never exits
// on a single iteration's error.
func (v *Vectorizer) Run(ctx context.Context) error {
	if err := v.stream.EnsureGroup(ctx, v.group); err != nil {
		return fmt.Errorf("ensure group %s: %w", v.group, err)
	}
	log.Printf("[vectorizer] listening on group %s", v.group)

	for {
		entry, err := v.stream.ReadGroup(ctx, v.group, v.block)
		if ctx.Err() != nil {
			log.Printf("[vectorizer] stopped")
			return nil
		}
		if err != nil {
			log.Printf("[vectorizer] read failed: %v", err)
			v.pause(ctx)
			continue
		}
		if entry == nil {
			continue
		}

		if err := v.handle(ctx, entry); err != nil {
			log.Printf("[vectorizer] entry %d left for redelivery: %v", entry.ID, err)
			v.pause(ctx)
			continue
		}
		if err := v.stream.Ack(ctx, v.group, entry.ID); err != nil {
			log.Printf("[vectorizer] ack %d failed: %v", entry.ID, err)
		}
	}
}

// pause waits out the retry delay unless the context ends first.
func (v *Vectorizer) pause(ctx context.Context) {
	timer := time.NewTimer(v.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (v *Vectorizer) handle(ctx context.Context, entry *bus.Event) error {
	if entry.Event != bus.EventMemoryIngested {
		log.Printf("[vectorizer] skipping event %s", entry.Event)
		return nil
	}

	var payload bus.MemoryIngestedPayload
	if err := json.Unmarshal(entry.Data, &payload); err != nil {
		// Malformed payloads never become valid; drop instead of
		// redelivering forever.
		log.Printf("[vectorizer] drop malformed entry %d: %v", entry.ID, err)
		return nil
	}

	vec, err := v.embedder.Embed(ctx, payload.Content)
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", payload.ID, err)
	}
	blob, err := memory.EncodeVector(vec)
	if err != nil {
		return fmt.Errorf("encode vector for %s: %w", payload.ID, err)
	}
	if err := v.engine.SetMemoryVector(ctx, payload.ID, blob, vectorizedTags); err != nil {
		return fmt.Errorf("store vector for %s: %w", payload.ID, err)
	}
	log.Printf("[vectorizer] memory %s vectorized (%d dims)", payload.ID, len(vec))
	return nil
}
