package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/axonworks/cortexd/internal/bus"
	"github.com/axonworks/cortexd/internal/lobe"
	"github.com/axonworks/cortexd/internal/notify"
	"github.com/axonworks/cortexd/internal/store"
)

const (
	dreamRecentWindow = 24 * time.Hour
	dreamRecentLimit  = 1
	dreamOlderLimit   = 2
)

// Dreamer consolidates memories overnight: it links one recent memory
// with a sample of older ones and saves the insight as a new summary
// memory.
type Dreamer struct {
	engine   *store.Engine
	stream   *bus.Stream
	runtime  lobe.Runtime
	notifier Notifier
}

func NewDreamer(engine *store.Engine, stream *bus.Stream, runtime lobe.Runtime, notifier Notifier) *Dreamer {
	return &Dreamer{engine: engine, stream: stream, runtime: runtime, notifier: notifier}
}

type dreamInsight struct {
	Title   string `json:"title"`
	Insight string `json:"insight"`
	Action  string `json:"action"`
}

// RunAll dreams for every user that has memories. Failures are logged
// per user and never abort the cycle.
func (d *Dreamer) RunAll(ctx context.Context) {
	users, err := d.engine.MemoryOwners(ctx)
	if err != nil {
		log.Printf("[dreamer] list users: %v", err)
		return
	}
	log.Printf("[dreamer] found %d potential dreamers", len(users))
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if err := d.dream(ctx, userID); err != nil {
			log.Printf("[dreamer] user %s: %v", userID, err)
		}
	}
}

func (d *Dreamer) dream(ctx context.Context, userID string) error {
	cutoff := time.Now().UTC().Add(-dreamRecentWindow)
	recent, err := d.engine.RecentMemories(ctx, userID, cutoff, dreamRecentLimit)
	if err != nil {
		return fmt.Errorf("load recent memories: %w", err)
	}
	older, err := d.engine.SampleOlderMemories(ctx, userID, cutoff, dreamOlderLimit)
	if err != nil {
		return fmt.Errorf("sample older memories: %w", err)
	}
	if len(recent) == 0 && len(older) == 0 {
		return nil
	}

	recentText := "RECENT EXPERIENCE: None (user was inactive)"
	if len(recent) > 0 {
		recentText = "RECENT EXPERIENCE: " + recent[0].Content
	}
	var pastParts []string
	for _, m := range older {
		pastParts = append(pastParts, "PAST KNOWLEDGE: "+m.Content)
	}

	prompt := fmt.Sprintf(`You are the subconscious mind of a digital brain. You are dreaming.
Input:
1. %s
2. %s

Connect the recent experience to past knowledge. Anchor new learning
to old concepts, highlight contradictions. Be poetic and insightful.
Output JSON only:
{"title": "short dream title", "insight": "two sentences connecting the dots", "action": "one creative suggestion"}`,
		recentText, strings.Join(pastParts, "\n"))

	raw, err := lobe.Complete(ctx, d.runtime, prompt, nil)
	if err != nil {
		return fmt.Errorf("generate dream: %w", err)
	}

	insight := parseDream(raw)
	body, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("marshal dream: %w", err)
	}

	mem, err := d.engine.AddMemory(ctx, store.AddMemoryParams{
		UserID:  userID,
		Content: string(body),
		Context: insight.Title,
		Types:   store.MemorySummary,
		Tags:    []string{"dream"},
	})
	if err != nil {
		return fmt.Errorf("save dream: %w", err)
	}
	d.stream.Publish(ctx, bus.EventMemoryIngested, bus.MemoryIngestedPayload{
		ID:      mem.ID,
		UserID:  userID,
		Content: mem.Content,
	})
	d.notifier.Notify(ctx, userID, notify.EventBrainDream, map[string]any{
		"event":    "morning_insight",
		"data":     insight,
		"memoryId": mem.ID,
	})
	log.Printf("[dreamer] dream generated for %s: %q", userID, insight.Title)
	return nil
}

// parseDream tolerates fenced or non-JSON model output.
func parseDream(raw string) dreamInsight {
	clean := strings.TrimSpace(raw)
	clean = strings.ReplaceAll(clean, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var insight dreamInsight
	if err := json.Unmarshal([]byte(clean), &insight); err != nil || insight.Insight == "" {
		return dreamInsight{
			Title:   "A Fragmented Dream",
			Insight: clean,
			Action:  "Reflect on this",
		}
	}
	return insight
}
