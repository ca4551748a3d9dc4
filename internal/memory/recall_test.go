package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/axonworks/cortexd/internal/store"
)

func newTestEngine(t *testing.T) *store.Engine {
	t.Helper()
	eng, err := store.NewEngine(filepath.Join(t.TempDir(), "cortexd.db"))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestLexicalRecall(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	for _, content := range []string{
		"golang channels are typed conduits",
		"golang interfaces are satisfied implicitly",
		"cooking pasta takes ten minutes",
	} {
		if _, err := eng.AddMemory(ctx, store.AddMemoryParams{UserID: "u1", Content: content}); err != nil {
			t.Fatalf("AddMemory: %v", err)
		}
	}
	if _, err := eng.AddMemory(ctx, store.AddMemoryParams{UserID: "u2", Content: "golang for someone else"}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	r := &LexicalRecall{Engine: eng}
	got, err := r.Recall(ctx, "u1", "golang concurrency patterns")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.UserID != "u1" {
			t.Fatalf("leaked memory for user %q", m.UserID)
		}
	}
}

func TestLexicalRecallEmptyQuery(t *testing.T) {
	r := &LexicalRecall{Engine: newTestEngine(t)}
	got, err := r.Recall(context.Background(), "u1", "   ")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

func TestVectorRecallRanksBySimilarity(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"close":    {1, 0.1},
		"far":      {0, 1},
		"closest":  {1, 0},
		"opposite": {-1, 0},
	}
	for name, vec := range vectors {
		mem, err := eng.AddMemory(ctx, store.AddMemoryParams{UserID: "u1", Content: name})
		if err != nil {
			t.Fatalf("AddMemory: %v", err)
		}
		blob, err := EncodeVector(vec)
		if err != nil {
			t.Fatalf("EncodeVector: %v", err)
		}
		if err := eng.SetMemoryVector(ctx, mem.ID, blob, nil); err != nil {
			t.Fatalf("SetMemoryVector: %v", err)
		}
	}
	// not vectorized, must be ignored
	if _, err := eng.AddMemory(ctx, store.AddMemoryParams{UserID: "u1", Content: "plain"}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	r := &VectorRecall{Engine: eng, Embedder: &stubEmbedder{vec: []float32{1, 0}}}
	got, err := r.Recall(ctx, "u1", "anything")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Content != "closest" {
		t.Fatalf("top = %q, want closest", got[0].Content)
	}
	if got[1].Content != "close" {
		t.Fatalf("second = %q, want close", got[1].Content)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatalf("results not ordered by similarity at %d", i)
		}
	}
}

func TestVectorRecallCapsResults(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < vectorLimit+3; i++ {
		mem, err := eng.AddMemory(ctx, store.AddMemoryParams{UserID: "u1", Content: fmt.Sprintf("note %d", i)})
		if err != nil {
			t.Fatalf("AddMemory: %v", err)
		}
		blob, err := EncodeVector([]float32{1, float32(i)})
		if err != nil {
			t.Fatalf("EncodeVector: %v", err)
		}
		if err := eng.SetMemoryVector(ctx, mem.ID, blob, nil); err != nil {
			t.Fatalf("SetMemoryVector: %v", err)
		}
	}

	r := &VectorRecall{Engine: eng, Embedder: &stubEmbedder{vec: []float32{1, 1}}}
	got, err := r.Recall(ctx, "u1", "anything")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) != vectorLimit {
		t.Fatalf("len = %d, want %d", len(got), vectorLimit)
	}
}

func TestContextText(t *testing.T) {
	got := ContextText([]store.Memory{
		{Content: "plain note"},
		{Context: "what is go", Content: "a language"},
	})
	want := "plain note\nwhat is go: a language"
	if got != want {
		t.Fatalf("ContextText = %q, want %q", got, want)
	}
	if ContextText(nil) != "" {
		t.Fatal("empty input must yield empty string")
	}
}
