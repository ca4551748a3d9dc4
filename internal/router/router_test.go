package router

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/axonworks/cortexd/internal/lobe"
)

func TestRuleLobe(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fileMime string
		want     lobe.Kind
	}{
		{"image mime wins over query", "summarize this", "image/png", lobe.Occipital},
		{"pdf mime routes temporal", "hello", "application/pdf", lobe.Temporal},
		{"document mime routes temporal", "hello", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", lobe.Temporal},
		{"visual keywords", "read image of my whiteboard", "", lobe.Occipital},
		{"summarize keyword", "summarize the meeting", "", lobe.Temporal},
		{"planning keyword", "plan my week", "", lobe.Frontal},
		{"recall keyword", "what did i write yesterday", "", lobe.Parietal},
		{"default frontal", "fi", "", lobe.Frontal},
		{"empty query with file", "", "image/jpeg", lobe.Occipital},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleLobe(tt.query, tt.fileMime)
			if got != tt.want {
				t.Fatalf("ruleLobe(%q, %q) = %q, want %q", tt.query, tt.fileMime, got, tt.want)
			}
		})
	}
}

func TestClassifyConfidence(t *testing.T) {
	in := Input{Query: "remember and recall my memory", MemoryEnabled: true, VisionEnabled: true}
	got := classify(in)
	if got.Lobe != lobe.Parietal {
		t.Fatalf("lobe = %q, want parietal", got.Lobe)
	}
	// three family hits: remember, recall, memory
	if math.Abs(got.Confidence-0.8) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.8", got.Confidence)
	}
}

func TestClassifyFallsBackToRule(t *testing.T) {
	in := Input{Query: "fi", MemoryEnabled: true, VisionEnabled: true}
	got := classify(in)
	if got.Lobe != lobe.Frontal {
		t.Fatalf("lobe = %q, want frontal", got.Lobe)
	}
	if got.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6", got.Confidence)
	}
	if got.Reason == "" {
		t.Fatal("reason must not be empty")
	}
}

func TestCapabilityGating(t *testing.T) {
	t.Run("memory disabled discards parietal", func(t *testing.T) {
		in := Input{Query: "recall my memory notes", MemoryEnabled: false, VisionEnabled: true}
		got := classify(in)
		if got.Lobe == lobe.Parietal {
			t.Fatal("gated classifier must not return parietal")
		}
		if got.Confidence != 0.5 {
			t.Fatalf("confidence = %v, want 0.5", got.Confidence)
		}
	})
	t.Run("vision disabled discards occipital", func(t *testing.T) {
		in := Input{Query: "look at this image photo", MemoryEnabled: true, VisionEnabled: false}
		got := classify(in)
		if got.Lobe == lobe.Occipital {
			t.Fatal("gated classifier must not return occipital")
		}
		if got.Confidence != 0.5 {
			t.Fatalf("confidence = %v, want 0.5", got.Confidence)
		}
	})
	t.Run("route never re-selects a gated rule lobe", func(t *testing.T) {
		// The gated decision sits below the arbitration gate, so the
		// rule stage runs again; it must not bring parietal back.
		r := New(nil)
		got := r.Route(context.Background(), Input{
			Query: "recall my memory notes", MemoryEnabled: false, VisionEnabled: true,
		})
		if got.Lobe == lobe.Parietal {
			t.Fatal("routed lobe must not be parietal with memory disabled")
		}
	})
	t.Run("arbiter cannot override into a gated lobe", func(t *testing.T) {
		r := New(&stubArbiter{kind: lobe.Occipital, reason: "looks visual"})
		got := r.Route(context.Background(), Input{
			Query: "plan my day", MemoryEnabled: true, VisionEnabled: false,
		})
		if got.Lobe == lobe.Occipital {
			t.Fatal("routed lobe must not be occipital with vision disabled")
		}
	})
}

func TestRouteArbitrationGate(t *testing.T) {
	r := New(nil)
	// One classifier hit gives 0.6, below the gate, so the rule stage
	// decides. "extract" scores temporal in both stages.
	got := r.Route(context.Background(), Input{
		Query: "extract the numbers", MemoryEnabled: true, VisionEnabled: true,
	})
	if got.Lobe != lobe.Temporal {
		t.Fatalf("lobe = %q, want temporal", got.Lobe)
	}
	if got.Confidence >= 0.7 {
		t.Fatalf("confidence = %v, want below gate", got.Confidence)
	}
}

func TestRouteExplicitRequest(t *testing.T) {
	r := New(nil)
	got := r.Route(context.Background(), Input{
		Query: "summarize everything", Requested: lobe.Occipital,
		MemoryEnabled: true, VisionEnabled: true,
	})
	if got.Lobe != lobe.Occipital {
		t.Fatalf("lobe = %q, want occipital", got.Lobe)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", got.Confidence)
	}
}

type stubArbiter struct {
	kind   lobe.Kind
	reason string
	err    error
}

func (s *stubArbiter) Arbitrate(_ context.Context, _ string, _ lobe.Kind) (lobe.Kind, string, error) {
	return s.kind, s.reason, s.err
}

func TestRouteArbiter(t *testing.T) {
	t.Run("override adopted", func(t *testing.T) {
		r := New(&stubArbiter{kind: lobe.Temporal, reason: "comprehension task"})
		got := r.Route(context.Background(), Input{Query: "plan my day", MemoryEnabled: true, VisionEnabled: true})
		if got.Lobe != lobe.Temporal {
			t.Fatalf("lobe = %q, want temporal", got.Lobe)
		}
		if got.Reason != "comprehension task" {
			t.Fatalf("reason = %q", got.Reason)
		}
	})
	t.Run("error leaves preliminary choice", func(t *testing.T) {
		r := New(&stubArbiter{err: errors.New("model unavailable")})
		got := r.Route(context.Background(), Input{Query: "plan my day", MemoryEnabled: true, VisionEnabled: true})
		if got.Lobe != lobe.Frontal {
			t.Fatalf("lobe = %q, want frontal", got.Lobe)
		}
	})
}
