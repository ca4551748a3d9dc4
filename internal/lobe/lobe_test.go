package lobe

import (
	"context"
	"testing"
)

type echoProcessor struct{}

func (echoProcessor) Process(_ context.Context, in Input) (string, error) {
	return "echo: " + in.Query, nil
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"frontal", Frontal, true},
		{"temporal", Temporal, true},
		{"parietal", Parietal, true},
		{"occipital", Occipital, true},
		{"auto", Auto, true},
		{"cerebellum", "", false},
		{"", "", false},
		{"Frontal", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKind(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Frontal, echoProcessor{})

	got, err := reg.Process(context.Background(), Frontal, Input{Query: "plan"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "echo: plan" {
		t.Errorf("got %q", got)
	}
}

func TestRegistryUnregisteredLobe(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Frontal, echoProcessor{})

	got, err := reg.Process(context.Background(), Occipital, Input{Query: "see"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != NotImplementedResult {
		t.Errorf("got %q, want sentinel", got)
	}
}

func TestKindsExcludesAuto(t *testing.T) {
	for _, k := range Kinds() {
		if k == Auto {
			t.Error("auto is a routing directive, not a dispatchable lobe")
		}
	}
	if len(Kinds()) != 4 {
		t.Errorf("len = %d, want 4", len(Kinds()))
	}
}
