package lobe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
)

type scriptedRuntime struct {
	errs     []error
	output   string
	requests []api.Request
}

func (s *scriptedRuntime) Run(_ context.Context, req api.Request) (*api.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &api.Response{Result: &api.Result{Output: s.output}}, nil
}

func (s *scriptedRuntime) Close() {}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"429 Too Many Requests", true},
		{"quota exceeded for project", true},
		{"503 Service Unavailable", true},
		{"Overloaded", true},
		{"rate limit reached, retry in 2", true},
		{"invalid api key", false},
		{"connection refused", false},
	}
	for _, tt := range tests {
		if got := isTransient(errors.New(tt.err)); got != tt.want {
			t.Errorf("isTransient(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		err  string
		want time.Duration
	}{
		{"429, retry in 2", 3 * time.Second},
		{"rate limit, Retry in 2.5 seconds", 3500 * time.Millisecond},
		{"overloaded", defaultRetryDelay},
	}
	for _, tt := range tests {
		if got := retryDelay(errors.New(tt.err)); got != tt.want {
			t.Errorf("retryDelay(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCompleteReturnsOutput(t *testing.T) {
	rt := &scriptedRuntime{output: "done"}

	got, err := Complete(context.Background(), rt, "think about it", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "done" {
		t.Errorf("got %q", got)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("runs = %d, want 1", len(rt.requests))
	}
	if rt.requests[0].Prompt != "think about it" {
		t.Errorf("prompt = %q", rt.requests[0].Prompt)
	}
}

func TestCompleteMergesPromptIntoBlocks(t *testing.T) {
	rt := &scriptedRuntime{output: "seen"}
	blocks := []model.ContentBlock{{
		Type:      model.ContentBlockImage,
		MediaType: "image/png",
		Data:      "aGk=",
	}}

	_, err := Complete(context.Background(), rt, "describe this", blocks)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	req := rt.requests[0]
	if req.Prompt != "" {
		t.Errorf("prompt should be folded into blocks, got %q", req.Prompt)
	}
	if len(req.ContentBlocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(req.ContentBlocks))
	}
	if req.ContentBlocks[0].Type != model.ContentBlockText || req.ContentBlocks[0].Text != "describe this" {
		t.Errorf("first block = %+v", req.ContentBlocks[0])
	}
	if req.ContentBlocks[1].Type != model.ContentBlockImage {
		t.Errorf("second block = %+v", req.ContentBlocks[1])
	}
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	rt := &scriptedRuntime{
		errs:   []error{errors.New("429 rate limit, retry in 0"), nil},
		output: "recovered",
	}

	got, err := Complete(context.Background(), rt, "q", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q", got)
	}
	if len(rt.requests) != 2 {
		t.Errorf("runs = %d, want 2", len(rt.requests))
	}
}

func TestCompleteDoesNotRetryPermanentErrors(t *testing.T) {
	rt := &scriptedRuntime{errs: []error{errors.New("invalid api key")}}

	_, err := Complete(context.Background(), rt, "q", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rt.requests) != 1 {
		t.Errorf("runs = %d, want 1 (no retry)", len(rt.requests))
	}
}

func TestCompleteHonorsCancellation(t *testing.T) {
	rt := &scriptedRuntime{errs: []error{errors.New("overloaded")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Complete(ctx, rt, "q", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
