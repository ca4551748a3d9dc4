package lobe

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/axonworks/cortexd/internal/config"
)

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// NewRuntime creates the default agentsdk-go runtime for the configured
// provider.
func NewRuntime(cfg *config.Config, sysPrompt string) (Runtime, error) {
	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Provider.Model,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Provider.Model,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ModelFactory: provider,
		SystemPrompt: sysPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

const (
	maxCompletionRetries = 3
	defaultRetryDelay    = 10 * time.Second
)

var retryDelayPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)`)

// isTransient reports whether a provider error is a rate-limit or
// overload condition worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit")
}

// retryDelay extracts the provider-suggested wait from the error text,
// falling back to a fixed delay.
func retryDelay(err error) time.Duration {
	m := retryDelayPattern.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(m) == 2 {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			return time.Duration(secs*float64(time.Second)) + time.Second
		}
	}
	return defaultRetryDelay
}

// Complete runs a single prompt through the runtime, retrying transient
// provider failures with the suggested backoff.
func Complete(ctx context.Context, rt Runtime, prompt string, blocks []model.ContentBlock) (string, error) {
	// agentsdk-go drops Prompt when ContentBlocks exist, so fold the
	// text prompt into the block list.
	if len(blocks) > 0 && strings.TrimSpace(prompt) != "" {
		merged := make([]model.ContentBlock, 0, len(blocks)+1)
		merged = append(merged, model.ContentBlock{Type: model.ContentBlockText, Text: prompt})
		merged = append(merged, blocks...)
		blocks = merged
		prompt = ""
	}

	var lastErr error
	for attempt := 0; attempt <= maxCompletionRetries; attempt++ {
		resp, err := rt.Run(ctx, api.Request{
			Prompt:        prompt,
			ContentBlocks: blocks,
		})
		if err == nil {
			if resp == nil || resp.Result == nil {
				return "", nil
			}
			return resp.Result.Output, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == maxCompletionRetries {
			break
		}
		delay := retryDelay(err)
		log.Printf("[lobe] transient provider error, retrying in %s: %v", delay, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}
