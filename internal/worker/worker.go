// Package worker runs the background loops: the job claim loop, the
// stream vectorizer and the scheduled consolidation jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/axonworks/cortexd/internal/bus"
	"github.com/axonworks/cortexd/internal/lobe"
	"github.com/axonworks/cortexd/internal/memory"
	"github.com/axonworks/cortexd/internal/notify"
	"github.com/axonworks/cortexd/internal/router"
	"github.com/axonworks/cortexd/internal/store"
)

// Notifier is the push surface the worker reports outcomes to.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload any)
}

type Worker struct {
	engine   *store.Engine
	stream   *bus.Stream
	router   *router.Router
	registry *lobe.Registry
	modes    *lobe.ModeSet
	recall   memory.Recaller
	notifier Notifier
	interval time.Duration
}

func New(engine *store.Engine, stream *bus.Stream, r *router.Router, registry *lobe.Registry, modes *lobe.ModeSet, recall memory.Recaller, notifier Notifier, interval time.Duration) *Worker {
	if modes == nil {
		modes = lobe.NewModeSet()
	}
	return &Worker{
		engine:   engine,
		stream:   stream,
		router:   r,
		registry: registry,
		modes:    modes,
		recall:   recall,
		notifier: notifier,
		interval: interval,
	}
}

// Run polls for pending jobs until the context is cancelled. Each tick
// drains at most one job.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[worker] started, interval %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker] stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick claims and processes one pending job, if any.
func (w *Worker) Tick(ctx context.Context) {
	job, err := w.engine.ClaimPending(ctx)
	if errors.Is(err, store.ErrNoPending) {
		return
	}
	if err != nil {
		log.Printf("[worker] claim failed: %v", err)
		return
	}

	log.Printf("[worker] processing request %s (user %s)", job.ID, job.UserID)
	output, err := w.process(ctx, job)
	if err != nil {
		if failErr := w.engine.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			log.Printf("[worker] record failure for %s: %v", job.ID, failErr)
			return
		}
		w.notifier.Notify(ctx, job.UserID, notify.EventBrainError, map[string]any{
			"requestId": job.ID,
			"error":     err.Error(),
		})
		return
	}

	if err := w.engine.CompleteJob(ctx, job.ID, output); err != nil {
		log.Printf("[worker] record completion for %s: %v", job.ID, err)
		return
	}

	mem, err := w.engine.AddMemory(ctx, store.AddMemoryParams{
		UserID:      job.UserID,
		WorkspaceID: job.WorkspaceID,
		Content:     output,
		Context:     job.Query,
		Types:       store.MemoryAnswer,
		BrainReqID:  job.ID,
	})
	if err != nil {
		log.Printf("[worker] derive memory for %s: %v", job.ID, err)
	} else {
		w.stream.Publish(ctx, bus.EventMemoryIngested, bus.MemoryIngestedPayload{
			ID:      mem.ID,
			UserID:  mem.UserID,
			Content: mem.Content,
		})
	}

	w.notifier.Notify(ctx, job.UserID, notify.EventBrainDone, map[string]any{
		"requestId": job.ID,
		"lobe":      job.SelectedLobe,
		"output":    output,
	})
	log.Printf("[worker] completed request %s", job.ID)
}

// process builds context, routes and executes a claimed job. Any
// returned error marks the job failed.
func (w *Worker) process(ctx context.Context, job *store.BrainRequest) (string, error) {
	user, err := w.engine.GetUser(ctx, job.UserID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	var memories []store.Memory
	if user.MemoryEnabled && job.Query != "" {
		memories, err = w.recall.Recall(ctx, job.UserID, job.Query)
		if err != nil {
			return "", fmt.Errorf("recall for %s: %w", job.ID, err)
		}
	}

	var file *store.File
	var fileContent string
	if job.FileID != "" {
		file, err = w.engine.GetFile(ctx, job.FileID)
		if err != nil {
			return "", fmt.Errorf("load file %s: %w", job.FileID, err)
		}
		if file.Storage == store.StorageLocal && isTextMime(file.MimeType) {
			data, err := os.ReadFile(file.Path)
			if err != nil {
				return "", fmt.Errorf("read file %s: %w", file.Path, err)
			}
			fileContent = string(data)
		}
	}

	decision := w.router.Route(ctx, router.Input{
		Query:         job.Query,
		FileMime:      fileMime(file),
		Requested:     lobe.Kind(job.RequestedLobe),
		MemoryEnabled: user.MemoryEnabled,
		VisionEnabled: user.VisionEnabled,
	})
	job.SelectedLobe = string(decision.Lobe)
	if err := w.engine.SetRouting(ctx, job.ID, string(decision.Lobe), decision.Reason, decision.Confidence); err != nil {
		log.Printf("[worker] record routing for %s: %v", job.ID, err)
	}

	return w.registry.Process(ctx, decision.Lobe, lobe.Input{
		Query:          job.Query,
		Mode:           job.Mode,
		ModePrompt:     w.modes.Prompt(job.Mode),
		TargetLanguage: job.TargetLanguage,
		MemoryContext:  memory.ContextText(memories),
		FileContent:    fileContent,
		File:           file,
		User:           user,
	})
}

func fileMime(f *store.File) string {
	if f == nil {
		return ""
	}
	return f.MimeType
}

func isTextMime(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "application/x-yaml":
		return true
	}
	return false
}
