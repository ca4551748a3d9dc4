// Package brain wires the pipeline together: store, stream, router,
// lobes, recall, notification sinks, the worker loops and the HTTP
// surface.
package brain

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/axonworks/cortexd/internal/bus"
	"github.com/axonworks/cortexd/internal/config"
	"github.com/axonworks/cortexd/internal/lobe"
	"github.com/axonworks/cortexd/internal/memory"
	"github.com/axonworks/cortexd/internal/notify"
	"github.com/axonworks/cortexd/internal/router"
	"github.com/axonworks/cortexd/internal/server"
	"github.com/axonworks/cortexd/internal/store"
	"github.com/axonworks/cortexd/internal/worker"
)

// Options for creating a Brain.
type Options struct {
	Runtime    lobe.Runtime   // for testing; nil builds the default runtime
	SignalChan chan os.Signal // for testing signal handling
}

type Brain struct {
	cfg        *config.Config
	engine     *store.Engine
	stream     *bus.Stream
	runtime    lobe.Runtime
	hub        *notify.Hub
	manager    *notify.Manager
	worker     *worker.Worker
	vectorizer *worker.Vectorizer
	scheduler  *worker.Scheduler
	server     *server.Server
	signalChan chan os.Signal
}

func New(cfg *config.Config) (*Brain, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Brain, error) {
	engine, err := store.NewEngine(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	stream, err := bus.NewStream(engine.DB())
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	rt := opts.Runtime
	if rt == nil {
		rt, err = lobe.NewRuntime(cfg, "You are the cortex of a digital brain.")
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("create runtime: %w", err)
		}
	}

	registry := lobe.NewRegistry()
	registry.Register(lobe.Frontal, &lobe.FrontalProcessor{Runtime: rt})
	registry.Register(lobe.Temporal, &lobe.TemporalProcessor{Runtime: rt})
	registry.Register(lobe.Parietal, &lobe.ParietalProcessor{Runtime: rt})
	registry.Register(lobe.Occipital, &lobe.OccipitalProcessor{Runtime: rt})

	modes, err := lobe.LoadModes(filepath.Join(config.ConfigDir(), "modes"))
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("load modes: %w", err)
	}

	embedder := memory.NewEmbedder(cfg)
	var recall memory.Recaller
	if cfg.Memory.RecallMode == "vector" && cfg.Memory.Embedding.Enabled {
		recall = &memory.VectorRecall{Engine: engine, Embedder: embedder}
	} else {
		recall = &memory.LexicalRecall{Engine: engine}
	}
	log.Printf("[brain] recall mode: %T", recall)

	hub := notify.NewHub()
	manager := notify.NewManager(hub)
	if cfg.Notify.Telegram.Enabled {
		sink, err := notify.NewTelegramSink(cfg.Notify.Telegram)
		if err != nil {
			log.Printf("[brain] telegram sink disabled: %v", err)
		} else {
			manager.Add(sink)
		}
	}

	rtr := router.New(&router.LLMArbiter{Runtime: rt})

	interval := time.Duration(cfg.Worker.IntervalSec) * time.Second
	w := worker.New(engine, stream, rtr, registry, modes, recall, manager, interval)

	v := worker.NewVectorizer(engine, stream, embedder, cfg.Worker.StreamGroup,
		time.Duration(cfg.Worker.StreamBlockMs)*time.Millisecond)

	sched := worker.NewScheduler(engine, manager,
		time.Duration(cfg.Worker.ReapAfterMin)*time.Minute)

	srv := server.New(engine, stream, hub, modes, cfg.Server.Port)

	return &Brain{
		cfg:        cfg,
		engine:     engine,
		stream:     stream,
		runtime:    rt,
		hub:        hub,
		manager:    manager,
		worker:     w,
		vectorizer: v,
		scheduler:  sched,
		server:     srv,
		signalChan: opts.SignalChan,
	}, nil
}

// Run starts every loop and blocks until the context is cancelled or a
// shutdown signal arrives.
func (b *Brain) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dreamer *worker.Dreamer
	if b.cfg.Worker.DreamsEnabled {
		dreamer = worker.NewDreamer(b.engine, b.stream, b.runtime, b.manager)
	}
	if err := b.scheduler.Register(ctx, dreamer, b.cfg.Worker.DreamCron, b.cfg.Worker.ReviewCron); err != nil {
		return fmt.Errorf("register schedules: %w", err)
	}

	go b.worker.Run(ctx)
	go func() {
		if err := b.vectorizer.Run(ctx); err != nil {
			log.Printf("[brain] vectorizer exited: %v", err)
		}
	}()
	b.scheduler.Start()
	b.server.Start()
	log.Printf("[brain] pipeline running")

	sigChan := b.signalChan
	if sigChan == nil {
		sigChan = make(chan os.Signal, 1)
	}
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Printf("[brain] received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	cancel()
	return b.Shutdown()
}

// Shutdown stops the loops and releases resources.
func (b *Brain) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[brain] server shutdown: %v", err)
	}
	b.scheduler.Stop()
	b.hub.Close()
	b.runtime.Close()
	if err := b.engine.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	log.Printf("[brain] shutdown complete")
	return nil
}
