package server

import (
	"context"
	"sync"

	"github.com/kestrelworks/mailsync/internal/pipeline"
)

// Runner starts one extraction run and reports its outcome.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

// ServerContext holds shared state for the HTTP service: the pipeline
// runner and the shutdown lifecycle.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	runner   Runner
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context wrapping the given runner.
func NewServerContext(ctx context.Context, runner Runner) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		runner: runner,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Runner returns the pipeline runner.
func (sc *ServerContext) Runner() Runner {
	return sc.runner
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context. Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
