// Package provider holds a lazily constructed, shared client handle.
//
// A Provider starts absent, is built at most once, and after that either
// holds the handle for good or holds the construction error for good. There
// is no re-initialization path: callers that need a fresh handle create a
// new Provider.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotReady is returned by Wait when the handle is still absent.
var ErrNotReady = errors.New("client not ready")

// Builder constructs the handle. It runs once, on its own goroutine.
type Builder[T any] func(ctx context.Context) (T, error)

type Options struct {
	// Timeout bounds construction. Zero means no bound beyond the Start ctx.
	Timeout time.Duration
	// Logger is used for lifecycle logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type Provider[T any] struct {
	build   Builder[T]
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	value T
	ok    bool
	err   error
}

func New[T any](build Builder[T], opts Options) *Provider[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider[T]{
		build:   build,
		timeout: opts.Timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Ready wraps an already-built handle.
func Ready[T any](v T) *Provider[T] {
	p := New[T](nil, Options{})
	p.once.Do(func() {
		p.value, p.ok = v, true
		close(p.done)
	})
	return p
}

// Start kicks off construction. Only the first call has any effect.
func (p *Provider[T]) Start(ctx context.Context) {
	p.once.Do(func() {
		go p.run(ctx)
	})
}

func (p *Provider[T]) run(ctx context.Context) {
	defer close(p.done)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := p.build(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.err = err
		p.logger.Error("client construction failed", "error", err, "elapsed", time.Since(start))
		return
	}
	p.value, p.ok = v, true
	p.logger.Info("client ready", "elapsed", time.Since(start))
}

// Get returns the handle and true once it is ready; the zero value and false
// before that or after a failed construction.
func (p *Provider[T]) Get() (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value, p.ok
}

// Err returns the construction error, if construction failed.
func (p *Provider[T]) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Done is closed once construction has finished, successfully or not.
func (p *Provider[T]) Done() <-chan struct{} {
	return p.done
}

// Wait starts construction if needed and blocks until it settles or ctx ends.
func (p *Provider[T]) Wait(ctx context.Context) (T, error) {
	p.Start(context.WithoutCancel(ctx))
	select {
	case <-p.done:
	case <-ctx.Done():
		var zero T
		return zero, errors.Join(ErrNotReady, ctx.Err())
	}
	if v, ok := p.Get(); ok {
		return v, nil
	}
	var zero T
	return zero, p.Err()
}
