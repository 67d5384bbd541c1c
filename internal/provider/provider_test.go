package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

type handle struct{ name string }

func TestProvider_AbsentUntilBuilt(t *testing.T) {
	release := make(chan struct{})
	p := New(func(ctx context.Context) (*handle, error) {
		<-release
		return &handle{name: "h"}, nil
	}, quiet)

	if _, ok := p.Get(); ok {
		t.Fatalf("handle present before Start")
	}
	p.Start(context.Background())
	if _, ok := p.Get(); ok {
		t.Fatalf("handle present before builder returned")
	}
	close(release)
	<-p.Done()

	h, ok := p.Get()
	if !ok || h.name != "h" {
		t.Fatalf("Get = %+v, %v", h, ok)
	}
	if p.Err() != nil {
		t.Fatalf("Err = %v", p.Err())
	}
}

func TestProvider_BuildsOnceForConcurrentConsumers(t *testing.T) {
	var builds atomic.Int32
	p := New(func(ctx context.Context) (*handle, error) {
		builds.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &handle{}, nil
	}, quiet)

	var wg sync.WaitGroup
	got := make([]*handle, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.Wait(context.Background())
			if err != nil {
				t.Errorf("Wait: %v", err)
				return
			}
			got[i] = h
		}(i)
	}
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Fatalf("builder ran %d times, want 1", n)
	}
	for i := range got {
		if got[i] != got[0] {
			t.Fatalf("consumer %d saw a different handle", i)
		}
	}
}

func TestProvider_FailureIsSticky(t *testing.T) {
	boom := errors.New("bad endpoint")
	p := New(func(ctx context.Context) (*handle, error) { return nil, boom }, quiet)

	if _, err := p.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait err = %v, want %v", err, boom)
	}
	p.Start(context.Background())
	if _, ok := p.Get(); ok {
		t.Fatalf("handle present after failure")
	}
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("Err = %v", p.Err())
	}
}

func TestProvider_TimeoutBoundsConstruction(t *testing.T) {
	p := New(func(ctx context.Context) (*handle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, Options{Timeout: 20 * time.Millisecond, Logger: quiet.Logger})

	p.Start(context.Background())
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("construction did not time out")
	}
	if !errors.Is(p.Err(), context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", p.Err())
	}
}

func TestProvider_WaitRespectsCallerContext(t *testing.T) {
	p := New(func(ctx context.Context) (*handle, error) {
		select {}
	}, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Wait err = %v, want ErrNotReady", err)
	}
}

func TestReady_IsImmediatelyAvailable(t *testing.T) {
	p := Ready(&handle{name: "x"})
	select {
	case <-p.Done():
	default:
		t.Fatalf("Done not closed")
	}
	if h, ok := p.Get(); !ok || h.name != "x" {
		t.Fatalf("Get = %+v, %v", h, ok)
	}
	p.Start(context.Background())
}
