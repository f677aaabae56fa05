package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// queued counts jobs waiting in the channel or the per-user queues.
func queued(d *Dispatcher) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.JobQueue)
	for _, q := range d.queues {
		n += len(q.jobs)
	}
	return n
}

func TestDispatcherRunsJob(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4}, nil)
	defer d.Stop()

	ran := false
	if err := d.Do(context.Background(), "u1", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !ran {
		t.Fatalf("job did not run")
	}

	want := errors.New("boom")
	if err := d.Do(context.Background(), "u1", func(ctx context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4}, nil)
	defer d.Stop()

	err := d.Do(context.Background(), "u1", func(ctx context.Context) error { panic("bad job") })
	if err == nil {
		t.Fatalf("expected panic to become an error")
	}
	// the worker must survive
	if err := d.Do(context.Background(), "u1", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("worker did not survive panic: %v", err)
	}
}

func TestDispatcherFairAcrossUsers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 16}, nil)
	defer d.Stop()

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	gate := make(chan struct{})
	started := make(chan struct{})
	submit := func(user, name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Do(context.Background(), user, fn); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}()
	}

	submit("a", "a1", func(ctx context.Context) error {
		close(started)
		<-gate
		return record("a1")(ctx)
	})
	<-started

	// a2 is taken by the loop and held until the single worker frees up
	submit("a", "a2", record("a2"))
	waitFor(t, func() bool { return d.pending.Load() == 1 && queued(d) == 0 })
	for i, name := range []string{"a3", "a4"} {
		submit("a", name, record(name))
		want := i + 1
		waitFor(t, func() bool { return queued(d) == want })
	}
	submit("b", "b1", record("b1"))
	waitFor(t, func() bool { return queued(d) == 3 })

	close(gate)
	wg.Wait()

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 jobs, got %v", order)
	}
	if pos["b1"] > pos["a4"] {
		t.Fatalf("user b starved behind user a: %v", order)
	}
}

func TestDispatcherBusy(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 1}, nil)
	defer d.Stop()

	gate := make(chan struct{})
	started := make(chan struct{})
	errs := make(chan error, 2)
	go func() {
		errs <- d.Do(context.Background(), "u1", func(context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started
	go func() {
		errs <- d.Do(context.Background(), "u2", func(context.Context) error { return nil })
	}()
	waitFor(t, func() bool { return d.pending.Load() == 1 })

	if err := d.Do(context.Background(), "u3", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	close(gate)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("queued job failed: %v", err)
		}
	}
}

func TestDispatcherSkipsCancelledJob(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4}, nil)
	defer d.Stop()

	gate := make(chan struct{})
	started := make(chan struct{})
	go d.Do(context.Background(), "u1", func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- d.Do(ctx, "u2", func(context.Context) error {
			ran <- struct{}{}
			return nil
		})
	}()
	waitFor(t, func() bool { return d.pending.Load() == 1 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(gate)

	// a later job proves the cancelled one was drained without running
	if err := d.Do(context.Background(), "u3", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("follow-up job: %v", err)
	}
	select {
	case <-ran:
		t.Fatalf("cancelled job ran")
	default:
	}
}

func TestDispatcherStop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 2, QueueSize: 4}, nil)
	d.Stop()
	d.Stop()
	if err := d.Do(context.Background(), "u1", func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 0, MaxWorkers: 2, QueueSize: 4, IdleTimeout: 20 * time.Millisecond}, nil)
	defer d.Stop()

	if err := d.Do(context.Background(), "u1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("do: %v", err)
	}
	waitFor(t, func() bool {
		running, _, _ := d.Stats()
		return running == 0
	})
}
