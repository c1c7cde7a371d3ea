package coro

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/akondrashev/coroscope/dispatch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects tagged log lines the way the worked examples do.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) log(tag string) {
	r.mu.Lock()
	r.lines = append(r.lines, tag)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestDelayFreesTheWorker(t *testing.T) {
	t.Parallel()
	d := dispatch.NewMain()
	defer func() { d.Close(); d.Join() }()

	const wait = 100 * time.Millisecond
	body := func(context.Context) Op {
		return Delay(wait, nil)
	}
	start := time.Now()
	a := Spawn(context.Background(), d, body, Config{PanicAsError: true})
	b := Spawn(context.Background(), d, body, Config{PanicAsError: true})
	<-a.Done()
	<-b.Done()
	elapsed := time.Since(start)
	// Two tasks sharing one worker still wait concurrently: the pair must
	// finish in about one delay, not two.
	if elapsed > wait+wait/2 {
		t.Fatalf("delays did not overlap on a single worker: %v", elapsed)
	}
	if a.State() != StatusCompleted || b.State() != StatusCompleted {
		t.Fatalf("unexpected states %v, %v", a.State(), b.State())
	}
}

func TestSequentialDelaysInOneTask(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	const wait = 60 * time.Millisecond
	body := func(context.Context) Op {
		return Delay(wait, func(context.Context) Op {
			return Delay(wait, nil)
		})
	}
	start := time.Now()
	h := Spawn(context.Background(), d, body, Config{PanicAsError: true})
	<-h.Done()
	if elapsed := time.Since(start); elapsed < 2*wait {
		t.Fatalf("two chained delays completed in %v, want at least %v", elapsed, 2*wait)
	}
}

func TestTransferLogOrder(t *testing.T) {
	t.Parallel()
	io := dispatch.NewIO(2)
	defer func() { io.Close(); io.Join() }()

	rec := &recorder{}
	// launch { log A; switch(IO) { log B } } ; log C. On the unconfined
	// dispatcher the first slice runs synchronously up to the suspension
	// point while the switch is asynchronous, so C lands between A and B.
	// B gets a short delay so the cross-dispatcher race cannot flake.
	body := func(ctx context.Context) Op {
		rec.log("A")
		return Transfer(io, func(context.Context) Op {
			return Delay(20*time.Millisecond, func(context.Context) Op {
				rec.log("B")
				return Done()
			})
		}, nil)
	}
	h := Spawn(context.Background(), dispatch.Unconfined(), body, Config{PanicAsError: true})
	rec.log("C")
	<-h.Done()
	got := rec.snapshot()
	if len(got) != 3 || got[0] != "A" || got[1] != "C" || got[2] != "B" {
		t.Fatalf("expected order [A C B], got %v", got)
	}
}

func TestTransferNeverRunsBodyOnMain(t *testing.T) {
	t.Parallel()
	main := dispatch.NewMain()
	io := dispatch.NewIO(2)
	defer func() {
		main.Close()
		io.Close()
		main.Join()
		io.Join()
	}()

	var mu sync.Mutex
	var bodyWorkers, resumeWorkers []string
	body := func(ctx context.Context) Op {
		return Transfer(io, func(ctx context.Context) Op {
			mu.Lock()
			bodyWorkers = append(bodyWorkers, dispatch.WorkerName(ctx))
			mu.Unlock()
			return Delay(10*time.Millisecond, func(ctx context.Context) Op {
				mu.Lock()
				bodyWorkers = append(bodyWorkers, dispatch.WorkerName(ctx))
				mu.Unlock()
				return Done()
			})
		}, func(ctx context.Context) Op {
			mu.Lock()
			resumeWorkers = append(resumeWorkers, dispatch.WorkerName(ctx))
			mu.Unlock()
			return Done()
		})
	}
	h := Spawn(context.Background(), main, body, Config{PanicAsError: true})
	<-h.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(bodyWorkers) != 2 {
		t.Fatalf("expected 2 body slices, got %v", bodyWorkers)
	}
	for _, w := range bodyWorkers {
		if !strings.HasPrefix(w, "io-") {
			t.Fatalf("transfer body ran on %q, want an io worker", w)
		}
	}
	// The caller's continuation comes back to the dispatcher it left.
	if len(resumeWorkers) != 1 || resumeWorkers[0] != "main-0" {
		t.Fatalf("continuation resumed on %v, want [main-0]", resumeWorkers)
	}
}

func TestCancelBeforeFirstSuspension(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	sliceDone := false
	resumed := false
	body := func(context.Context) Op {
		close(started)
		<-release // ordinary blocking code: no suspension point
		sliceDone = true
		return Delay(time.Millisecond, func(context.Context) Op {
			resumed = true
			return Done()
		})
	}
	h := Spawn(ctx, d, body, Config{PanicAsError: true})
	<-started
	cancel()
	close(release)
	<-h.Done()

	if !sliceDone {
		t.Fatal("cancellation must not interrupt the running slice")
	}
	if resumed {
		t.Fatal("cancelled task must not be resumed past the check")
	}
	if h.State() != StatusCancelled {
		t.Fatalf("state = %v, want cancelled", h.State())
	}
}

func TestCancelWhileSuspended(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	ctx, cancel := context.WithCancel(context.Background())
	resumed := false
	h := Spawn(ctx, d, func(context.Context) Op {
		return Delay(500*time.Millisecond, func(context.Context) Op {
			resumed = true
			return Done()
		})
	}, Config{PanicAsError: true})

	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	cancel()
	select {
	case <-h.Done():
	case <-time.After(300 * time.Millisecond):
		t.Fatal("suspended task did not cancel promptly")
	}
	if resumed {
		t.Fatal("body resumed after cancellation")
	}
	if h.State() != StatusCancelled {
		t.Fatalf("state = %v, want cancelled", h.State())
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("cancellation took %v", elapsed)
	}
}

func TestAwait(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(2)
	defer func() { d.Close(); d.Join() }()

	first := Spawn(context.Background(), d, func(context.Context) Op {
		return Delay(30*time.Millisecond, nil)
	}, Config{PanicAsError: true})

	var observed Status
	second := Spawn(context.Background(), d, func(context.Context) Op {
		return Await(first, func(context.Context) Op {
			observed = first.State()
			return Done()
		})
	}, Config{PanicAsError: true})
	<-second.Done()

	if observed != StatusCompleted {
		t.Fatalf("awaiting task observed %v, want completed", observed)
	}
}

func TestYieldInterleavesOnOneWorker(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	rec := &recorder{}
	// Hold the worker until both tasks are queued so the interleaving is
	// decided by the queue, not by spawn timing.
	gate := make(chan struct{})
	_ = d.Submit(func(string) { <-gate })
	a := Spawn(context.Background(), d, func(context.Context) Op {
		rec.log("a1")
		return YieldTo(func(context.Context) Op {
			rec.log("a2")
			return Done()
		})
	}, Config{PanicAsError: true})
	b := Spawn(context.Background(), d, func(context.Context) Op {
		rec.log("b")
		return Done()
	}, Config{PanicAsError: true})
	close(gate)
	<-a.Done()
	<-b.Done()

	got := rec.snapshot()
	if len(got) != 3 || got[0] != "a1" || got[1] != "b" || got[2] != "a2" {
		t.Fatalf("expected yield to interleave as [a1 b a2], got %v", got)
	}
}

func TestPanicBecomesFailed(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	h := Spawn(context.Background(), d, func(context.Context) Op {
		panic("boom")
	}, Config{PanicAsError: true})
	<-h.Done()
	if h.State() != StatusFailed {
		t.Fatalf("state = %v, want failed", h.State())
	}
	if err := h.Err(); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
}

func TestTransferBodyFailureFailsTask(t *testing.T) {
	t.Parallel()
	io := dispatch.NewIO(1)
	defer func() { io.Close(); io.Join() }()

	wantErr := context.DeadlineExceeded
	resumed := false
	h := Spawn(context.Background(), dispatch.Unconfined(), func(context.Context) Op {
		return Transfer(io, func(context.Context) Op {
			return Fail(wantErr)
		}, func(context.Context) Op {
			resumed = true
			return Done()
		})
	}, Config{PanicAsError: true})
	<-h.Done()

	if h.State() != StatusFailed || h.Err() != wantErr {
		t.Fatalf("got state %v err %v", h.State(), h.Err())
	}
	if resumed {
		t.Fatal("continuation must not run after the transfer body failed")
	}
}

func TestRunBlocking(t *testing.T) {
	t.Parallel()
	d := dispatch.NewCompute(1)
	defer func() { d.Close(); d.Join() }()

	const wait = 40 * time.Millisecond
	start := time.Now()
	err := RunBlocking(context.Background(), d, func(context.Context) Op {
		return Delay(wait, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < wait {
		t.Fatalf("RunBlocking returned in %v, before the delay elapsed", elapsed)
	}
}

func TestOnDoneAfterTerminal(t *testing.T) {
	t.Parallel()
	h := Spawn(context.Background(), dispatch.Unconfined(), func(context.Context) Op {
		return Done()
	}, Config{PanicAsError: true})
	<-h.Done()
	ran := false
	h.OnDone(func() { ran = true })
	if !ran {
		t.Fatal("OnDone on a terminal task must run the callback immediately")
	}
}
