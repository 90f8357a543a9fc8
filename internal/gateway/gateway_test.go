package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/sqlsage/sqlsage/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient is a scriptable Client that counts calls.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (string, error)
}

func (f *fakeClient) Generate(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestInvoker builds an Invoker whose sleeps return immediately.
func newTestInvoker(client Client, cfg Config) *Invoker {
	inv := New(client, cfg, log.NewNop())
	inv.sleep = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}
	return inv
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int) (string, error) { return "SELECT 1", nil }}
	inv := newTestInvoker(client, Config{})

	got, err := inv.Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "SELECT 1" {
		t.Errorf("Invoke() = %q, want %q", got, "SELECT 1")
	}
	if client.callCount() != 1 {
		t.Errorf("call count = %d, want 1", client.callCount())
	}
}

func TestInvokeRetryBound(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int) (string, error) {
		return "", NewError(KindRateLimited, errors.New("quota exceeded"))
	}}
	inv := newTestInvoker(client, Config{MaxAttempts: 3})

	_, err := inv.Invoke(context.Background(), "prompt")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("Invoke() error = %v, want ErrModelUnavailable", err)
	}
	if client.callCount() != 3 {
		t.Errorf("call count = %d, want exactly 3", client.callCount())
	}
}

func TestInvokeFatalNotRetried(t *testing.T) {
	t.Parallel()

	cause := NewError(KindFatal, errors.New("invalid request"))
	client := &fakeClient{fn: func(int) (string, error) { return "", cause }}
	inv := newTestInvoker(client, Config{})

	_, err := inv.Invoke(context.Background(), "prompt")
	if !errors.Is(err, cause) {
		t.Fatalf("Invoke() error = %v, want wrapped cause", err)
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Error("fatal failure must not be reported as ErrModelUnavailable")
	}
	if client.callCount() != 1 {
		t.Errorf("call count = %d, want 1", client.callCount())
	}
}

func TestInvokeTransientThenSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(call int) (string, error) {
		if call < 3 {
			return "", NewError(KindTransient, errors.New("503"))
		}
		return "ok", nil
	}}
	inv := newTestInvoker(client, Config{MaxAttempts: 3})

	got, err := inv.Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Invoke() = %q, want %q", got, "ok")
	}
	if client.callCount() != 3 {
		t.Errorf("call count = %d, want 3", client.callCount())
	}
}

func TestInvokeLimiterPacesAttempts(t *testing.T) {
	t.Parallel()

	const interval = 20 * time.Millisecond

	client := &fakeClient{fn: func(call int) (string, error) {
		if call < 3 {
			return "", NewError(KindRateLimited, errors.New("429"))
		}
		return "ok", nil
	}}
	inv := newTestInvoker(client, Config{
		MaxAttempts: 3,
		Limiter:     rate.NewLimiter(rate.Every(interval), 1),
	})

	// Three attempts against a burst of one: the first token is free, the
	// next two each wait a full interval.
	start := time.Now()
	got, err := inv.Invoke(context.Background(), "prompt")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Invoke() = %q, want %q", got, "ok")
	}
	if client.callCount() != 3 {
		t.Errorf("call count = %d, want 3", client.callCount())
	}
	if elapsed < 2*interval {
		t.Errorf("elapsed = %v, want at least %v of limiter pacing", elapsed, 2*interval)
	}
}

func TestInvokeLimiterCanceled(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int) (string, error) { return "ok", nil }}
	inv := newTestInvoker(client, Config{
		MaxAttempts: 3,
		Limiter:     rate.NewLimiter(rate.Every(time.Minute), 1),
	})

	ctx := context.Background()
	if _, err := inv.Invoke(ctx, "first"); err != nil {
		t.Fatalf("Invoke() with burst token error = %v", err)
	}

	// Token bucket drained; the next call would wait a minute, so a
	// canceled context must surface instead of blocking.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := inv.Invoke(canceled, "second"); err == nil {
		t.Fatal("Invoke() with canceled context succeeded")
	}
	if client.callCount() != 1 {
		t.Errorf("call count = %d, want 1", client.callCount())
	}
}

func TestInvokeUnclassifiedNotRetried(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int) (string, error) {
		return "", errors.New("some provider error")
	}}
	inv := newTestInvoker(client, Config{})

	_, err := inv.Invoke(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Invoke() should fail")
	}
	if client.callCount() != 1 {
		t.Errorf("unclassified error retried: %d calls", client.callCount())
	}
}

func TestBackoffNonDecreasing(t *testing.T) {
	t.Parallel()

	inv := New(nil, Config{BackoffBaseSeconds: 2}, log.NewNop())

	var prev time.Duration
	for attempt := 0; attempt < 4; attempt++ {
		d := inv.backoff(attempt)
		if d < prev {
			t.Errorf("backoff(%d) = %v, less than previous %v", attempt, d, prev)
		}
		want := time.Duration(1<<attempt) * time.Second
		if d != want {
			t.Errorf("backoff(%d) = %v, want %v", attempt, d, want)
		}
		prev = d
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	t.Parallel()

	inv := New(nil, Config{BackoffBaseSeconds: 2, Jitter: true}, log.NewNop())

	for attempt := 0; attempt < 3; attempt++ {
		base := time.Duration(1<<attempt) * time.Second
		for i := 0; i < 50; i++ {
			d := inv.backoff(attempt)
			if d < base || d >= base+time.Second {
				t.Fatalf("backoff(%d) = %v, want in [%v, %v)", attempt, d, base, base+time.Second)
			}
		}
	}
}

func TestAdmissionBound(t *testing.T) {
	t.Parallel()

	const limit = 2
	const callers = 5

	var inFlight, maxInFlight atomic.Int64
	release := make(chan struct{})

	client := &fakeClient{fn: func(int) (string, error) {
		n := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if n <= prev || maxInFlight.CompareAndSwap(prev, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "done", nil
	}}
	inv := newTestInvoker(client, Config{MaxConcurrent: limit})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := inv.Invoke(context.Background(), "prompt"); err != nil {
				t.Errorf("Invoke() error = %v", err)
			}
		}()
	}

	// Let the first wave of callers reach the backend before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := maxInFlight.Load(); got > limit {
		t.Errorf("max in-flight = %d, want <= %d", got, limit)
	}
	if client.callCount() != callers {
		t.Errorf("call count = %d, want %d", client.callCount(), callers)
	}
}

func TestSharedSemaphoreBoundsAcrossInvokers(t *testing.T) {
	t.Parallel()

	const limit = 2
	const callersPerInvoker = 3

	var inFlight, maxInFlight atomic.Int64
	release := make(chan struct{})

	client := &fakeClient{fn: func(int) (string, error) {
		n := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if n <= prev || maxInFlight.CompareAndSwap(prev, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "done", nil
	}}

	sem := NewSemaphore(limit)
	invA := newTestInvoker(client, Config{Semaphore: sem})
	invB := newTestInvoker(client, Config{Semaphore: sem})

	var wg sync.WaitGroup
	for _, inv := range []*Invoker{invA, invB} {
		for i := 0; i < callersPerInvoker; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := inv.Invoke(context.Background(), "prompt"); err != nil {
					t.Errorf("Invoke() error = %v", err)
				}
			}()
		}
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := maxInFlight.Load(); got > limit {
		t.Errorf("max in-flight across invokers = %d, want <= %d", got, limit)
	}
}

func TestInvokeContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	client := &fakeClient{fn: func(int) (string, error) {
		return "", NewError(KindRateLimited, errors.New("429"))
	}}
	inv := New(client, Config{MaxAttempts: 3}, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	inv.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := inv.Invoke(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Invoke() error = %v, want context.Canceled", err)
	}
	if client.callCount() != 1 {
		t.Errorf("call count = %d, want 1 (canceled before second attempt)", client.callCount())
	}
}
