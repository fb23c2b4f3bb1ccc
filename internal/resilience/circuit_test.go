package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Window:           time.Minute,
		Cooldown:         10 * time.Millisecond,
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("expected circuit open after %d failures, got %s", 3, cb.State())
	}

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenClosesOnSingleSuccess(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	}

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe call should have been admitted, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after one half_open success, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	}
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected re-open after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOnlyOneProbe(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	}
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	var wg sync.WaitGroup
	rejected := 0
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(context.Background(), func(context.Context) error {
			<-release
			return nil
		})
	}()

	time.Sleep(5 * time.Millisecond) // let the probe acquire first

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return nil })
		if errors.Is(err, ErrCircuitOpen) {
			mu.Lock()
			rejected++
			mu.Unlock()
		}
	}

	close(release)
	wg.Wait()

	if rejected != 5 {
		t.Fatalf("expected all 5 concurrent callers rejected while a probe is in flight, got %d", rejected)
	}
}

func TestCircuitBreakerRegistry_BreakersAreIndependent(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	a := reg.Get(BreakerKey("model", "gpt"))
	b := reg.Get(BreakerKey("model", "claude"))

	_ = a.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	if a.State() != CircuitOpen {
		t.Fatalf("expected breaker a open, got %s", a.State())
	}
	if b.State() != CircuitClosed {
		t.Fatalf("expected breaker b unaffected, got %s", b.State())
	}
}
