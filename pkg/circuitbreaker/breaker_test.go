package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := New("gemini", Config{FailureThreshold: 2, OpenTimeout: time.Minute, now: clock.now})
	boom := errors.New("timeout")

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want %v", i, err, boom)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var transitions []string
	cb := New("llm", Config{
		FailureThreshold: 1,
		OpenTimeout:      10 * time.Second,
		now:              clock.now,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errors.New("down") })
	clock.t = clock.t.Add(11 * time.Second)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial call err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	parseErr := errors.New("no JSON found")
	cb := New("gemini", Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, parseErr) },
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return parseErr })
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
}
