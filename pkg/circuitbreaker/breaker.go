package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// HalfOpenRequests is how many trial calls may pass while half-open.
	HalfOpenRequests uint32
	// OpenTimeout is how long the breaker stays open before trying again.
	OpenTimeout      time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsFailure decides which errors count against the upstream. Defaults to any non-nil error.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from State, to State)
	Logger        *zap.Logger
	now           func() time.Time
}

type CircuitBreaker struct {
	name string
	cfg  Config

	mu                   sync.Mutex
	state                State
	openedAt             time.Time
	halfOpenInFlight     uint32
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// Execute runs fn unless the breaker is open. Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	halfOpen, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(halfOpen, true)
			panic(r)
		}
	}()

	err = fn()
	cb.afterRequest(halfOpen, cb.cfg.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) beforeRequest() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenRequests {
			return true, ErrTooManyRequests
		}
		cb.halfOpenInFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) afterRequest(halfOpen bool, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if failed {
		cb.consecutiveSuccesses = 0
		cb.consecutiveFailures++
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
		return
	}

	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses++
	if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

// currentState must be called with mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0
	if state == StateOpen {
		cb.openedAt = cb.cfg.now()
	}

	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, prev, state)
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}
