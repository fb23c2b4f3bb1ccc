package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Circuit breaker states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open, or because a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker, conventionally "<dependency>:<key>".
	Name string

	// FailureThreshold is the number of failures within Window before the
	// circuit opens.
	FailureThreshold int

	// Window bounds how far back a failure still counts toward
	// FailureThreshold; failures older than Window are not counted.
	Window time.Duration

	// Cooldown is how long the circuit stays open before admitting a single
	// half-open probe.
	Cooldown time.Duration

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to string)
}

// CircuitBreaker implements the per-(dependency,key) breaker described by the
// core's resilience layer: closed -> open on a burst of failures within a
// rolling window, open -> half_open after a cooldown, and half_open admits
// exactly one probe at a time, closing on its success or reopening on its
// failure.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           string
	failureTimes    []time.Time
	lastStateChange time.Time
	probeInFlight   bool
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return &CircuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// BreakerKey builds the conventional registry key for a (dependency, key)
// pair, e.g. the (role, model) pair a model call is routed to.
func BreakerKey(dependency, key string) string {
	return fmt.Sprintf("%s:%s", dependency, key)
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.canExecute()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.recordResult(err, probe)
	return err
}

// ExecuteWithResult runs a function that returns a value with circuit
// breaker protection.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := cb.canExecute()
	if err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	cb.recordResult(err, probe)
	return result, err
}

// canExecute reports whether a call may proceed, and whether that call is
// the single half-open probe. Only one probe is ever admitted at a time;
// additional callers are rejected with ErrCircuitOpen until the probe
// resolves.
func (cb *CircuitBreaker) canExecute() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil

	case CircuitOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Cooldown {
			cb.transitionTo(CircuitHalfOpen)
			cb.probeInFlight = true
			return true, nil
		}
		return false, ErrCircuitOpen

	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false, ErrCircuitOpen
		}
		cb.probeInFlight = true
		return true, nil

	default:
		return false, nil
	}
}

// recordResult records the outcome of a call. probe must be the value
// canExecute returned for this call.
func (cb *CircuitBreaker) recordResult(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probeInFlight = false
	}

	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
}

// recordFailure records a failed execution.
func (cb *CircuitBreaker) recordFailure() {
	now := time.Now()
	cb.failureTimes = append(cb.failureTimes, now)

	switch cb.state {
	case CircuitClosed:
		if cb.countRecentFailures(now) >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}

	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// recordSuccess records a successful execution. A single success while
// half_open closes the circuit; a success while closed prunes the failure
// window.
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.countRecentFailures(time.Now())

	case CircuitHalfOpen:
		cb.transitionTo(CircuitClosed)
	}
}

// countRecentFailures prunes failures older than Window and returns the
// remaining count.
func (cb *CircuitBreaker) countRecentFailures(now time.Time) int {
	cutoff := now.Add(-cb.config.Window)
	kept := cb.failureTimes[:0]
	for _, t := range cb.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failureTimes = kept
	return len(cb.failureTimes)
}

// transitionTo changes the circuit breaker state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState string) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.failureTimes = nil
	if newState != CircuitHalfOpen {
		cb.probeInFlight = false
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns current circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:            cb.config.Name,
		State:           cb.state,
		Failures:        len(cb.failureTimes),
		LastStateChange: cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failureTimes = nil
	cb.probeInFlight = false
	cb.lastStateChange = time.Now()
}

// CircuitBreakerStats contains statistics about a circuit breaker.
type CircuitBreakerStats struct {
	Name            string
	State           string
	Failures        int
	LastStateChange time.Time
}

// CircuitBreakerRegistry manages circuit breakers keyed by
// BreakerKey(dependency, key), so each (dependency, key) pair — e.g. each
// (role, model) a task is routed to — trips independently.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with default config.
func NewCircuitBreakerRegistry(defaults CircuitBreakerConfig) *CircuitBreakerRegistry {
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = 5
	}
	if defaults.Window <= 0 {
		defaults.Window = time.Minute
	}
	if defaults.Cooldown <= 0 {
		defaults.Cooldown = 30 * time.Second
	}

	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// Get returns or creates the circuit breaker for name.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config := r.defaults
	config.Name = name
	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb
	return cb
}

// GetWithConfig returns or creates a circuit breaker with custom config.
func (r *CircuitBreakerRegistry) GetWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config.Name = name
	cb := NewCircuitBreaker(config)
	r.breakers[name] = cb
	return cb
}

// Stats returns statistics for all circuit breakers.
func (r *CircuitBreakerRegistry) Stats() []CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}

// OpenCircuits returns names of all open circuit breakers.
func (r *CircuitBreakerRegistry) OpenCircuits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, cb := range r.breakers {
		if cb.State() == CircuitOpen {
			open = append(open, name)
		}
	}
	return open
}

// ResetAll resets all circuit breakers to closed state.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
