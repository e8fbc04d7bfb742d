package supabase

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryConfig controls transparent retries of backend requests.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// DefaultRetryConfig retries twice with exponential backoff and jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	d := float64(rc.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= rc.Multiplier
	}
	if max := float64(rc.MaxBackoff); d > max {
		d = max
	}
	if rc.Jitter > 0 {
		d += d * rc.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// =============================================================================
// Circuit breaker
// =============================================================================

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker trips after consecutive failures and probes again after
// a cooldown.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
}

// NewCircuitBreaker trips open after threshold consecutive failures and
// allows a probe request after cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(cb.openedAt) >= cb.cooldown {
			cb.state = breakerHalfOpen
			return true
		}
		return false
	default: // half-open: one probe in flight at a time
		return false
	}
}

// RecordSuccess resets the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failures = 0
}

// RecordFailure counts a failure; returns true when this trip opened the
// breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
		return true
	}
	cb.failures++
	if cb.failures >= cb.threshold && cb.state == breakerClosed {
		cb.state = breakerOpen
		cb.openedAt = time.Now()
		return true
	}
	return false
}

// State returns a label for health reporting.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// =============================================================================
// Resilient transport
// =============================================================================

// ResilientTransport retries transient failures and guards the backend
// with a circuit breaker. It implements http.RoundTripper.
type ResilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *CircuitBreaker

	onOutcome     func(outcome string)
	onBreakerOpen func()
}

// NewResilientTransport wraps base with retry and breaker behavior.
func NewResilientTransport(base http.RoundTripper, retry RetryConfig, breaker *CircuitBreaker) *ResilientTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ResilientTransport{base: base, retry: retry, breaker: breaker}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (t *ResilientTransport) emit(outcome string) {
	if t.onOutcome != nil {
		t.onOutcome(outcome)
	}
}

// RoundTrip implements http.RoundTripper.
func (t *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.breaker != nil && !t.breaker.Allow() {
		t.emit("rejected")
		return nil, fmt.Errorf("supabase: circuit open for %s", req.URL.Host)
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		attemptReq := req
		if attempt > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				break
			}
			attemptReq = req.Clone(req.Context())
			attemptReq.Body = body
		}

		resp, err = t.base.RoundTrip(attemptReq)
		if err == nil && !retryableStatus(resp.StatusCode) {
			break
		}
		// Re-sending a body we cannot replay is worse than failing.
		if attempt >= t.retry.MaxRetries || (req.Body != nil && req.GetBody == nil) {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		t.emit("retry")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(t.retry.backoff(attempt)):
		}
	}

	t.record(resp, err)
	return resp, err
}

func (t *ResilientTransport) record(resp *http.Response, err error) {
	failed := err != nil || (resp != nil && resp.StatusCode >= 500)
	if t.breaker != nil {
		if failed {
			if t.breaker.RecordFailure() && t.onBreakerOpen != nil {
				t.onBreakerOpen()
			}
		} else {
			t.breaker.RecordSuccess()
		}
	}
	if failed {
		t.emit("error")
	} else {
		t.emit("ok")
	}
}
