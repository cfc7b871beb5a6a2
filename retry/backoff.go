package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitterFactor      = 0.1
)

// Policy bounds a retry loop and shapes the delay between attempts.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       DefaultMaxAttempts,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		JitterFactor:      DefaultJitterFactor,
	}
}

// Normalize coerces out-of-range values into the closest valid policy.
func (p Policy) Normalize() Policy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.InitialDelay < 0 {
		out.InitialDelay = 0
	}
	if out.MaxDelay < out.InitialDelay {
		out.MaxDelay = out.InitialDelay
	}
	if out.BackoffMultiplier < 1 || math.IsNaN(out.BackoffMultiplier) {
		out.BackoffMultiplier = 1
	}
	if out.JitterFactor < 0 || math.IsNaN(out.JitterFactor) {
		out.JitterFactor = 0
	}
	if out.JitterFactor > 1 {
		out.JitterFactor = 1
	}
	return out
}

// ComputeDelay returns the deterministic backoff before retry number attempt:
// InitialDelay * BackoffMultiplier^(attempt-1), clamped to MaxDelay.
// Attempts below 1 are treated as 1.
func ComputeDelay(attempt int, policy Policy) time.Duration {
	policy = policy.Normalize()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if math.IsInf(base, 0) || math.IsNaN(base) || base >= float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	next := time.Duration(base)
	if next < 0 {
		return policy.MaxDelay
	}
	return next
}

// RandSource yields floats in [0, 1).
type RandSource interface {
	Float64() float64
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// Calculator applies jitter on top of ComputeDelay.
type Calculator struct {
	Rand RandSource
}

// NewCalculator returns a calculator whose jitter sequence is reproducible
// for a given seed.
func NewCalculator(seed int64) *Calculator {
	return &Calculator{Rand: &lockedRand{rnd: rand.New(rand.NewSource(seed))}}
}

func DefaultCalculator() *Calculator {
	return NewCalculator(time.Now().UnixNano())
}

// Delay returns clamped + clamped*U[0, JitterFactor). Jitter is added after
// the clamp, so the result never exceeds MaxDelay*(1+JitterFactor).
func (c *Calculator) Delay(attempt int, policy Policy) time.Duration {
	policy = policy.Normalize()
	clamped := ComputeDelay(attempt, policy)
	if policy.JitterFactor <= 0 || clamped <= 0 {
		return clamped
	}
	var sample float64
	if c != nil && c.Rand != nil {
		sample = c.Rand.Float64()
	} else {
		sample = rand.Float64()
	}
	jitter := time.Duration(float64(clamped) * policy.JitterFactor * sample)
	return clamped + jitter
}
