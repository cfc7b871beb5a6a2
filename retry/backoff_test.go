package retry

import (
	"testing"
	"time"
)

func TestComputeDelay_ExponentialSequence(t *testing.T) {
	policy := Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range expected {
		if got := ComputeDelay(i+1, policy); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, want, got)
		}
	}
}

func TestComputeDelay_MonotonicAndClamped(t *testing.T) {
	policy := Policy{
		MaxAttempts:       50,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 3,
	}
	previous := time.Duration(0)
	for attempt := 1; attempt <= 200; attempt++ {
		delay := ComputeDelay(attempt, policy)
		if delay < previous {
			t.Fatalf("attempt %d: delay decreased from %s to %s", attempt, previous, delay)
		}
		if delay > policy.MaxDelay {
			t.Fatalf("attempt %d: delay %s exceeds max %s", attempt, delay, policy.MaxDelay)
		}
		previous = delay
	}
	if previous != policy.MaxDelay {
		t.Fatalf("expected large attempts to clamp to %s, got %s", policy.MaxDelay, previous)
	}
}

func TestComputeDelay_AttemptBelowOneTreatedAsOne(t *testing.T) {
	policy := DefaultPolicy()
	if got := ComputeDelay(0, policy); got != policy.InitialDelay {
		t.Fatalf("expected attempt 0 to use initial delay, got %s", got)
	}
	if got := ComputeDelay(-4, policy); got != policy.InitialDelay {
		t.Fatalf("expected negative attempt to use initial delay, got %s", got)
	}
}

func TestCalculatorDelay_JitterBounds(t *testing.T) {
	policy := Policy{
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          8 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.25,
	}
	calculator := NewCalculator(42)
	for attempt := 1; attempt <= 10; attempt++ {
		base := ComputeDelay(attempt, policy)
		upper := time.Duration(float64(base) * (1 + policy.JitterFactor))
		for i := 0; i < 100; i++ {
			got := calculator.Delay(attempt, policy)
			if got < base || got > upper {
				t.Fatalf("attempt %d: jittered delay %s outside [%s, %s]", attempt, got, base, upper)
			}
		}
	}
}

func TestCalculatorDelay_SeedIsReproducible(t *testing.T) {
	policy := DefaultPolicy()
	first := NewCalculator(7)
	second := NewCalculator(7)
	for attempt := 1; attempt <= 5; attempt++ {
		if a, b := first.Delay(attempt, policy), second.Delay(attempt, policy); a != b {
			t.Fatalf("attempt %d: expected identical delays, got %s and %s", attempt, a, b)
		}
	}
}

func TestCalculatorDelay_ZeroJitterIsDeterministic(t *testing.T) {
	policy := DefaultPolicy()
	policy.JitterFactor = 0
	calculator := NewCalculator(1)
	for attempt := 1; attempt <= 5; attempt++ {
		if got, want := calculator.Delay(attempt, policy), ComputeDelay(attempt, policy); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestPolicyNormalize(t *testing.T) {
	normalized := Policy{
		MaxAttempts:       0,
		InitialDelay:      5 * time.Second,
		MaxDelay:          time.Second,
		BackoffMultiplier: 0.5,
		JitterFactor:      3,
	}.Normalize()
	if normalized.MaxAttempts != 1 {
		t.Fatalf("expected max attempts 1, got %d", normalized.MaxAttempts)
	}
	if normalized.MaxDelay != 5*time.Second {
		t.Fatalf("expected max delay raised to initial delay, got %s", normalized.MaxDelay)
	}
	if normalized.BackoffMultiplier != 1 {
		t.Fatalf("expected multiplier 1, got %v", normalized.BackoffMultiplier)
	}
	if normalized.JitterFactor != 1 {
		t.Fatalf("expected jitter clamped to 1, got %v", normalized.JitterFactor)
	}
}
