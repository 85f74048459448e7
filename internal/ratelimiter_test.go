package internal

import (
	"testing"
	"time"
)

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("alice") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Allow("alice") {
		t.Fatalf("expected fourth request to be blocked")
	}
	// separate keys have separate budgets.
	if !limiter.Allow("bob") {
		t.Fatalf("expected bob to be unaffected")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)
	if !limiter.Allow("alice") {
		t.Fatalf("first request should be allowed")
	}
	if limiter.Allow("alice") {
		t.Fatalf("second request should be blocked")
	}
	time.Sleep(20 * time.Millisecond)
	if !limiter.Allow("alice") {
		t.Fatalf("request after window should be allowed")
	}
}
