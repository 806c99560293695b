package secure

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !r.Allow("user", 5, time.Minute) {
			t.Fatalf("request %d rejected inside the budget", i)
		}
	}
	if r.Allow("user", 5, time.Minute) {
		t.Fatal("request over the budget was allowed")
	}
}

func TestRateLimiterBlocksAndRecovers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		r.Allow("user", 3, time.Minute)
	}
	// Overflow 0 → 5 minute block.
	if r.Allow("user", 3, time.Minute) {
		t.Fatal("expected rejection")
	}

	now = now.Add(4 * time.Minute)
	if r.Allow("user", 3, time.Minute) {
		t.Fatal("still inside the block window")
	}

	now = now.Add(2 * time.Minute)
	if !r.Allow("user", 3, time.Minute) {
		t.Fatal("block should have expired and the window slid")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }

	r.Allow("user", 2, time.Minute)
	r.Allow("user", 2, time.Minute)

	now = now.Add(61 * time.Second)
	if !r.Allow("user", 2, time.Minute) {
		t.Fatal("old requests must fall out of the window")
	}
}

func TestRateLimiterIsolatesIdentifiers(t *testing.T) {
	r := NewRateLimiter()

	for i := 0; i < 10; i++ {
		r.Allow("noisy", 1, time.Minute)
	}
	if !r.Allow("quiet", 1, time.Minute) {
		t.Fatal("identifiers must be tracked independently")
	}
}

func TestCheckReturnsErrRateLimited(t *testing.T) {
	r := NewRateLimiter()

	var err error
	for i := 0; i < 30; i++ {
		err = r.Check("42", OpTelegramCommand)
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestReset(t *testing.T) {
	r := NewRateLimiter()

	r.Allow("user", 1, time.Minute)
	r.Allow("user", 1, time.Minute) // blocks
	r.Reset("user")

	if !r.Allow("user", 1, time.Minute) {
		t.Fatal("Reset must clear history and block state")
	}
}

func TestRemaining(t *testing.T) {
	r := NewRateLimiter()

	if got := r.Remaining("user", 3, time.Minute); got != 3 {
		t.Fatalf("Remaining = %d, want 3", got)
	}
	r.Allow("user", 3, time.Minute)
	if got := r.Remaining("user", 3, time.Minute); got != 2 {
		t.Fatalf("Remaining = %d, want 2", got)
	}
}
