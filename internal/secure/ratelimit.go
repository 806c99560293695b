package secure

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrRateLimited is returned when an identifier exceeds its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Operation classes with their window budgets.
const (
	OpAPICall         = "api_call"
	OpTelegramCommand = "telegram_command"
	OpLoginAttempt    = "login_attempt"
)

type limitSpec struct {
	maxRequests int
	window      time.Duration
}

var operationLimits = map[string]limitSpec{
	OpAPICall:         {maxRequests: 10, window: time.Minute},
	OpTelegramCommand: {maxRequests: 20, window: 5 * time.Minute},
	OpLoginAttempt:    {maxRequests: 5, window: 15 * time.Minute},
}

// RateLimiter tracks per-identifier request history in a sliding window
// and blocks offenders for an escalating period.
type RateLimiter struct {
	mu           sync.Mutex
	history      map[string][]time.Time
	blockedUntil map[string]time.Time
	now          func() time.Time
	logger       zerolog.Logger
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		history:      make(map[string][]time.Time),
		blockedUntil: make(map[string]time.Time),
		now:          time.Now,
		logger:       log.With().Str("component", "security").Logger(),
	}
}

// Allow reports whether a request from identifier fits inside the limit of
// maxRequests per window. A rejected identifier is blocked for
// min(60, overflow+5) minutes.
func (r *RateLimiter) Allow(identifier string, maxRequests int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if until, blocked := r.blockedUntil[identifier]; blocked {
		if now.Before(until) {
			return false
		}
		delete(r.blockedUntil, identifier)
	}

	cutoff := now.Add(-window)
	kept := r.history[identifier][:0]
	for _, t := range r.history[identifier] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.history[identifier] = kept

	if len(kept) >= maxRequests {
		blockMinutes := len(kept) - maxRequests + 5
		if blockMinutes > 60 {
			blockMinutes = 60
		}
		r.blockedUntil[identifier] = now.Add(time.Duration(blockMinutes) * time.Minute)
		r.logger.Warn().
			Str("identifier", identifier).
			Int("block_minutes", blockMinutes).
			Msg("Rate limit exceeded, identifier blocked")
		return false
	}

	r.history[identifier] = append(kept, now)
	return true
}

// Check validates an operation against its class budget and returns
// ErrRateLimited when exceeded.
func (r *RateLimiter) Check(identifier, operation string) error {
	spec, ok := operationLimits[operation]
	if !ok {
		spec = operationLimits[OpAPICall]
	}

	if !r.Allow(identifier, spec.maxRequests, spec.window) {
		return fmt.Errorf("%w for %s (%s)", ErrRateLimited, identifier, operation)
	}
	return nil
}

// Reset clears all state for an identifier.
func (r *RateLimiter) Reset(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, identifier)
	delete(r.blockedUntil, identifier)
}

// Remaining returns how many requests the identifier has left in the window.
func (r *RateLimiter) Remaining(identifier string, maxRequests int, window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if until, blocked := r.blockedUntil[identifier]; blocked && now.Before(until) {
		return 0
	}

	cutoff := now.Add(-window)
	used := 0
	for _, t := range r.history[identifier] {
		if t.After(cutoff) {
			used++
		}
	}
	if used >= maxRequests {
		return 0
	}
	return maxRequests - used
}
