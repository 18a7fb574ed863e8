package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/nikhilgg/oss-transparency/internal/errors"
)

const (
	// defaultQuota is the conservative remaining-call assumption for a token
	// whose window has just reset (GitHub core API limit per hour).
	defaultQuota = 5000

	// resetMargin is slept past the earliest known reset before resuming,
	// so a slightly skewed provider clock does not hand back an exhausted token.
	resetMargin = 5 * time.Second
)

// Token is one API credential with its provider-reported quota state.
// Quota fields are owned by the pool and mutated only under its lock.
type Token struct {
	Name      string
	Secret    string
	remaining int
	resetAt   time.Time
}

// Pool tracks quota state for a set of interchangeable API tokens and hands
// out the least-exhausted one per call. One pool is shared per run and passed
// explicitly, never held as a package global.
type Pool struct {
	mu     sync.Mutex
	tokens []*Token
	logger *slog.Logger

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPool creates a pool from the configured secrets. It fails when no
// secrets are configured: with nothing to rotate, the run cannot proceed.
func NewPool(secrets []string, logger *slog.Logger) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, apperrors.NewBadConfigError("no API tokens configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for i, secret := range secrets {
		p.tokens = append(p.tokens, &Token{
			Name:      fmt.Sprintf("token-%d", i+1),
			Secret:    secret,
			remaining: defaultQuota,
			resetAt:   time.Now().Add(time.Hour),
		})
	}
	return p, nil
}

// Acquire returns the token with the highest remaining quota. When every
// token is exhausted it sleeps until the earliest known reset plus a small
// margin, restores all tokens to the conservative default, and retries.
// The lock is never held across the sleep.
func (p *Pool) Acquire(ctx context.Context) (*Token, error) {
	for {
		p.mu.Lock()
		best := p.tokens[0]
		for _, t := range p.tokens[1:] {
			if t.remaining > best.remaining {
				best = t
			}
		}

		if best.remaining > 0 {
			p.mu.Unlock()
			return best, nil
		}

		earliest := p.tokens[0].resetAt
		for _, t := range p.tokens[1:] {
			if t.resetAt.Before(earliest) {
				earliest = t.resetAt
			}
		}
		p.mu.Unlock()

		wait := earliest.Sub(p.now()) + resetMargin
		if wait < resetMargin {
			wait = resetMargin
		}
		p.logger.Warn("all tokens exhausted, waiting for quota reset",
			"wait", wait.Round(time.Second),
			"reset_at", earliest.Format(time.RFC3339),
		)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}

		p.mu.Lock()
		for _, t := range p.tokens {
			t.remaining = defaultQuota
			t.resetAt = p.now().Add(time.Hour)
		}
		p.mu.Unlock()
	}
}

// Report updates a token's quota state from the most recent call's response
// metadata. Calls that carried no quota information report remaining < 0 and
// are a no-op.
func (p *Pool) Report(name string, remaining int, resetAt time.Time) {
	if remaining < 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tokens {
		if t.Name == name {
			t.remaining = remaining
			if !resetAt.IsZero() {
				t.resetAt = resetAt
			}
			return
		}
	}
}

// Remaining returns the last reported remaining quota for the named token,
// -1 for an unknown name. Quota state is only ever read under the pool lock.
func (p *Pool) Remaining(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tokens {
		if t.Name == name {
			return t.remaining
		}
	}
	return -1
}

// Size returns the number of tokens in the pool
func (p *Pool) Size() int {
	return len(p.tokens)
}

// Status returns a one-line quota snapshot for progress reporting
func (p *Pool) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := make([]string, 0, len(p.tokens))
	for _, t := range p.tokens {
		parts = append(parts, fmt.Sprintf("%s=%d (resets %s)",
			t.Name, t.remaining, t.resetAt.Format("15:04:05")))
	}
	return strings.Join(parts, " | ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
