// Package pairing implements the PIN gate that admits a channel into
// session traffic. A Gate owns exactly one PIN lifecycle: generation
// with a time-to-live, validation with a bounded failure budget, and
// lockout once the budget is spent. Lockout clears only on the next
// generate/refresh.
package pairing

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/lanmirror/lanmirror/internal/clock"
)

const (
	// DefaultTTL is how long a generated PIN stays valid.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxAttempts is the failure budget before lockout.
	DefaultMaxAttempts = 5

	// pinLength is the number of digits in a generated PIN.
	pinLength = 6
)

const pinAlphabet = "0123456789"

// Attempt is the observable outcome of one ValidatePin call.
type Attempt struct {
	OK                bool
	LockedOut         bool
	AttemptsRemaining int
}

// Gate holds the PIN state for one host process. Safe for concurrent
// use; all state lives on the instance, never in package globals, so
// independent gates (and tests) do not interfere.
type Gate struct {
	mu          sync.Mutex
	pin         string
	generatedAt time.Time
	failures    int
	lockedOut   bool

	ttl         time.Duration
	maxAttempts int
	clk         clock.Clock

	onGenerated []func(pin string)
	onAttempted []func(Attempt)
}

// Option adjusts Gate construction.
type Option func(*Gate)

// WithTTL overrides the PIN time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) { g.ttl = ttl }
}

// WithMaxAttempts overrides the failure budget.
func WithMaxAttempts(n int) Option {
	return func(g *Gate) { g.maxAttempts = n }
}

// WithClock injects a time source for tests.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clk = c }
}

// NewGate creates a Gate with no PIN generated yet.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		clk:         clock.Real(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnPinGenerated registers a callback fired with each new PIN.
func (g *Gate) OnPinGenerated(fn func(pin string)) {
	g.mu.Lock()
	g.onGenerated = append(g.onGenerated, fn)
	g.mu.Unlock()
}

// OnPairingAttempted registers a callback fired on every ValidatePin
// call with its outcome.
func (g *Gate) OnPairingAttempted(fn func(Attempt)) {
	g.mu.Lock()
	g.onAttempted = append(g.onAttempted, fn)
	g.mu.Unlock()
}

// GeneratePin produces a fresh random PIN, resets the failure counter
// and the TTL clock, and clears any lockout.
func (g *Gate) GeneratePin() (string, error) {
	pin, err := randomPin()
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.pin = pin
	g.generatedAt = g.clk.Now()
	g.failures = 0
	g.lockedOut = false
	handlers := append([]func(string){}, g.onGenerated...)
	g.mu.Unlock()

	for _, fn := range handlers {
		fn(pin)
	}
	return pin, nil
}

// RefreshPin is equivalent to GeneratePin.
func (g *Gate) RefreshPin() (string, error) { return g.GeneratePin() }

// ValidatePin checks a supplied PIN. It returns true only when a PIN
// exists, is unexpired, the gate is not locked out, and the value
// matches. A mismatch spends one attempt; spending the last one locks
// the gate. Wrong PINs are an expected condition, never an error.
func (g *Gate) ValidatePin(pin string) bool {
	g.mu.Lock()

	ok := false
	switch {
	case g.pin == "", g.lockedOut, g.expiredLocked():
		// Attempt rejected without spending the failure budget.
	case subtle.ConstantTimeCompare([]byte(g.pin), []byte(pin)) == 1:
		ok = true
	default:
		g.failures++
		if g.failures >= g.maxAttempts {
			g.lockedOut = true
		}
	}

	att := Attempt{
		OK:                ok,
		LockedOut:         g.lockedOut,
		AttemptsRemaining: g.attemptsRemainingLocked(),
	}
	handlers := append([]func(Attempt){}, g.onAttempted...)
	g.mu.Unlock()

	for _, fn := range handlers {
		fn(att)
	}
	return ok
}

// IsLockedOut reports whether the failure budget is spent.
func (g *Gate) IsLockedOut() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lockedOut
}

// AttemptsRemaining returns maxAttempts minus recorded failures,
// floored at zero.
func (g *Gate) AttemptsRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attemptsRemainingLocked()
}

// CurrentPin returns the active PIN and whether one exists and is
// still valid. Intended for display on the host side.
func (g *Gate) CurrentPin() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pin == "" || g.expiredLocked() {
		return "", false
	}
	return g.pin, true
}

func (g *Gate) attemptsRemainingLocked() int {
	remaining := g.maxAttempts - g.failures
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (g *Gate) expiredLocked() bool {
	return g.clk.Now().Sub(g.generatedAt) >= g.ttl
}

// randomPin draws pinLength digits from crypto/rand, rejecting bytes
// outside the largest multiple of the alphabet size to avoid modulo
// bias.
func randomPin() (string, error) {
	const limit = 250 // largest multiple of 10 below 256
	pin := make([]byte, 0, pinLength)
	buf := make([]byte, 1)
	for len(pin) < pinLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		if buf[0] >= limit {
			continue
		}
		pin = append(pin, pinAlphabet[int(buf[0])%len(pinAlphabet)])
	}
	return string(pin), nil
}
