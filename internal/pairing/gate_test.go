package pairing

import (
	"testing"
	"time"

	"github.com/lanmirror/lanmirror/internal/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// wrongGuess derives a PIN guaranteed to mismatch by rotating the
// first digit.
func wrongGuess(pin string) string {
	b := []byte(pin)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestGeneratePinFormat(t *testing.T) {
	g := NewGate()
	pin, err := g.GeneratePin()
	if err != nil {
		t.Fatalf("GeneratePin: %v", err)
	}
	if len(pin) != pinLength {
		t.Fatalf("PIN length: got %d, want %d", len(pin), pinLength)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			t.Fatalf("PIN %q contains non-digit %q", pin, r)
		}
	}
}

func TestValidateCorrectPin(t *testing.T) {
	g := NewGate(WithClock(clock.NewFake(testEpoch)))
	pin, _ := g.GeneratePin()

	if !g.ValidatePin(pin) {
		t.Fatal("correct PIN rejected")
	}
	// A success does not consume the PIN; retries stay valid.
	if !g.ValidatePin(pin) {
		t.Fatal("correct PIN rejected on second use")
	}
}

func TestValidateWithoutPin(t *testing.T) {
	g := NewGate()
	if g.ValidatePin("123456") {
		t.Fatal("validation passed with no PIN generated")
	}
}

func TestLockoutAfterMaxFailures(t *testing.T) {
	g := NewGate(WithClock(clock.NewFake(testEpoch)), WithMaxAttempts(3))
	pin, _ := g.GeneratePin()

	guess := wrongGuess(pin)
	for i := 0; i < 3; i++ {
		if g.IsLockedOut() {
			t.Fatalf("locked out after %d failures, budget is 3", i)
		}
		if g.ValidatePin(guess) {
			t.Fatal("wrong PIN accepted")
		}
	}

	if !g.IsLockedOut() {
		t.Fatal("not locked out after spending the budget")
	}
	if g.AttemptsRemaining() != 0 {
		t.Errorf("attempts remaining: got %d, want 0", g.AttemptsRemaining())
	}
	// Even the correct PIN is rejected while locked out.
	if g.ValidatePin(pin) {
		t.Fatal("correct PIN accepted during lockout")
	}
}

func TestLockedAttemptsDoNotSpendBudget(t *testing.T) {
	g := NewGate(WithClock(clock.NewFake(testEpoch)), WithMaxAttempts(2))
	g.GeneratePin() //nolint:errcheck

	g.ValidatePin("wrong1")
	g.ValidatePin("wrong2")
	if !g.IsLockedOut() {
		t.Fatal("expected lockout")
	}

	// Further attempts while locked must not drive the counter below
	// zero or panic.
	for i := 0; i < 10; i++ {
		g.ValidatePin("wrong3")
	}
	if g.AttemptsRemaining() != 0 {
		t.Errorf("attempts remaining: got %d, want 0", g.AttemptsRemaining())
	}
}

func TestRefreshClearsLockout(t *testing.T) {
	g := NewGate(WithClock(clock.NewFake(testEpoch)), WithMaxAttempts(1))
	g.GeneratePin() //nolint:errcheck
	g.ValidatePin("wrong!")
	if !g.IsLockedOut() {
		t.Fatal("expected lockout")
	}

	pin, err := g.RefreshPin()
	if err != nil {
		t.Fatalf("RefreshPin: %v", err)
	}
	if g.IsLockedOut() {
		t.Fatal("lockout survived refresh")
	}
	if !g.ValidatePin(pin) {
		t.Fatal("fresh PIN rejected")
	}
}

func TestExpiredPinRejected(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	g := NewGate(WithClock(clk), WithTTL(time.Minute))
	pin, _ := g.GeneratePin()

	clk.Advance(59 * time.Second)
	if !g.ValidatePin(pin) {
		t.Fatal("PIN rejected before expiry")
	}

	clk.Advance(2 * time.Second)
	if g.ValidatePin(pin) {
		t.Fatal("expired PIN accepted")
	}
	// Expired attempts are not failures; the budget is intact.
	if got := g.AttemptsRemaining(); got != DefaultMaxAttempts {
		t.Errorf("attempts remaining: got %d, want %d", got, DefaultMaxAttempts)
	}
}

func TestCurrentPin(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	g := NewGate(WithClock(clk), WithTTL(time.Minute))

	if _, ok := g.CurrentPin(); ok {
		t.Fatal("CurrentPin reported a PIN before generation")
	}

	pin, _ := g.GeneratePin()
	got, ok := g.CurrentPin()
	if !ok || got != pin {
		t.Fatalf("CurrentPin: got %q/%v, want %q/true", got, ok, pin)
	}

	clk.Advance(2 * time.Minute)
	if _, ok := g.CurrentPin(); ok {
		t.Fatal("CurrentPin reported an expired PIN")
	}
}

func TestAttemptCallback(t *testing.T) {
	g := NewGate(WithClock(clock.NewFake(testEpoch)), WithMaxAttempts(2))
	pin, _ := g.GeneratePin()

	var attempts []Attempt
	g.OnPairingAttempted(func(a Attempt) { attempts = append(attempts, a) })

	g.ValidatePin("wrong!")
	g.ValidatePin(pin)

	if len(attempts) != 2 {
		t.Fatalf("callbacks: got %d, want 2", len(attempts))
	}
	if attempts[0].OK || attempts[0].AttemptsRemaining != 1 {
		t.Errorf("first attempt: got %+v, want failure with 1 remaining", attempts[0])
	}
	if !attempts[1].OK {
		t.Errorf("second attempt: got %+v, want success", attempts[1])
	}
}
