package password

import (
	"errors"
	"testing"
)

func TestPolicyLength(t *testing.T) {
	p := Policy{MinLength: 6}

	if err := p.Check("secret1"); err != nil {
		t.Fatalf("expected 7-char password to pass: %v", err)
	}

	err := p.Check("abc")
	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
}

func TestPolicyStrength(t *testing.T) {
	p := Policy{MinLength: 6, MinScore: 3}

	if err := p.Check("password", "alice"); err == nil {
		t.Fatal("expected common password to be rejected")
	}
	if err := p.Check("correct-horse-battery-staple-91", "alice"); err != nil {
		t.Fatalf("expected strong password to pass: %v", err)
	}
}
