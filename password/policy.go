package password

import (
	"fmt"

	"github.com/nbutton23/zxcvbn-go"
)

// Policy is the registration and reset password policy.
//
// MinScore is a zxcvbn score (0-4). Zero disables the strength estimate and
// leaves only the length check.
type Policy struct {
	MinLength int
	MinScore  int
}

// PolicyError describes why a password was rejected.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

// Check validates plaintext against the policy. userInputs (username, email,
// names) are penalized by the strength estimator.
func (p Policy) Check(plaintext string, userInputs ...string) error {
	if len(plaintext) < p.MinLength {
		return &PolicyError{Reason: fmt.Sprintf("Password must be at least %d characters", p.MinLength)}
	}
	if p.MinScore <= 0 {
		return nil
	}

	result := zxcvbn.PasswordStrength(plaintext, userInputs)
	if result.Score < p.MinScore {
		return &PolicyError{Reason: "Password is too weak"}
	}
	return nil
}
