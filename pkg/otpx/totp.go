// Package otpx wraps time-based one-time password generation and
// verification. It is pure and stateless: callers are responsible for
// persisting attempts and for rejecting same-step replays.
package otpx

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time-step in seconds (RFC 6238 standard).
	Period = 30
	// Digits is the number of digits in a generated code.
	Digits = 6
	// Skew is the number of adjacent time-steps accepted either side of
	// the current one, to absorb clock drift.
	Skew = 1
)

// codePattern matches a syntactically valid 6-digit code.
var codePattern = regexp.MustCompile(`^\d{6}$`)

var ErrInvalidSecret = errors.New("otpx: invalid TOTP secret")

// Key is a freshly generated TOTP credential. Secret is base32-encoded;
// URI is the otpauth:// payload authenticator apps scan.
type Key struct {
	Secret string
	URI    string
}

// GenerateSecret creates a new 160-bit TOTP secret bound to the given
// issuer and account label.
func GenerateSecret(issuer, account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		SecretSize:  20, // 160 bits per RFC 4226
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("otpx: generate secret: %w", err)
	}
	return Key{Secret: k.Secret(), URI: k.URL()}, nil
}

// CodeAt computes the 6-digit code for the time-step containing t.
func CodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", ErrInvalidSecret
	}
	return code, nil
}

// Verify reports whether code is valid for secret at time t, accepting
// one step of drift either side. Codes that are not exactly six digits
// fail fast without touching the HMAC path.
func Verify(secret, code string, t time.Time) bool {
	if !WellFormed(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// WellFormed reports whether code has the shape of a TOTP code. The
// orchestrator uses this to dispatch between TOTP and recovery codes.
func WellFormed(code string) bool {
	return codePattern.MatchString(code)
}

// StepAt returns the time-step counter for t. The orchestrator persists
// the last accepted step per subject so a valid code cannot be replayed
// within its own window.
func StepAt(t time.Time) int64 {
	return t.Unix() / Period
}
