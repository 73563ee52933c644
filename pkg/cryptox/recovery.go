package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Recovery codes use the Crockford base32 alphabet: unambiguous,
// human-typeable, no vowels that could spell words.
const recoveryAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	// RecoveryCodeGroups is the number of dash-separated groups per code.
	RecoveryCodeGroups = 3
	// RecoveryCodeGroupLen is the number of characters per group.
	RecoveryCodeGroupLen = 4
	// SaltSize is the byte length of per-subject hashing salts.
	SaltSize = 16
)

// GenerateRecoveryCode produces a single high-entropy recovery code in
// the form XXXX-XXXX-XXXX (~60 bits of entropy).
func GenerateRecoveryCode() (string, error) {
	raw := make([]byte, RecoveryCodeGroups*RecoveryCodeGroupLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("cryptox: generate recovery code: %w", err)
	}

	groups := make([]string, RecoveryCodeGroups)
	for g := range RecoveryCodeGroups {
		var b strings.Builder
		for i := range RecoveryCodeGroupLen {
			b.WriteByte(recoveryAlphabet[int(raw[g*RecoveryCodeGroupLen+i])%len(recoveryAlphabet)])
		}
		groups[g] = b.String()
	}
	return strings.Join(groups, "-"), nil
}

// GenerateRecoveryCodes produces n distinct recovery codes.
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := GenerateRecoveryCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeRecoveryCode uppercases and strips whitespace so user input
// hashes identically to the issued form.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LooksLikeRecoveryCode reports whether input has the dashed-group shape
// of a recovery code. Used to dispatch between code types; it says
// nothing about validity.
func LooksLikeRecoveryCode(code string) bool {
	code = NormalizeRecoveryCode(code)
	parts := strings.Split(code, "-")
	if len(parts) != RecoveryCodeGroups {
		return false
	}
	for _, p := range parts {
		if len(p) != RecoveryCodeGroupLen {
			return false
		}
		for i := 0; i < len(p); i++ {
			if !strings.ContainsRune(recoveryAlphabet, rune(p[i])) {
				return false
			}
		}
	}
	return true
}

// GenerateSalt returns a fresh per-subject salt for recovery-code
// hashing, base64url-encoded.
func GenerateSalt() (string, error) {
	buf := make([]byte, SaltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRecoveryCode computes a deterministic salted hash of a recovery
// code. HMAC-SHA256 keyed by the subject's salt keeps lookups by hash
// possible while preventing cross-subject rainbow tables.
func HashRecoveryCode(salt, code string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(NormalizeRecoveryCode(code)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
