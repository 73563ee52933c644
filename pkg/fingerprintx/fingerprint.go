// Package fingerprintx derives a stable device identifier from client
// attributes. The identifier must be deterministic for the same device
// across sessions and must not flip on a single spoofed header, so it
// hashes a multi-attribute vector rather than any one signal.
package fingerprintx

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Attributes is the opaque input vector a client presents. IP address
// is carried for audit purposes but deliberately excluded from the
// hash: DHCP churn must not orphan trust grants.
type Attributes struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Platform       string // e.g. Sec-CH-UA-Platform or OS family
	IPAddress      string

	// Extra carries additional stable client hints (canvas signal,
	// installed fonts digest, screen metrics). Keys are sorted before
	// hashing so map order never changes the fingerprint.
	Extra map[string]string
}

// DeviceID computes the stable fingerprint for a set of attributes as
// a 32-character hex string.
func DeviceID(a Attributes) string {
	components := []string{
		strings.TrimSpace(a.UserAgent),
		strings.TrimSpace(a.AcceptLanguage),
		strings.TrimSpace(a.AcceptEncoding),
		strings.ToLower(strings.TrimSpace(a.Platform)),
		BrowserFamily(a.UserAgent),
	}

	keys := make([]string, 0, len(a.Extra))
	for k := range a.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		components = append(components, k+"="+a.Extra[k])
	}

	var filtered []string
	for _, c := range components {
		if c != "" {
			filtered = append(filtered, c)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return hex.EncodeToString(sum[:16])
}

// Matches reports whether the presented attributes hash to the stored
// device id.
func Matches(a Attributes, deviceID string) bool {
	return DeviceID(a) == deviceID
}
