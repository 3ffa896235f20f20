// Package license implements the activation key format: random server keys, device-bound
// client keys derived from them, and the normalization applied to anything a user types.
package license

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

const (
	// KeyLength is the number of significant characters in a key.
	KeyLength = 16
	groupSize = 4
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateServerKey returns a fresh 80-bit key formatted for display.
func GenerateServerKey() (string, error) {
	buf := make([]byte, KeyLength*5/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate server key: %w", err)
	}
	return Format(encoding.EncodeToString(buf)), nil
}

// DeriveClientKey binds serverKey to one device fingerprint.
func DeriveClientKey(secret []byte, serverKey, fingerprint string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Normalize(serverKey)))
	mac.Write([]byte(fingerprint))
	return Format(encoding.EncodeToString(mac.Sum(nil))[:KeyLength])
}

// VerifyClientKey reports whether presented was derived from serverKey for fingerprint.
func VerifyClientKey(secret []byte, serverKey, fingerprint, presented string) bool {
	expected := Normalize(DeriveClientKey(secret, serverKey, fingerprint))
	return hmac.Equal([]byte(expected), []byte(Normalize(presented)))
}

// Normalize strips separators and whitespace and upper-cases the key.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format normalizes key and groups it as XXXX-XXXX-XXXX-XXXX.
func Format(key string) string {
	raw := Normalize(key)
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WellFormed reports whether key has the right length and alphabet after normalization.
func WellFormed(key string) bool {
	raw := Normalize(key)
	if len(raw) != KeyLength {
		return false
	}
	for _, r := range raw {
		if !(r >= 'A' && r <= 'Z') && !(r >= '2' && r <= '7') {
			return false
		}
	}
	return true
}
