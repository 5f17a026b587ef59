// Package keygen produces redemption key codes in the panel's
// PLATFORM-XXXX-XXXX-XXXX format.
package keygen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	alphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	segmentCount = 3
	segmentLen   = 4
)

// Code returns a new random key code prefixed with the upper-cased
// platform name, e.g. NETFLIX-7Q2M-0KXA-91BD. Uniqueness is checked by
// the caller against the store.
func Code(platform string) (string, error) {
	parts := make([]string, 0, segmentCount+1)
	parts = append(parts, strings.ToUpper(platform))
	for i := 0; i < segmentCount; i++ {
		seg, err := segment()
		if err != nil {
			return "", err
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "-"), nil
}

func segment() (string, error) {
	buf := make([]byte, segmentLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keygen: %w", err)
	}
	out := make([]byte, segmentLen)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// Normalize canonicalizes user-entered codes before lookup: bots pass
// codes through chat messages with stray spacing and mixed case.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
