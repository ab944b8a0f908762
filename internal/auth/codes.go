package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// JoinCodeLength is the length of generated organization join codes.
const JoinCodeLength = 8

// joinCodeAlphabet omits 0/O and 1/I/L so codes survive being read aloud.
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateJoinCode returns a random join code drawn from an unambiguous
// upper-case alphabet.
func GenerateJoinCode() (string, error) {
	b := make([]byte, JoinCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	out := make([]byte, JoinCodeLength)
	for i, v := range b {
		// 248 is the largest multiple of len(alphabet) below 256; rejection
		// keeps the distribution uniform.
		for int(v) >= 248 {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				return "", fmt.Errorf("generate join code: %w", err)
			}
			v = one[0]
		}
		out[i] = joinCodeAlphabet[int(v)%len(joinCodeAlphabet)]
	}
	return string(out), nil
}

// NormalizeJoinCode upper-cases and trims a user-supplied join code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateToken returns a random 256-bit hex token for emailed links.
// Only its HashToken digest is ever persisted.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the SHA-256 hex digest of raw.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Slugify lower-cases name and collapses every run of non-alphanumerics into
// a single hyphen. It returns "org" for names with no usable characters.
func Slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if sb.Len() > 0 && !dash {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(sb.String(), "-")
	if len(slug) > 48 {
		slug = strings.TrimSuffix(slug[:48], "-")
	}
	if slug == "" {
		return "org"
	}
	return slug
}
