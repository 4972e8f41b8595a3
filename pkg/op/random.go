package op

import (
	"crypto/rand"
	"encoding/base64"
)

// randomToken generates a URL-safe random string from size bytes of
// entropy.
func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// generateCode produces an opaque code with 64 bytes of entropy,
// encoding to 86 characters.
func generateCode() string {
	return randomToken(64)
}
