// Package contenthash fingerprints outbound notice content so the
// audit trail can prove exactly what was sent.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the lowercase hex SHA-256 of subject and body, joined by
// a NUL separator so ("ab","c") and ("a","bc") hash differently.
func Sum(subject, body string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
