package fraud

import (
	"crypto/sha256"
	"fmt"
)

// Fingerprint creates a hash of IP + User-Agent approximating a unique
// client device. Callers with a client-supplied fingerprint header should
// prefer that and fall back to this derivation.
func Fingerprint(ipAddress, userAgent string) string {
	data := []byte(fmt.Sprintf("%s:%s", ipAddress, userAgent))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}
