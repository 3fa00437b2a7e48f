package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows a future
// algorithm migration without colliding with stored digests.
const (
	DomainProperties = "tessera/properties/v1"
	DomainChanges    = "tessera/changes/v1"
)

// Digest computes SHA256(domain + 0x00 + canonical(v)) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func Digest(domain string, v Value) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return DigestBytes(domain, data), nil
}

// DigestBytes hashes already-canonical bytes under a domain prefix.
func DigestBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
