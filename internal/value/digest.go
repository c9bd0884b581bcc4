package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest domains. The version suffix allows future algorithm migration.
const (
	DomainAction = "snapstate/action/v1"
)

// Digest computes SHA-256 over domain + 0x00 + canonical JSON of v.
// The null separator prevents domain/data boundary ambiguity.
func Digest(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
