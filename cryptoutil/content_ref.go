package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentRef returns the canonical reference for an off-chain document: the
// lowercase hex SHA-256 of its bytes.
func ContentRef(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// ValidateContentRef checks that ref is a well-formed content reference.
func ValidateContentRef(ref string) error {
	if len(ref) != 2*sha256.Size {
		return fmt.Errorf("ref length %d, want %d", len(ref), 2*sha256.Size)
	}
	if ref != strings.ToLower(ref) {
		return fmt.Errorf("ref must be lowercase hex")
	}
	if _, err := hex.DecodeString(ref); err != nil {
		return fmt.Errorf("ref is not hex: %w", err)
	}
	return nil
}

// VerifyContent checks that doc hashes to ref.
func VerifyContent(ref string, doc []byte) error {
	if have := ContentRef(doc); have != ref {
		return fmt.Errorf("content hash mismatch: want %s, have %s", ref, have)
	}
	return nil
}
