package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/scourlabs/scour/pkg/models"
)

// Digest computes the validation digest of a session: the SHA-256 hex of its
// canonical JSON form.
func Digest(session *models.Session) (string, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return CanonicalDigest(raw)
}

// CanonicalDigest normalizes raw JSON into its canonical form (object keys
// sorted, compact encoding) and returns the SHA-256 hex digest. Two
// serialisations of the same document always digest identically, regardless
// of key order or whitespace in the input.
func CanonicalDigest(raw []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to parse record for digest: %w", err)
	}
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
