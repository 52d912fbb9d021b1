package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for hashed identities.
// The version suffix allows a future algorithm migration.
const (
	DomainSourceKey = "streamscope/source-key/v1"
	DomainSnapshot  = "streamscope/snapshot/v1"
)

// SourceKeyLen is the number of hex characters kept from a source key hash.
const SourceKeyLen = 16

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte keeps the
// domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceKey hashes a structure-normalized call-site description into a
// stable track key. Equal descriptions always produce equal keys.
func SourceKey(desc Object) (string, error) {
	canonical, err := MarshalCanonical(desc)
	if err != nil {
		return "", fmt.Errorf("SourceKey: %w", err)
	}
	return hashWithDomain(DomainSourceKey, canonical)[:SourceKeyLen], nil
}

// SnapshotDigest returns a content hash of a snapshot. Two accumulators
// that applied the same events produce the same digest.
func SnapshotDigest(s Snapshot) (string, error) {
	canonical, err := CanonicalJSON(s)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
