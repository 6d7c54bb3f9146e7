package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity of non-fact values.
// Version suffix enables future algorithm migration. Facts themselves are
// hashed by package fact with the fact hash algorithm, not with these.
const (
	DomainSpecification = "factsync/specification/v1"
	DomainProduct       = "factsync/product/v1"
)

// HashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalHash marshals v canonically and hashes it under domain.
func CanonicalHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash (%s): %w", domain, err)
	}
	return HashWithDomain(domain, canonical), nil
}
