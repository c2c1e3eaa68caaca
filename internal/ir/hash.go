package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for hashes computed by slotstore.
// Version suffix enables future algorithm migration.
const (
	DomainInstruction = "slotstore/instruction/v1"
	DomainEvent       = "slotstore/event/v1"
)

// DiscriminatorSize is the length of the tag at the start of every data account.
const DiscriminatorSize = 8

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// HexHashWithDomain is HashWithDomain rendered as lowercase hex.
func HexHashWithDomain(domain string, data []byte) string {
	sum := HashWithDomain(domain, data)
	return hex.EncodeToString(sum[:])
}

// Discriminator returns the 8-byte account tag for an account type name:
// the first 8 bytes of SHA256("account:" + name). The "account:" prefix is the
// namespace; it is compatible with the Anchor account layout.
func Discriminator(accountName string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + accountName))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
