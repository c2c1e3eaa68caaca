package ir

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an identity or derived address in bytes.
const PubkeySize = 32

// Pubkey identifies an owner, a program, or a storage slot on the ledger.
// The text form is base58.
type Pubkey [PubkeySize]byte

// SystemProgram owns plain wallet accounts that hold no data.
var SystemProgram = Pubkey{}

// ParsePubkey decodes a base58 identity.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("parse pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeySize {
		return pk, fmt.Errorf("parse pubkey %q: got %d bytes, want %d", s, len(raw), PubkeySize)
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is like ParsePubkey but panics on error.
// Use only for compile-time constants and tests.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("pubkey: got %d bytes, want %d", len(b), PubkeySize)
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the raw key.
func (pk Pubkey) Bytes() []byte {
	return bytes.Clone(pk[:])
}

// IsZero reports whether pk is the all-zero key (the system program).
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// MarshalText implements encoding.TextMarshaler so Pubkeys render as base58
// in JSON and YAML.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
