// Package shape describes record layouts and validates payloads against them.
//
// A Shape lists the fields of one record type in declared order. Strings are
// bounded by a byte length; integers may carry a closed [Min, Max] domain.
// Every shape names a key field (the natural key, a bounded string that is
// also an address seed) and an owner field (a pubkey).
//
// The binary layout mirrors the ledger account format: an 8-byte
// discriminator followed by each field, little endian, strings as a u32
// length prefix and their bytes.
package shape

import (
	"fmt"
	"slices"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/ir"
)

// Kind is the wire type of a field.
type Kind string

const (
	KindString Kind = "string"
	KindU8     Kind = "u8"
	KindU64    Kind = "u64"
	KindI64    Kind = "i64"
	KindBool   Kind = "bool"
	KindPubkey Kind = "pubkey"
)

// fixedSize is the encoded width of each non-string kind.
var fixedSize = map[Kind]int{
	KindU8:     1,
	KindU64:    8,
	KindI64:    8,
	KindBool:   1,
	KindPubkey: ir.PubkeySize,
}

// lengthPrefix is the width of a string's length header.
const lengthPrefix = 4

// Field is one declared field of a shape.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// MaxLen bounds a string field in bytes.
	MaxLen int `json:"max_len,omitempty"`

	// Min and Max bound an integer field when Ranged is set.
	Ranged bool  `json:"ranged,omitempty"`
	Min    int64 `json:"min,omitempty"`
	Max    int64 `json:"max,omitempty"`
}

// IsInteger reports whether the field holds an integer kind.
func (f Field) IsInteger() bool {
	return f.Kind == KindU8 || f.Kind == KindU64 || f.Kind == KindI64
}

// Shape is the descriptor of a record type.
type Shape struct {
	// Name is the shape's registry name, e.g. "movie_review".
	Name string `json:"name"`

	// Account is the account type name the discriminator is derived from.
	Account string `json:"account"`

	// KeyField names the natural key. OwnerField names the owner identity.
	KeyField   string `json:"key_field"`
	OwnerField string `json:"owner_field"`

	Fields []Field `json:"fields"`
}

// Field returns the declared field called name.
func (s *Shape) Field(name string) (Field, bool) {
	i := slices.IndexFunc(s.Fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Discriminator is the 8-byte tag written at the start of every record.
func (s *Shape) Discriminator() [ir.DiscriminatorSize]byte {
	return ir.Discriminator(s.Account)
}

// Check rejects ill-formed descriptors.
func (s *Shape) Check() error {
	if s.Name == "" {
		return fmt.Errorf("shape: name is required")
	}
	if s.Account == "" {
		return fmt.Errorf("shape %s: account is required", s.Name)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("shape %s: at least one field is required", s.Name)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("shape %s: field with empty name", s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("shape %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true

		switch {
		case f.Kind == KindString:
			if f.MaxLen <= 0 {
				return fmt.Errorf("shape %s: field %s: max_len must be positive", s.Name, f.Name)
			}
		case f.IsInteger():
			if f.Ranged && f.Min > f.Max {
				return fmt.Errorf("shape %s: field %s: min %d > max %d", s.Name, f.Name, f.Min, f.Max)
			}
		case f.Kind == KindBool, f.Kind == KindPubkey:
		default:
			return fmt.Errorf("shape %s: field %s: unknown kind %q", s.Name, f.Name, f.Kind)
		}
		if f.Ranged && !f.IsInteger() {
			return fmt.Errorf("shape %s: field %s: range on non-integer kind %s", s.Name, f.Name, f.Kind)
		}
	}

	key, ok := s.Field(s.KeyField)
	if !ok {
		return fmt.Errorf("shape %s: key field %q is not declared", s.Name, s.KeyField)
	}
	if key.Kind != KindString {
		return fmt.Errorf("shape %s: key field %s must be a string", s.Name, key.Name)
	}
	if key.MaxLen > address.MaxSeedLen {
		return fmt.Errorf("shape %s: key field %s max_len %d exceeds seed limit %d",
			s.Name, key.Name, key.MaxLen, address.MaxSeedLen)
	}

	owner, ok := s.Field(s.OwnerField)
	if !ok {
		return fmt.Errorf("shape %s: owner field %q is not declared", s.Name, s.OwnerField)
	}
	if owner.Kind != KindPubkey {
		return fmt.Errorf("shape %s: owner field %s must be a pubkey", s.Name, owner.Name)
	}
	return nil
}

// MaxSize is the storage size of a record whose strings are all at their
// maximum length: discriminator, fixed fields, and 4+MaxLen per string.
func MaxSize(s *Shape) int {
	n := ir.DiscriminatorSize
	for _, f := range s.Fields {
		if f.Kind == KindString {
			n += lengthPrefix + f.MaxLen
			continue
		}
		n += fixedSize[f.Kind]
	}
	return n
}

// Size is the exact storage size of payload under s. Strings contribute
// 4+len bytes; absent strings count as empty.
func Size(s *Shape, payload ir.IRObject) int {
	n := ir.DiscriminatorSize
	for _, f := range s.Fields {
		if f.Kind == KindString {
			str, _ := payload.String(f.Name)
			n += lengthPrefix + len(str)
			continue
		}
		n += fixedSize[f.Kind]
	}
	return n
}
