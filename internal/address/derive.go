package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/roach88/slotstore/internal/ir"
)

const (
	// MaxSeedLen is the longest single seed accepted.
	MaxSeedLen = 32

	// MaxSeeds bounds the seed count, bump included.
	MaxSeeds = 16

	marker = "ProgramDerivedAddress"
)

// CreateAddress hashes seeds under program and returns the candidate address.
// Fails with ir.ErrInvalidSeeds when the candidate lies on the ed25519 curve.
func CreateAddress(seeds [][]byte, program ir.Pubkey) (ir.Pubkey, error) {
	if err := checkSeeds(seeds, MaxSeeds); err != nil {
		return ir.Pubkey{}, err
	}

	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(marker))

	var addr ir.Pubkey
	h.Sum(addr[:0])
	if onCurve(addr) {
		return ir.Pubkey{}, &ir.Error{Code: ir.CodeInvalidSeeds}
	}
	return addr, nil
}

// Derive finds the first off-curve address for seeds, trying bumps 255..0.
// Returns the address and the bump that produced it.
func Derive(seeds [][]byte, program ir.Pubkey) (ir.Pubkey, uint8, error) {
	// One slot is reserved for the bump seed.
	if err := checkSeeds(seeds, MaxSeeds-1); err != nil {
		return ir.Pubkey{}, 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ir.ErrInvalidSeeds) {
			return ir.Pubkey{}, 0, err
		}
	}
	return ir.Pubkey{}, 0, &ir.Error{Code: ir.CodeAddressSpaceExhausted}
}

// ForRecord derives the slot of a record keyed by (naturalKey, owner).
func ForRecord(naturalKey string, owner, program ir.Pubkey) (ir.Pubkey, uint8, error) {
	return Derive([][]byte{[]byte(naturalKey), owner[:]}, program)
}

// ForOwner derives the single slot an owner holds under a fixed tag,
// e.g. one escrow per owner.
func ForOwner(tag string, owner, program ir.Pubkey) (ir.Pubkey, uint8, error) {
	return Derive([][]byte{[]byte(tag), owner[:]}, program)
}

// OnCurve reports whether pk decodes as an ed25519 point, i.e. whether a
// private key could exist for it. Derived addresses are never on the curve.
func OnCurve(pk ir.Pubkey) bool {
	return onCurve(pk)
}

func onCurve(pk ir.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

func checkSeeds(seeds [][]byte, max int) error {
	if len(seeds) > max {
		return &ir.Error{
			Code:    ir.CodeTooManySeeds,
			Message: fmt.Sprintf("%d seeds, maximum %d", len(seeds), max),
		}
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return &ir.Error{
				Code:    ir.CodeSeedTooLong,
				Message: fmt.Sprintf("seed %d is %d bytes, maximum %d", i, len(s), MaxSeedLen),
			}
		}
	}
	return nil
}
