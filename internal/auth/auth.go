// Package auth signs and verifies instructions with ed25519 keypairs.
//
// An instruction is identified by a SHA-256 digest over its canonical JSON
// form, domain-separated with ir.DomainInstruction. The caller signs the
// digest; the record manager and custody gate verify it before touching the
// ledger. Replay protection is not provided.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/roach88/slotstore/internal/ir"
)

// Instruction is a request to mutate ledger state.
type Instruction struct {
	// Program is the program identity the instruction targets.
	Program ir.Pubkey
	// Name is the operation, e.g. "record.create".
	Name string
	// Owner is the owner of the targeted record.
	Owner ir.Pubkey
	// Args carries the operation's arguments. Floats are not allowed.
	Args ir.IRObject
}

// Digest returns the SHA-256 digest the signer signs.
//
// Every string in Args must be in NFC form. Canonical JSON normalizes
// strings, while addresses are derived from raw key bytes, so two spellings
// of one key would otherwise share a signature.
func (ins Instruction) Digest() ([32]byte, error) {
	args := ins.Args
	if args == nil {
		args = ir.IRObject{}
	}
	if err := checkNormalized("args", args); err != nil {
		return [32]byte{}, fmt.Errorf("instruction digest: %w", err)
	}
	data, err := ir.MarshalCanonical(ir.IRObject{
		"program":     ir.IRString(ins.Program.String()),
		"instruction": ir.IRString(ins.Name),
		"owner":       ir.IRString(ins.Owner.String()),
		"args":        args,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("instruction digest: %w", err)
	}
	return ir.HashWithDomain(ir.DomainInstruction, data), nil
}

func checkNormalized(path string, v ir.IRValue) error {
	switch val := v.(type) {
	case ir.IRString:
		if !ir.IsNFC(string(val)) {
			return ir.NotNormalized(path)
		}
	case ir.IRObject:
		for _, k := range val.SortedKeys() {
			if !ir.IsNFC(k) {
				return ir.NotNormalized(path)
			}
			if err := checkNormalized(path+"."+k, val[k]); err != nil {
				return err
			}
		}
	case ir.IRArray:
		for i, elem := range val {
			if err := checkNormalized(fmt.Sprintf("%s[%d]", path, i), elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// Authorization is a signer's proof over one instruction.
type Authorization struct {
	Signer    ir.Pubkey
	Signature []byte
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("keypair seed: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes accepts the 64-byte seed||pubkey encoding.
func KeypairFromBytes(b []byte) (Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("keypair: got %d bytes, want %d", len(b), ed25519.PrivateKeySize)
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return Keypair{}, err
	}
	if string(kp.priv[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
		return Keypair{}, fmt.Errorf("keypair: public half does not match seed")
	}
	return kp, nil
}

// Pubkey returns the public identity.
func (k Keypair) Pubkey() ir.Pubkey {
	var pk ir.Pubkey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// Bytes returns the 64-byte seed||pubkey encoding.
func (k Keypair) Bytes() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

// Sign produces an Authorization over ins.
func (k Keypair) Sign(ins Instruction) (Authorization, error) {
	digest, err := ins.Digest()
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{
		Signer:    k.Pubkey(),
		Signature: ed25519.Sign(k.priv, digest[:]),
	}, nil
}

// Verify checks that a was produced by a.Signer over ins.
// Any failure is reported as UNAUTHORIZED.
func Verify(a Authorization, ins Instruction) error {
	digest, err := ins.Digest()
	if err != nil {
		return err
	}
	if len(a.Signature) != ed25519.SignatureSize {
		return ir.Unauthorized("malformed signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(a.Signer[:]), digest[:], a.Signature) {
		return ir.Unauthorized(fmt.Sprintf("invalid signature by %s on %s", a.Signer, ins.Name))
	}
	return nil
}
