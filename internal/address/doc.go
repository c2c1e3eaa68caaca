// Package address derives deterministic storage addresses for records.
//
// An address is computed from caller seeds (a natural key, an owner identity,
// a fixed tag) and the program identity acting as the domain-separation tag:
//
//	SHA256(seed_1 || ... || seed_n || bump || program || "ProgramDerivedAddress")
//
// The bump is searched from 255 downward until the digest is NOT a valid
// ed25519 point, so no private key can ever sign for the address. Derivation
// is a pure function: the same inputs always yield the same address and bump.
package address
