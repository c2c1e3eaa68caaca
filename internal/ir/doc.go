// Package ir provides the foundational types shared by every slotstore package.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Identities and derived addresses are 32-byte Pubkeys, rendered in base58
//   - Record payloads are IRObjects; NO float types in payloads (floats break
//     canonical hashing of signed instructions)
//   - Every error surfaced by the core is an *Error carrying a Code
//   - All JSON tags use snake_case
package ir
