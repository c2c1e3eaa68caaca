// Package record manages the lifecycle of size-bounded records stored at
// derived addresses.
//
// One Manager serves one shape under one program identity. A record's address
// is derived from its natural key and its owner, so the pair identifies it:
//
//	Absent --Create--> Present --Update--> Present --Delete--> Absent
//
// Create allocates storage for the shape's maximum size, paid by the owner.
// Update resizes storage to exactly fit the new payload, charging or
// refunding the reserve difference. Delete reclaims the storage and returns
// the whole balance to the owner; the same (key, owner) may then be created
// again.
//
// Every mutating call carries an auth.Authorization over the corresponding
// instruction, and runs inside one ledger transaction.
package record
