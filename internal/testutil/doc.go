// Package testutil provides deterministic fixtures for slotstore tests:
// keypairs derived from fixed seeds, a controllable wall clock, fixed
// transaction ids and throwaway ledgers.
package testutil
