package ir

import (
	"errors"
	"fmt"
)

// Error is the single error type surfaced by the record store, the custody
// gate and the ledger host.
//
// Error carries a Code for programmatic handling, plus optional Field and
// Address for diagnostics. Compare with errors.Is against the Err* sentinels;
// only the Code takes part in the match.
type Error struct {
	// Code identifies the error.
	Code ErrorCode

	// Field names the offending payload field (validation errors).
	Field string

	// Address is the derived slot the operation targeted, if known.
	Address Pubkey

	// Message is a human-readable description.
	Message string
}

// ErrorCode identifies a failure. Codes are grouped by Category.
type ErrorCode string

const (
	// Validation.
	CodeFieldTooLong  ErrorCode = "FIELD_TOO_LONG"
	CodeOutOfRange    ErrorCode = "OUT_OF_RANGE"
	CodeMissingField  ErrorCode = "MISSING_FIELD"
	CodeTypeMismatch  ErrorCode = "TYPE_MISMATCH"
	CodeUnknownField  ErrorCode = "UNKNOWN_FIELD"
	CodeSeedTooLong   ErrorCode = "SEED_TOO_LONG"
	CodeTooManySeeds  ErrorCode = "TOO_MANY_SEEDS"
	CodeInvalidSeeds  ErrorCode = "INVALID_SEEDS"
	CodeNotNormalized ErrorCode = "NOT_NORMALIZED"

	// Lifecycle.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"

	// Custody.
	CodeConditionNotMet   ErrorCode = "CONDITION_NOT_MET"
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	CodeStalePrice        ErrorCode = "STALE_PRICE"

	// Address space.
	CodeAddressSpaceExhausted ErrorCode = "ADDRESS_SPACE_EXHAUSTED"
)

// Category groups error codes.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryLifecycle  Category = "lifecycle"
	CategoryCustody    Category = "custody"
	CategoryAddress    Category = "address"
)

var categories = map[ErrorCode]Category{
	CodeFieldTooLong:          CategoryValidation,
	CodeOutOfRange:            CategoryValidation,
	CodeMissingField:          CategoryValidation,
	CodeTypeMismatch:          CategoryValidation,
	CodeUnknownField:          CategoryValidation,
	CodeSeedTooLong:           CategoryValidation,
	CodeTooManySeeds:          CategoryValidation,
	CodeInvalidSeeds:          CategoryValidation,
	CodeNotNormalized:         CategoryValidation,
	CodeAlreadyExists:         CategoryLifecycle,
	CodeNotFound:              CategoryLifecycle,
	CodeUnauthorized:          CategoryLifecycle,
	CodeConditionNotMet:       CategoryCustody,
	CodeInsufficientFunds:     CategoryCustody,
	CodeStalePrice:            CategoryCustody,
	CodeAddressSpaceExhausted: CategoryAddress,
}

// Sentinels for errors.Is.
var (
	ErrFieldTooLong          = &Error{Code: CodeFieldTooLong}
	ErrOutOfRange            = &Error{Code: CodeOutOfRange}
	ErrMissingField          = &Error{Code: CodeMissingField}
	ErrTypeMismatch          = &Error{Code: CodeTypeMismatch}
	ErrUnknownField          = &Error{Code: CodeUnknownField}
	ErrSeedTooLong           = &Error{Code: CodeSeedTooLong}
	ErrTooManySeeds          = &Error{Code: CodeTooManySeeds}
	ErrInvalidSeeds          = &Error{Code: CodeInvalidSeeds}
	ErrNotNormalized         = &Error{Code: CodeNotNormalized}
	ErrAlreadyExists         = &Error{Code: CodeAlreadyExists}
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized}
	ErrConditionNotMet       = &Error{Code: CodeConditionNotMet}
	ErrInsufficientFunds     = &Error{Code: CodeInsufficientFunds}
	ErrStalePrice            = &Error{Code: CodeStalePrice}
	ErrAddressSpaceExhausted = &Error{Code: CodeAddressSpaceExhausted}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Code)
	}
	switch {
	case e.Field != "" && !e.Address.IsZero():
		return fmt.Sprintf("%s: %s (field=%s, address=%s)", e.Code, msg, e.Field, e.Address)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, msg, e.Field)
	case !e.Address.IsZero():
		return fmt.Sprintf("%s: %s (address=%s)", e.Code, msg, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Category returns the group the error's code belongs to.
func (e *Error) Category() Category {
	return categories[e.Code]
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FieldTooLong reports a string field exceeding its declared maximum.
func FieldTooLong(field string, got, max int) *Error {
	return &Error{
		Code:    CodeFieldTooLong,
		Field:   field,
		Message: fmt.Sprintf("length %d exceeds maximum %d", got, max),
	}
}

// OutOfRange reports a scalar outside its declared domain.
func OutOfRange(field string, msg string) *Error {
	return &Error{Code: CodeOutOfRange, Field: field, Message: msg}
}

// NotNormalized reports a string that is not in NFC form. Canonical JSON
// normalizes strings, so a signed digest binds only NFC text.
func NotNormalized(field string) *Error {
	return &Error{Code: CodeNotNormalized, Field: field}
}

// NotFound reports an absent record at addr.
func NotFound(addr Pubkey) *Error {
	return &Error{Code: CodeNotFound, Address: addr}
}

// AlreadyExists reports an occupied slot at addr.
func AlreadyExists(addr Pubkey) *Error {
	return &Error{Code: CodeAlreadyExists, Address: addr}
}

// Unauthorized reports a caller that failed the owner check.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// InsufficientFunds reports a payer unable to cover amount.
func InsufficientFunds(payer Pubkey, have, need uint64) *Error {
	return &Error{
		Code:    CodeInsufficientFunds,
		Address: payer,
		Message: fmt.Sprintf("balance %d, need %d", have, need),
	}
}

func defaultMessage(code ErrorCode) string {
	switch code {
	case CodeFieldTooLong:
		return "field too long"
	case CodeOutOfRange:
		return "value out of range"
	case CodeMissingField:
		return "missing field"
	case CodeTypeMismatch:
		return "wrong field type"
	case CodeUnknownField:
		return "unknown field"
	case CodeSeedTooLong:
		return "seed longer than 32 bytes"
	case CodeTooManySeeds:
		return "too many seeds"
	case CodeInvalidSeeds:
		return "seeds derive an on-curve address"
	case CodeNotNormalized:
		return "string is not in NFC form"
	case CodeAlreadyExists:
		return "record already exists"
	case CodeNotFound:
		return "record not found"
	case CodeUnauthorized:
		return "caller is not the record owner"
	case CodeConditionNotMet:
		return "release condition not met"
	case CodeInsufficientFunds:
		return "insufficient funds"
	case CodeStalePrice:
		return "price is stale"
	case CodeAddressSpaceExhausted:
		return "no off-curve address for seeds"
	}
	return "error"
}
