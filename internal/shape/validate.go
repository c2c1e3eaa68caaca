package shape

import (
	"fmt"
	"math"

	"github.com/roach88/slotstore/internal/ir"
)

// Validate checks payload against s, field by field in declared order, and
// returns the first violation. It is pure and does not modify payload.
//
// String fields longer than MaxLen fail with FIELD_TOO_LONG; integers outside
// their domain fail with OUT_OF_RANGE. Missing, mistyped and undeclared
// fields fail with MISSING_FIELD, TYPE_MISMATCH and UNKNOWN_FIELD. Strings
// not in NFC form fail with NOT_NORMALIZED.
func Validate(s *Shape, payload ir.IRObject) error {
	for _, f := range s.Fields {
		v, ok := payload[f.Name]
		if !ok {
			return &ir.Error{Code: ir.CodeMissingField, Field: f.Name}
		}
		if err := validateField(f, v); err != nil {
			return err
		}
	}

	for _, k := range payload.SortedKeys() {
		if _, ok := s.Field(k); !ok {
			return &ir.Error{Code: ir.CodeUnknownField, Field: k}
		}
	}
	return nil
}

func validateField(f Field, v ir.IRValue) error {
	switch f.Kind {
	case KindString:
		str, ok := v.(ir.IRString)
		if !ok {
			return mismatch(f, v)
		}
		if len(str) > f.MaxLen {
			return ir.FieldTooLong(f.Name, len(str), f.MaxLen)
		}
		if !ir.IsNFC(string(str)) {
			return ir.NotNormalized(f.Name)
		}

	case KindU8, KindU64, KindI64:
		n, ok := v.(ir.IRInt)
		if !ok {
			return mismatch(f, v)
		}
		lo, hi := kindDomain(f.Kind)
		if f.Ranged {
			lo, hi = max(lo, f.Min), min(hi, f.Max)
		}
		if int64(n) < lo || int64(n) > hi {
			return ir.OutOfRange(f.Name, fmt.Sprintf("%d outside [%d, %d]", n, lo, hi))
		}

	case KindBool:
		if _, ok := v.(ir.IRBool); !ok {
			return mismatch(f, v)
		}

	case KindPubkey:
		str, ok := v.(ir.IRString)
		if !ok {
			return mismatch(f, v)
		}
		if _, err := ir.ParsePubkey(string(str)); err != nil {
			return &ir.Error{Code: ir.CodeTypeMismatch, Field: f.Name, Message: err.Error()}
		}

	default:
		return &ir.Error{
			Code:    ir.CodeTypeMismatch,
			Field:   f.Name,
			Message: fmt.Sprintf("unknown kind %q", f.Kind),
		}
	}
	return nil
}

// kindDomain is the representable range of an integer kind. u64 values are
// carried as int64, so the upper bound is MaxInt64.
func kindDomain(k Kind) (int64, int64) {
	switch k {
	case KindU8:
		return 0, math.MaxUint8
	case KindU64:
		return 0, math.MaxInt64
	}
	return math.MinInt64, math.MaxInt64
}

func mismatch(f Field, v ir.IRValue) error {
	return &ir.Error{
		Code:    ir.CodeTypeMismatch,
		Field:   f.Name,
		Message: fmt.Sprintf("want %s, got %s", f.Kind, irKind(v)),
	}
}

func irKind(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRString:
		return "string"
	case ir.IRInt:
		return "int"
	case ir.IRBool:
		return "bool"
	case ir.IRArray:
		return "array"
	case ir.IRObject:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
