package shape

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/slotstore/internal/ir"
)

// Encode serializes payload under s: discriminator, then fields in declared
// order. The result is exactly Size(s, payload) bytes. Payload must already
// have passed Validate.
func Encode(s *Shape, payload ir.IRObject) ([]byte, error) {
	disc := s.Discriminator()
	buf := bytes.NewBuffer(make([]byte, 0, Size(s, payload)))
	buf.Write(disc[:])

	for _, f := range s.Fields {
		v := payload[f.Name]
		switch f.Kind {
		case KindString:
			str, ok := v.(ir.IRString)
			if !ok {
				return nil, mismatch(f, v)
			}
			buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(str))))
			buf.WriteString(string(str))

		case KindU8:
			n, ok := v.(ir.IRInt)
			if !ok {
				return nil, mismatch(f, v)
			}
			buf.WriteByte(byte(n))

		case KindU64, KindI64:
			n, ok := v.(ir.IRInt)
			if !ok {
				return nil, mismatch(f, v)
			}
			buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(n)))

		case KindBool:
			b, ok := v.(ir.IRBool)
			if !ok {
				return nil, mismatch(f, v)
			}
			if b {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}

		case KindPubkey:
			str, ok := v.(ir.IRString)
			if !ok {
				return nil, mismatch(f, v)
			}
			pk, err := ir.ParsePubkey(string(str))
			if err != nil {
				return nil, &ir.Error{Code: ir.CodeTypeMismatch, Field: f.Name, Message: err.Error()}
			}
			buf.Write(pk[:])

		default:
			return nil, fmt.Errorf("encode %s.%s: unknown kind %q", s.Name, f.Name, f.Kind)
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a record written by Encode. Trailing bytes past the last
// field are ignored, so a record may live in a larger zero-filled account.
func Decode(s *Shape, data []byte) (ir.IRObject, error) {
	disc := s.Discriminator()
	if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc[:]) {
		return nil, fmt.Errorf("decode %s: discriminator mismatch", s.Name)
	}

	r := reader{buf: data, off: len(disc)}
	out := make(ir.IRObject, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case KindString:
			n, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			b, err := r.take(int(n))
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			out[f.Name] = ir.IRString(b)

		case KindU8:
			b, err := r.take(1)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			out[f.Name] = ir.IRInt(b[0])

		case KindU64:
			b, err := r.take(8)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			n := binary.LittleEndian.Uint64(b)
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("decode %s.%s: %d overflows int64", s.Name, f.Name, n)
			}
			out[f.Name] = ir.IRInt(n)

		case KindI64:
			b, err := r.take(8)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			out[f.Name] = ir.IRInt(int64(binary.LittleEndian.Uint64(b)))

		case KindBool:
			b, err := r.take(1)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			out[f.Name] = ir.IRBool(b[0] != 0)

		case KindPubkey:
			b, err := r.take(ir.PubkeySize)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", s.Name, f.Name, err)
			}
			var pk ir.Pubkey
			copy(pk[:], b)
			out[f.Name] = ir.IRString(pk.String())

		default:
			return nil, fmt.Errorf("decode %s.%s: unknown kind %q", s.Name, f.Name, f.Kind)
		}
	}
	return out, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("truncated at offset %d: need %d bytes, have %d", r.off, n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Segment is one field's byte range within an encoded record.
type Segment struct {
	Field  string `json:"field"`
	Offset int    `json:"offset"`
	Bytes  []byte `json:"bytes"`
}

// Segments splits an encoded record into its discriminator and field ranges.
// String segments include their length prefix.
func Segments(s *Shape, data []byte) ([]Segment, error) {
	if _, err := Decode(s, data); err != nil {
		return nil, err
	}
	segs := []Segment{{Field: "discriminator", Offset: 0, Bytes: data[:ir.DiscriminatorSize]}}
	off := ir.DiscriminatorSize
	for _, f := range s.Fields {
		n := fixedSize[f.Kind]
		if f.Kind == KindString {
			n = lengthPrefix + int(binary.LittleEndian.Uint32(data[off:]))
		}
		segs = append(segs, Segment{Field: f.Name, Offset: off, Bytes: data[off : off+n]})
		off += n
	}
	return segs, nil
}
