package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/jamespfennell/gtfsrt/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedInput is matched by every decoding error caused by unparseable bytes.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError reports where in the input decoding failed.
type MalformedInputError struct {
	// Offset is the position in the top-level buffer.
	Offset int
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at byte %d: %s", e.Offset, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

func malformed(offset int, err error) error {
	return &MalformedInputError{Offset: offset, Err: err}
}

// ElementError is an element of a repeated message field that is correctly framed but whose
// content cannot be decoded.
type ElementError struct {
	Field string
	// Index is the position of the element in the field.
	Index int
	Err   *MalformedInputError
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Field, e.Index, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// Unmarshal decodes b as a message of the given type.
//
// The decoder is schema-permissive: absent required fields are not reported here.
func Unmarshal(b []byte, md *schema.Message) (*Message, error) {
	return unmarshal(b, 0, md, false)
}

// UnmarshalPartial is like Unmarshal except for the repeated message fields of the top-level
// message. An element of such a field whose framing is intact but whose content is malformed is
// recorded in Message.Malformed and replaced by an empty message, so element indices still match
// the input. The other elements are decoded as usual.
func UnmarshalPartial(b []byte, md *schema.Message) (*Message, error) {
	return unmarshal(b, 0, md, true)
}

func unmarshal(b []byte, base int, md *schema.Message, partial bool) (*Message, error) {
	m := New(md)
	for off := 0; off < len(b); {
		num, typ, n := protowire.ConsumeTag(b[off:])
		if n < 0 {
			return nil, malformed(base+off, protowire.ParseError(n))
		}
		valueStart := off + n
		l := protowire.ConsumeFieldValue(num, typ, b[valueStart:])
		if l < 0 {
			return nil, malformed(base+valueStart, protowire.ParseError(l))
		}
		end := valueStart + l
		f := md.Field(int32(num))
		if f == nil || !accepts(f, typ) {
			m.Unknown = append(m.Unknown, RawField{
				Number: int32(num),
				Type:   typ,
				Raw:    append([]byte(nil), b[off:end]...),
			})
			off = end
			continue
		}
		err := m.decodeField(f, typ, b[valueStart:end], base+valueStart)
		var mErr *MalformedInputError
		if err != nil && partial && f.Repeated() && f.Kind == schema.MessageKind && errors.As(err, &mErr) {
			m.Malformed = append(m.Malformed, &ElementError{
				Field: f.Name,
				Index: len(m.List(f.Name)),
				Err:   mErr,
			})
			m.Append(f.Name, New(f.Message()))
			err = nil
		}
		if err != nil {
			return nil, err
		}
		off = end
	}
	return m, nil
}

// wireType returns the wire type a field of the given kind is encoded with.
func wireType(k schema.Kind) protowire.Type {
	switch k {
	case schema.FloatKind:
		return protowire.Fixed32Type
	case schema.DoubleKind:
		return protowire.Fixed64Type
	case schema.StringKind, schema.BytesKind, schema.MessageKind:
		return protowire.BytesType
	default:
		return protowire.VarintType
	}
}

func accepts(f *schema.Field, typ protowire.Type) bool {
	if typ == wireType(f.Kind) {
		return true
	}
	return f.Repeated() && f.Kind.Scalar() && typ == protowire.BytesType
}

func (m *Message) decodeField(f *schema.Field, typ protowire.Type, b []byte, base int) error {
	if f.Repeated() && f.Kind.Scalar() && typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return malformed(base, protowire.ParseError(n))
		}
		elemBase := base + n - len(packed)
		for off := 0; off < len(packed); {
			v, n, err := decodeScalar(f.Kind, wireType(f.Kind), packed[off:], elemBase+off)
			if err != nil {
				return err
			}
			m.Append(f.Name, v)
			off += n
		}
		return nil
	}
	var v any
	if f.Kind == schema.MessageKind {
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return malformed(base, protowire.ParseError(n))
		}
		child, err := unmarshal(raw, base+n-len(raw), f.Message(), false)
		if err != nil {
			return err
		}
		v = child
	} else {
		var err error
		v, _, err = decodeScalar(f.Kind, typ, b, base)
		if err != nil {
			return err
		}
	}
	if f.Repeated() {
		m.Append(f.Name, v)
		return nil
	}
	// A singular message field that appears more than once is merged; scalars take the last value.
	if child, ok := v.(*Message); ok {
		if existing, ok := m.values[f.Number].(*Message); ok {
			existing.merge(child)
			return nil
		}
	}
	m.values[f.Number] = v
	return nil
}

func decodeScalar(k schema.Kind, typ protowire.Type, b []byte, base int) (any, int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, malformed(base, protowire.ParseError(n))
		}
		switch k {
		case schema.BoolKind:
			return protowire.DecodeBool(v), n, nil
		case schema.Int32Kind, schema.EnumKind:
			return int32(v), n, nil
		case schema.Uint32Kind:
			return uint32(v), n, nil
		case schema.Int64Kind:
			return int64(v), n, nil
		default:
			return v, n, nil
		}
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, 0, malformed(base, protowire.ParseError(n))
		}
		return math.Float32frombits(v), n, nil
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, 0, malformed(base, protowire.ParseError(n))
		}
		return math.Float64frombits(v), n, nil
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, 0, malformed(base, protowire.ParseError(n))
		}
		if k == schema.StringKind {
			return string(v), n, nil
		}
		return append([]byte(nil), v...), n, nil
	}
	return nil, 0, malformed(base, fmt.Errorf("unexpected wire type %d", typ))
}

func (m *Message) merge(src *Message) {
	for _, f := range src.Present() {
		v := src.values[f.Number]
		switch {
		case f.Repeated():
			l, _ := m.values[f.Number].([]any)
			m.values[f.Number] = append(l, v.([]any)...)
		case f.Kind == schema.MessageKind:
			if existing, ok := m.values[f.Number].(*Message); ok {
				existing.merge(v.(*Message))
				continue
			}
			m.values[f.Number] = v
		default:
			m.values[f.Number] = v
		}
	}
	m.Unknown = append(m.Unknown, src.Unknown...)
}
