package wire

import (
	"fmt"

	"github.com/jamespfennell/gtfsrt/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeExtension decodes the unknown fields with the given number as a message of type md. If
// the field occurs more than once the occurrences are merged, as for any singular message field.
// It returns nil if the field is absent.
func DecodeExtension(u UnknownFields, number int32, md *schema.Message) (*Message, error) {
	var result *Message
	for _, f := range u.Find(number) {
		if f.Type != protowire.BytesType {
			return nil, malformed(0, fmt.Errorf("extension %d has wire type %d", number, f.Type))
		}
		_, _, n := protowire.ConsumeTag(f.Raw)
		if n < 0 {
			return nil, malformed(0, protowire.ParseError(n))
		}
		v, l := protowire.ConsumeBytes(f.Raw[n:])
		if l < 0 {
			return nil, malformed(n, protowire.ParseError(l))
		}
		m, err := unmarshal(v, n, md, false)
		if err != nil {
			return nil, fmt.Errorf("extension %d: %w", number, err)
		}
		if result == nil {
			result = m
		} else {
			result.merge(m)
		}
	}
	return result, nil
}

// EncodeExtension encodes m as an unknown field with the given number.
func EncodeExtension(number int32, m *Message) (RawField, error) {
	b, err := Marshal(m)
	if err != nil {
		return RawField{}, err
	}
	raw := protowire.AppendTag(nil, protowire.Number(number), protowire.BytesType)
	raw = protowire.AppendBytes(raw, b)
	return RawField{Number: number, Type: protowire.BytesType, Raw: raw}, nil
}

// SetExtension replaces the unknown fields with the given number by m.
func (u UnknownFields) SetExtension(number int32, m *Message) (UnknownFields, error) {
	f, err := EncodeExtension(number, m)
	if err != nil {
		return u, err
	}
	var out UnknownFields
	for _, existing := range u {
		if existing.Number != number {
			out = append(out, existing)
		}
	}
	return append(out, f), nil
}
