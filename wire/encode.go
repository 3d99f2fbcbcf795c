package wire

import (
	"fmt"
	"math"

	"github.com/jamespfennell/gtfsrt/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes the message.
//
// Known fields are written in field number order followed by the unknown fields, byte for byte,
// in the order they were decoded. Repeated scalars are written unpacked.
func Marshal(m *Message) ([]byte, error) {
	return appendMessage(nil, m)
}

func appendMessage(b []byte, m *Message) ([]byte, error) {
	var err error
	for _, f := range m.Descriptor.Fields {
		v, ok := m.values[f.Number]
		if !ok {
			continue
		}
		if !f.Repeated() {
			if b, err = appendField(b, f, v); err != nil {
				return nil, err
			}
			continue
		}
		l, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: repeated field holds %T", m.Descriptor.Name, f.Name, v)
		}
		for _, elem := range l {
			if b, err = appendField(b, f, elem); err != nil {
				return nil, err
			}
		}
	}
	for _, u := range m.Unknown {
		b = append(b, u.Raw...)
	}
	return b, nil
}

func appendField(b []byte, f *schema.Field, v any) ([]byte, error) {
	b = protowire.AppendTag(b, protowire.Number(f.Number), wireType(f.Kind))
	switch x := v.(type) {
	case bool:
		if f.Kind == schema.BoolKind {
			return protowire.AppendVarint(b, protowire.EncodeBool(x)), nil
		}
	case int32:
		if f.Kind == schema.Int32Kind || f.Kind == schema.EnumKind {
			// Negative int32 values are sign extended to ten bytes on the wire.
			return protowire.AppendVarint(b, uint64(int64(x))), nil
		}
	case uint32:
		if f.Kind == schema.Uint32Kind {
			return protowire.AppendVarint(b, uint64(x)), nil
		}
	case int64:
		if f.Kind == schema.Int64Kind {
			return protowire.AppendVarint(b, uint64(x)), nil
		}
	case uint64:
		if f.Kind == schema.Uint64Kind {
			return protowire.AppendVarint(b, x), nil
		}
	case float32:
		if f.Kind == schema.FloatKind {
			return protowire.AppendFixed32(b, math.Float32bits(x)), nil
		}
	case float64:
		if f.Kind == schema.DoubleKind {
			return protowire.AppendFixed64(b, math.Float64bits(x)), nil
		}
	case string:
		if f.Kind == schema.StringKind {
			return protowire.AppendString(b, x), nil
		}
	case []byte:
		if f.Kind == schema.BytesKind {
			return protowire.AppendBytes(b, x), nil
		}
	case *Message:
		if f.Kind == schema.MessageKind {
			child, err := appendMessage(nil, x)
			if err != nil {
				return nil, err
			}
			return protowire.AppendBytes(b, child), nil
		}
	}
	return nil, fmt.Errorf("field %s (%s): cannot encode value of type %T", f.Name, f.Kind, v)
}
