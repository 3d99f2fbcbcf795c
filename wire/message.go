// Package wire is a schema-driven codec for the tagged binary protocol buffer encoding.
//
// Decoding produces a dynamic Message tree. Fields the descriptor does not know, including fields
// in extension ranges, are kept as raw bytes and written back verbatim when the tree is encoded
// again.
//
// Values held by a Message have the Go type dictated by the field kind:
//
//	bool      schema.BoolKind
//	int32     schema.Int32Kind, schema.EnumKind
//	uint32    schema.Uint32Kind
//	int64     schema.Int64Kind
//	uint64    schema.Uint64Kind
//	float32   schema.FloatKind
//	float64   schema.DoubleKind
//	string    schema.StringKind
//	[]byte    schema.BytesKind
//	*Message  schema.MessageKind
//
// Repeated fields hold a []any of those types.
package wire

import (
	"fmt"

	"github.com/jamespfennell/gtfsrt/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// RawField is a field the decoder did not interpret: its number, wire type and the complete
// encoded bytes, tag included.
type RawField struct {
	Number int32
	Type   protowire.Type
	Raw    []byte
}

// UnknownFields are the raw fields of a message in the order they were read.
type UnknownFields []RawField

// Numbers returns the field numbers of the unknown fields, in order.
func (u UnknownFields) Numbers() []int32 {
	var ns []int32
	for _, f := range u {
		ns = append(ns, f.Number)
	}
	return ns
}

// Find returns the unknown fields with the given number.
func (u UnknownFields) Find(number int32) UnknownFields {
	var out UnknownFields
	for _, f := range u {
		if f.Number == number {
			out = append(out, f)
		}
	}
	return out
}

// Message is a decoded message.
type Message struct {
	Descriptor *schema.Message
	Unknown    UnknownFields
	// Malformed lists the repeated elements UnmarshalPartial could not decode.
	Malformed []*ElementError

	values map[int32]any
}

func New(md *schema.Message) *Message {
	return &Message{Descriptor: md, values: map[int32]any{}}
}

func (m *Message) field(name string) *schema.Field {
	f := m.Descriptor.FieldByName(name)
	if f == nil {
		panic(fmt.Sprintf("message %s has no field %q", m.Descriptor.Name, name))
	}
	return f
}

// Has reports whether the field is present. For repeated fields it reports whether the list is
// non-empty.
func (m *Message) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[m.field(name).Number]
	return ok
}

// Lookup returns the value of a singular field and whether it is present.
func (m *Message) Lookup(name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[m.field(name).Number]
	return v, ok
}

// Get returns the value of a singular field, its declared default if it is absent, or nil.
func (m *Message) Get(name string) any {
	if m == nil {
		return nil
	}
	f := m.field(name)
	if v, ok := m.values[f.Number]; ok {
		return v
	}
	if f.Kind == schema.EnumKind && f.Default == nil {
		if e := f.Enum(); e != nil {
			return e.Default
		}
	}
	return f.Default
}

// List returns the elements of a repeated field.
func (m *Message) List(name string) []any {
	if m == nil {
		return nil
	}
	l, _ := m.values[m.field(name).Number].([]any)
	return l
}

// Set sets a singular field. Setting nil clears it.
func (m *Message) Set(name string, v any) {
	f := m.field(name)
	if v == nil {
		delete(m.values, f.Number)
		return
	}
	m.values[f.Number] = v
}

// Append adds an element to a repeated field.
func (m *Message) Append(name string, v any) {
	f := m.field(name)
	l, _ := m.values[f.Number].([]any)
	m.values[f.Number] = append(l, v)
}

// Present returns the descriptors of the fields that are present, ordered by field number.
func (m *Message) Present() []*schema.Field {
	var fs []*schema.Field
	for _, f := range m.Descriptor.Fields {
		if _, ok := m.values[f.Number]; ok {
			fs = append(fs, f)
		}
	}
	return fs
}

// ValueOf returns the raw value stored for a field descriptor.
func (m *Message) ValueOf(f *schema.Field) (any, bool) {
	v, ok := m.values[f.Number]
	return v, ok
}

// Child returns a singular message field, or nil.
func (m *Message) Child(name string) *Message {
	c, _ := m.Get(name).(*Message)
	return c
}

// Children returns the messages of a repeated message field.
func (m *Message) Children(name string) []*Message {
	var out []*Message
	for _, v := range m.List(name) {
		if c, ok := v.(*Message); ok {
			out = append(out, c)
		}
	}
	return out
}

// Opt returns a pointer to a copy of the field value if it is present and of type T.
func Opt[T any](m *Message, name string) *T {
	v, ok := m.Lookup(name)
	if !ok {
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return nil
	}
	return &t
}

// Value returns the field value, or its default, as a T. The zero T is returned on a type mismatch.
func Value[T any](m *Message, name string) T {
	t, _ := m.Get(name).(T)
	return t
}

// SetOpt sets the field from a pointer, leaving it absent when the pointer is nil.
func SetOpt[T any](m *Message, name string, p *T) {
	if p == nil {
		return
	}
	m.Set(name, *p)
}
