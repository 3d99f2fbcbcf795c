// Package schema contains descriptors for messages and enums of a tagged binary schema.
//
// The descriptors are the single field table consulted by the wire codec, the validator and the
// typed GTFS Realtime model. A Registry is read-only once built.
package schema

import (
	"fmt"
	"sort"
)

// Cardinality of a field.
type Cardinality int32

const (
	Optional Cardinality = 0
	Required Cardinality = 1
	Repeated Cardinality = 2
)

func (c Cardinality) String() string {
	switch c {
	case Required:
		return "required"
	case Repeated:
		return "repeated"
	default:
		return "optional"
	}
}

// Kind is the value type of a field.
type Kind int32

const (
	BoolKind Kind = iota + 1
	Int32Kind
	Uint32Kind
	Int64Kind
	Uint64Kind
	FloatKind
	DoubleKind
	StringKind
	BytesKind
	EnumKind
	MessageKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case Int32Kind:
		return "int32"
	case Uint32Kind:
		return "uint32"
	case Int64Kind:
		return "int64"
	case Uint64Kind:
		return "uint64"
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case StringKind:
		return "string"
	case BytesKind:
		return "bytes"
	case EnumKind:
		return "enum"
	case MessageKind:
		return "message"
	default:
		return "UNKNOWN"
	}
}

// Scalar reports whether values of this kind can be packed.
func (k Kind) Scalar() bool {
	return k != StringKind && k != BytesKind && k != MessageKind
}

// Field describes a single field of a message.
type Field struct {
	Number      int32
	Name        string
	Cardinality Cardinality
	Kind        Kind
	// TypeName is the name of the enum or message for EnumKind and MessageKind fields.
	TypeName string
	// Default is the declared default of an optional scalar field, or nil.
	//
	// The Go type matches the value type used by the wire package for Kind.
	Default any

	registry *Registry
}

func (f *Field) Repeated() bool {
	return f.Cardinality == Repeated
}

// Enum returns the descriptor of an enum field, or nil for other kinds.
func (f *Field) Enum() *Enum {
	if f.Kind != EnumKind || f.registry == nil {
		return nil
	}
	return f.registry.Enum(f.TypeName)
}

// Message returns the descriptor of a message field, or nil for other kinds.
func (f *Field) Message() *Message {
	if f.Kind != MessageKind || f.registry == nil {
		return nil
	}
	return f.registry.Message(f.TypeName)
}

// Range is an inclusive range of field numbers.
type Range struct {
	Start int32
	End   int32
}

func (r Range) Contains(n int32) bool {
	return r.Start <= n && n <= r.End
}

// Message describes a message type.
type Message struct {
	Name            string
	Fields          []*Field
	ExtensionRanges []Range

	byNumber map[int32]*Field
	byName   map[string]*Field
}

// Field returns the field with the given number, or nil.
func (m *Message) Field(number int32) *Field {
	return m.byNumber[number]
}

// FieldByName returns the field with the given name, or nil.
func (m *Message) FieldByName(name string) *Field {
	return m.byName[name]
}

func (m *Message) InExtensionRange(number int32) bool {
	for _, r := range m.ExtensionRanges {
		if r.Contains(number) {
			return true
		}
	}
	return false
}

type EnumValue struct {
	Name   string
	Number int32
}

// Enum describes an enum type.
type Enum struct {
	Name    string
	Values  []EnumValue
	Default int32
}

// Contains reports whether v is a declared enumerant.
func (e *Enum) Contains(v int32) bool {
	_, ok := e.ValueName(v)
	return ok
}

func (e *Enum) ValueName(v int32) (string, bool) {
	for _, ev := range e.Values {
		if ev.Number == v {
			return ev.Name, true
		}
	}
	return "", false
}

func (e *Enum) Value(name string) (int32, bool) {
	for _, ev := range e.Values {
		if ev.Name == name {
			return ev.Number, true
		}
	}
	return 0, false
}

// Format returns the enumerant name of v, or UNKNOWN(v) for values not declared.
func (e *Enum) Format(v int32) string {
	if name, ok := e.ValueName(v); ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", v)
}

// Registry is a set of message and enum descriptors that reference each other by name.
type Registry struct {
	messages map[string]*Message
	enums    map[string]*Enum
}

func NewRegistry() *Registry {
	return &Registry{
		messages: map[string]*Message{},
		enums:    map[string]*Enum{},
	}
}

// AddMessage indexes the message and links its fields to the registry.
//
// Fields are kept sorted by number, which is the order the wire package encodes them in.
func (r *Registry) AddMessage(m *Message) {
	sort.Slice(m.Fields, func(i, j int) bool {
		return m.Fields[i].Number < m.Fields[j].Number
	})
	m.byNumber = make(map[int32]*Field, len(m.Fields))
	m.byName = make(map[string]*Field, len(m.Fields))
	for _, f := range m.Fields {
		if _, ok := m.byNumber[f.Number]; ok {
			panic(fmt.Sprintf("message %s: field number %d declared twice", m.Name, f.Number))
		}
		f.registry = r
		m.byNumber[f.Number] = f
		m.byName[f.Name] = f
	}
	r.messages[m.Name] = m
}

func (r *Registry) AddEnum(e *Enum) {
	r.enums[e.Name] = e
}

func (r *Registry) Message(name string) *Message {
	return r.messages[name]
}

// MustMessage is like Message but panics if the message is not registered.
func (r *Registry) MustMessage(name string) *Message {
	m := r.messages[name]
	if m == nil {
		panic(fmt.Sprintf("no message %q in registry", name))
	}
	return m
}

func (r *Registry) Enum(name string) *Enum {
	return r.enums[name]
}

// Messages returns the registered message names in sorted order.
func (r *Registry) Messages() []string {
	var names []string
	for name := range r.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
