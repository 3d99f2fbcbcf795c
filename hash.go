package gtfsrt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/jamespfennell/gtfsrt/wire"
)

// Hash calculates a hash of an entity using the provided hash function.
//
// Two entities have the same hash if and only if they encode to the same fields, including
// unknown and extension fields. The entity id is part of the hash.
func (e *FeedEntity) Hash(h hash.Hash) {
	s := hasher{h: h}
	s.message(e.toWire())
	s.flush()
}

type hasher struct {
	h hash.Hash
	b bytes.Buffer
}

func (h *hasher) flush() {
	h.h.Write(h.b.Bytes())
	h.b.Reset()
}

func (h *hasher) message(m *wire.Message) {
	present := m.Present()
	h.number(int64(len(present)))
	for _, f := range present {
		h.number(f.Number)
		v, _ := m.ValueOf(f)
		if !f.Repeated() {
			h.value(v)
			continue
		}
		l, _ := v.([]any)
		h.number(int64(len(l)))
		for _, elem := range l {
			h.value(elem)
		}
	}
	h.number(int64(len(m.Unknown)))
	for _, u := range m.Unknown {
		h.bytes(u.Raw)
	}
}

func (h *hasher) value(v any) {
	switch x := v.(type) {
	case *wire.Message:
		h.message(x)
	case string:
		h.string(x)
	case []byte:
		h.bytes(x)
	default:
		h.number(x)
	}
}

func (h *hasher) string(s string) {
	h.number(uint64(len(s)))
	h.flush()
	h.h.Write([]byte(s))
}

func (h *hasher) bytes(b []byte) {
	h.number(uint64(len(b)))
	h.flush()
	h.h.Write(b)
}

func (h *hasher) number(a any) {
	err := binary.Write(&h.b, binary.LittleEndian, a)
	if err != nil {
		panic(fmt.Sprintf("failed to hash %T", a))
	}
}
