package wire_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/google/go-cmp/cmp"
	"github.com/jamespfennell/gtfsrt/schema"
	"github.com/jamespfennell/gtfsrt/wire"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

func feedMessageDescriptor() *schema.Message {
	return schema.GTFSRealtime().MustMessage(schema.FeedMessage)
}

func appendMessageField(b []byte, num protowire.Number, content []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, content)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func TestRoundTripPreservesExtensions(t *testing.T) {
	var header []byte
	header = appendStringField(header, 1, "2.0")
	header = appendStringField(header, 1001, "extension-payload")

	var position []byte
	position = protowire.AppendTag(position, 1, protowire.Fixed32Type)
	position = protowire.AppendFixed32(position, 0x42280000)
	position = protowire.AppendTag(position, 2, protowire.Fixed32Type)
	position = protowire.AppendFixed32(position, 0xc2940000)
	position = protowire.AppendTag(position, 9500, protowire.VarintType)
	position = protowire.AppendVarint(position, 77)

	var vehicle []byte
	vehicle = appendMessageField(vehicle, 2, position)

	var entity []byte
	entity = appendStringField(entity, 1, "e1")
	entity = appendMessageField(entity, 4, vehicle)

	var in []byte
	in = appendMessageField(in, 1, header)
	in = appendMessageField(in, 2, entity)

	m, err := wire.Unmarshal(in, feedMessageDescriptor())
	if err != nil {
		t.Fatalf("Unmarshal() err = %s", err)
	}

	h := m.Child("header")
	if got := wire.Value[string](h, "gtfs_realtime_version"); got != "2.0" {
		t.Errorf("version = %q, want 2.0", got)
	}
	if diff := cmp.Diff([]int32{1001}, h.Unknown.Numbers()); diff != "" {
		t.Errorf("header unknown fields (-want +got):\n%s", diff)
	}
	p := m.Children("entity")[0].Child("vehicle").Child("position")
	if got := wire.Value[float32](p, "latitude"); got != 42 {
		t.Errorf("latitude = %v, want 42", got)
	}
	if diff := cmp.Diff([]int32{9500}, p.Unknown.Numbers()); diff != "" {
		t.Errorf("position unknown fields (-want +got):\n%s", diff)
	}

	out, err := wire.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() err = %s", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("Marshal(Unmarshal(b)) != b\n got: %x\nwant: %x", out, in)
	}
}

func TestMatchesReferenceEncoding(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: proto.String("trip-1"),
				TripUpdate: &gtfsrtpb.TripUpdate{
					Trip: &gtfsrtpb.TripDescriptor{
						TripId:  proto.String("T1"),
						RouteId: proto.String("R1"),
					},
					StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(3),
							Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{
								Delay:       proto.Int32(-60),
								Uncertainty: proto.Int32(30),
							},
						},
						{
							StopId:               proto.String("S9"),
							ScheduleRelationship: gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
						},
					},
				},
			},
		},
	}
	in, err := proto.Marshal(msg)
	if err != nil {
		t.Fatalf("proto.Marshal() err = %s", err)
	}

	m, err := wire.Unmarshal(in, feedMessageDescriptor())
	if err != nil {
		t.Fatalf("Unmarshal() err = %s", err)
	}
	stus := m.Children("entity")[0].Child("trip_update").Children("stop_time_update")
	if len(stus) != 2 {
		t.Fatalf("len(stop_time_update) = %d, want 2", len(stus))
	}
	if got := wire.Value[int32](stus[0].Child("arrival"), "delay"); got != -60 {
		t.Errorf("delay = %d, want -60", got)
	}
	if got := wire.Value[int32](stus[1], "schedule_relationship"); got != 1 {
		t.Errorf("schedule_relationship = %d, want 1", got)
	}
	if got := wire.Value[int32](stus[0], "schedule_relationship"); got != 0 {
		t.Errorf("default schedule_relationship = %d, want 0", got)
	}

	out, err := wire.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() err = %s", err)
	}
	var decoded gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("proto.Unmarshal() err = %s", err)
	}
	if !proto.Equal(msg, &decoded) {
		t.Errorf("reference decode of Marshal output differs:\n got: %v\nwant: %v", &decoded, msg)
	}
}

func TestMalformedInput(t *testing.T) {
	for _, tc := range []struct {
		name       string
		in         []byte
		wantOffset int
	}{
		{"truncated varint", []byte{0x08, 0xff}, 1},
		{"truncated length-delimited", []byte{0x0a, 0x05, 0x01}, 1},
		{"reserved wire type", []byte{0x0e, 0x00}, 1},
		{"bad tag", []byte{0x80}, 0},
		{"field number zero", []byte{0x00, 0x01}, 0},
		{"nested truncated varint", []byte{0x0a, 0x02, 0x08, 0xff}, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := wire.Unmarshal(tc.in, feedMessageDescriptor())
			if !errors.Is(err, wire.ErrMalformedInput) {
				t.Fatalf("Unmarshal() err = %v, want ErrMalformedInput", err)
			}
			var mErr *wire.MalformedInputError
			if !errors.As(err, &mErr) {
				t.Fatalf("Unmarshal() err = %T, want *MalformedInputError", err)
			}
			if mErr.Offset != tc.wantOffset {
				t.Errorf("Offset = %d, want %d", mErr.Offset, tc.wantOffset)
			}
		})
	}
}

func TestUnmarshalPartial(t *testing.T) {
	var header []byte
	header = appendStringField(header, 1, "2.0")
	var good []byte
	good = appendStringField(good, 1, "good")
	// The id field claims 9 bytes but only 3 follow.
	bad := []byte{0x0a, 0x09, 'b', 'a', 'd'}

	var in []byte
	in = appendMessageField(in, 1, header)
	in = appendMessageField(in, 2, bad)
	badStart := len(in) - len(bad)
	in = appendMessageField(in, 2, good)

	if _, err := wire.Unmarshal(in, feedMessageDescriptor()); !errors.Is(err, wire.ErrMalformedInput) {
		t.Fatalf("Unmarshal() err = %v, want ErrMalformedInput", err)
	}
	m, err := wire.UnmarshalPartial(in, feedMessageDescriptor())
	if err != nil {
		t.Fatalf("UnmarshalPartial() err = %s", err)
	}
	entities := m.Children("entity")
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}
	if entities[0].Has("id") {
		t.Errorf("malformed entity has an id")
	}
	if got := wire.Value[string](entities[1], "id"); got != "good" {
		t.Errorf("id = %q, want good", got)
	}
	if len(m.Malformed) != 1 {
		t.Fatalf("Malformed = %v, want one element", m.Malformed)
	}
	e := m.Malformed[0]
	if e.Field != "entity" || e.Index != 0 || e.Err.Offset != badStart+1 {
		t.Errorf("Malformed[0] = %s (offset %d), want entity[0] at offset %d", e, e.Err.Offset, badStart+1)
	}
	if !errors.Is(e, wire.ErrMalformedInput) {
		t.Errorf("Malformed[0] does not match ErrMalformedInput")
	}

	for _, tc := range []struct {
		name string
		in   []byte
	}{
		{"broken framing", append(appendMessageField(nil, 1, header), 0x12, 0x05, 0x01)},
		{"singular field", appendMessageField(nil, 1, []byte{0x0a, 0x09, 'x'})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := wire.UnmarshalPartial(tc.in, feedMessageDescriptor()); !errors.Is(err, wire.ErrMalformedInput) {
				t.Errorf("UnmarshalPartial() err = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestMismatchedWireTypeIsKeptAsUnknown(t *testing.T) {
	var header []byte
	header = appendStringField(header, 1, "2.0")
	// timestamp is a uint64; a length-delimited field 3 cannot be interpreted.
	header = appendStringField(header, 3, "not-a-number")

	m, err := wire.Unmarshal(header, schema.GTFSRealtime().MustMessage(schema.FeedHeader))
	if err != nil {
		t.Fatalf("Unmarshal() err = %s", err)
	}
	if m.Has("timestamp") {
		t.Errorf("timestamp unexpectedly present")
	}
	if diff := cmp.Diff([]int32{3}, m.Unknown.Numbers()); diff != "" {
		t.Errorf("unknown fields (-want +got):\n%s", diff)
	}
	out, err := wire.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() err = %s", err)
	}
	if !bytes.Equal(header, out) {
		t.Errorf("round trip mismatch: got %x, want %x", out, header)
	}
}

func TestPackedRepeatedScalars(t *testing.T) {
	r := schema.NewRegistry()
	r.AddMessage(&schema.Message{
		Name: "Sample",
		Fields: []*schema.Field{
			{Number: 1, Name: "values", Cardinality: schema.Repeated, Kind: schema.Uint32Kind},
		},
	})
	md := r.MustMessage("Sample")

	var packed []byte
	for _, v := range []uint64{1, 2, 300} {
		packed = protowire.AppendVarint(packed, v)
	}
	var in []byte
	in = appendMessageField(in, 1, packed)
	in = protowire.AppendTag(in, 1, protowire.VarintType)
	in = protowire.AppendVarint(in, 4)

	m, err := wire.Unmarshal(in, md)
	if err != nil {
		t.Fatalf("Unmarshal() err = %s", err)
	}
	want := []any{uint32(1), uint32(2), uint32(300), uint32(4)}
	if diff := cmp.Diff(want, m.List("values")); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	out, err := wire.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() err = %s", err)
	}
	again, err := wire.Unmarshal(out, md)
	if err != nil {
		t.Fatalf("Unmarshal() err = %s", err)
	}
	if diff := cmp.Diff(want, again.List("values")); diff != "" {
		t.Errorf("values after round trip (-want +got):\n%s", diff)
	}
}

func TestDefaults(t *testing.T) {
	vp := wire.New(schema.GTFSRealtime().MustMessage(schema.VehiclePosition))
	if got := wire.Value[int32](vp, "current_status"); got != 2 {
		t.Errorf("default current_status = %d, want 2 (IN_TRANSIT_TO)", got)
	}
	alert := wire.New(schema.GTFSRealtime().MustMessage(schema.Alert))
	if got := wire.Value[int32](alert, "effect"); got != 8 {
		t.Errorf("default effect = %d, want 8 (UNKNOWN_EFFECT)", got)
	}
	if wire.Opt[int32](alert, "effect") != nil {
		t.Errorf("Opt() of an absent field should be nil")
	}
}

func TestEncodeRejectsWrongValueType(t *testing.T) {
	h := wire.New(schema.GTFSRealtime().MustMessage(schema.FeedHeader))
	h.Set("timestamp", "yesterday")
	_, err := wire.Marshal(h)
	if err == nil {
		t.Fatalf("Marshal() err = nil, want error")
	}
	if got := fmt.Sprint(err); got == "" {
		t.Errorf("empty error message")
	}
}

func TestExtensions(t *testing.T) {
	md := schema.GTFSRealtime().MustMessage(schema.VehicleDescriptor)
	raw := func(content []byte) wire.RawField {
		return wire.RawField{Number: 1001, Type: protowire.BytesType, Raw: appendMessageField(nil, 1001, content)}
	}
	u := wire.UnknownFields{
		raw(appendStringField(nil, 1, "a")),
		{Number: 9000, Type: protowire.VarintType, Raw: protowire.AppendVarint(protowire.AppendTag(nil, 9000, protowire.VarintType), 7)},
		raw(appendStringField(nil, 2, "b")),
	}

	m, err := wire.DecodeExtension(u, 1001, md)
	if err != nil {
		t.Fatalf("DecodeExtension() err = %s", err)
	}
	if got, want := wire.Value[string](m, "id"), "a"; got != want {
		t.Errorf("id = %q, want %q", got, want)
	}
	if got, want := wire.Value[string](m, "label"), "b"; got != want {
		t.Errorf("label = %q, want %q", got, want)
	}

	m, err = wire.DecodeExtension(u, 1002, md)
	if err != nil || m != nil {
		t.Errorf("DecodeExtension() of an absent field = %v, %v; want nil, nil", m, err)
	}

	replacement := wire.New(md)
	replacement.Set("id", "c")
	u, err = u.SetExtension(1001, replacement)
	if err != nil {
		t.Fatalf("SetExtension() err = %s", err)
	}
	if diff := cmp.Diff([]int32{9000, 1001}, u.Numbers()); diff != "" {
		t.Errorf("Numbers() mismatch (-want +got):\n%s", diff)
	}
	m, err = wire.DecodeExtension(u, 1001, md)
	if err != nil {
		t.Fatalf("DecodeExtension() err = %s", err)
	}
	if got, want := wire.Value[string](m, "id"), "c"; got != want {
		t.Errorf("id = %q, want %q", got, want)
	}
	if m.Has("label") {
		t.Errorf("label survived SetExtension")
	}

	bad := wire.UnknownFields{{Number: 1001, Type: protowire.VarintType, Raw: protowire.AppendVarint(protowire.AppendTag(nil, 1001, protowire.VarintType), 1)}}
	if _, err := wire.DecodeExtension(bad, 1001, md); !errors.Is(err, wire.ErrMalformedInput) {
		t.Errorf("DecodeExtension() of a varint err = %v, want ErrMalformedInput", err)
	}
}
