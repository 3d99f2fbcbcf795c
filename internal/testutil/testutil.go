package testutil

import (
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/gtfsrt"
	"google.golang.org/protobuf/proto"
)

// MustMarshal encodes a feed message with the reference protobuf bindings. A nil header is
// replaced by a minimal valid one.
func MustMarshal(t testing.TB, header *gtfsrtpb.FeedHeader, entities []*gtfsrtpb.FeedEntity) []byte {
	t.Helper()
	if header == nil {
		v := "2.0"
		header = &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: &v,
		}
	}
	message := gtfsrtpb.FeedMessage{
		Header: header,
		Entity: entities,
	}
	b, err := proto.MarshalOptions{AllowPartial: true}.Marshal(&message)
	if err != nil {
		t.Fatalf("failed to marshal GTFS-RT message: %s", err)
	}
	return b
}

func MustParse(t testing.TB, header *gtfsrtpb.FeedHeader, entities []*gtfsrtpb.FeedEntity, opts *gtfsrt.ParseRealtimeOptions) *gtfsrt.Realtime {
	t.Helper()
	result, err := gtfsrt.ParseRealtime(MustMarshal(t, header, entities), opts)
	if err != nil {
		t.Fatalf("failed to parse GTFS-RT message: %s", err)
	}
	return result
}

// TripUpdateEntity builds an entity containing a trip update for the given trip.
func TripUpdateEntity(id, tripID string, updates ...*gtfsrtpb.TripUpdate_StopTimeUpdate) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip:           &gtfsrtpb.TripDescriptor{TripId: proto.String(tripID)},
			StopTimeUpdate: updates,
		},
	}
}

// VehicleEntity builds an entity containing a vehicle position.
func VehicleEntity(id, vehicleID string, lat, lon float32) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Vehicle:  &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleID)},
			Position: &gtfsrtpb.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lon)},
		},
	}
}

// DeletedEntity builds an entity tombstone.
func DeletedEntity(id string) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id:        proto.String(id),
		IsDeleted: proto.Bool(true),
	}
}
