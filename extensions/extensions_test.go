package extensions_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/extensions"
	"github.com/jamespfennell/gtfsrt/internal/testutil"
)

// skipTrips skips the trips with the given ids and fails on vehicles with id "bad".
type skipTrips struct {
	ids map[string]bool
}

func (s skipTrips) UpdateTrip(trip *gtfsrt.TripUpdate, feedCreatedAt time.Time) (extensions.UpdateTripResult, error) {
	return extensions.UpdateTripResult{ShouldSkip: s.ids[trip.Trip.GetTripID()]}, nil
}

func (s skipTrips) UpdateVehicle(vehicle *gtfsrt.VehiclePosition) error {
	v := vehicle.GetVehicle()
	if v.GetID() == "bad" {
		return errors.New("bad vehicle")
	}
	return nil
}

func entityIDs(rt *gtfsrt.Realtime) []string {
	var ids []string
	for _, e := range rt.Message.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestApply(t *testing.T) {
	entities := []*gtfsrtpb.FeedEntity{
		testutil.TripUpdateEntity("1", "trip1"),
		testutil.TripUpdateEntity("2", "trip2"),
		testutil.VehicleEntity("3", "vehicle3", 40.7, -74.0),
		testutil.TripUpdateEntity("4", "trip4"),
	}

	rt := testutil.MustParse(t, nil, entities, nil)
	skipped, err := extensions.Apply(rt, extensions.NoExtension())
	if err != nil {
		t.Fatalf("Apply() err = %s", err)
	}
	if len(skipped) != 0 {
		t.Errorf("NoExtension skipped %v", skipped)
	}
	if got, want := entityIDs(rt), []string{"1", "2", "3", "4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("actual:\n%+v\n!= expected:\n%+v", got, want)
	}

	rt = testutil.MustParse(t, nil, entities, nil)
	skipped, err = extensions.Apply(rt, skipTrips{ids: map[string]bool{"trip2": true, "trip4": true}})
	if err != nil {
		t.Fatalf("Apply() err = %s", err)
	}
	if got, want := skipped, []string{"2", "4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("actual:\n%+v\n!= expected:\n%+v", got, want)
	}
	if got, want := entityIDs(rt), []string{"1", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("actual:\n%+v\n!= expected:\n%+v", got, want)
	}
}

func TestApplyError(t *testing.T) {
	rt := testutil.MustParse(t, nil, []*gtfsrtpb.FeedEntity{
		testutil.VehicleEntity("v1", "bad", 40.7, -74.0),
	}, nil)
	if _, err := extensions.Apply(rt, skipTrips{}); err == nil {
		t.Errorf("Apply() err = nil, want an error")
	}
}
