// Package nyctbustrips makes the trip ids of the NYCT bus feeds unique. The feeds reuse a
// trip id for every vehicle running the trip, so the vehicle and direction are added to it.
package nyctbustrips

import (
	"fmt"
	"strings"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/extensions"
)

// Extension returns the NYCT bus trips extension
func Extension() extensions.Extension {
	return extension{}
}

type extension struct {
	extensions.NoExtensionImpl
}

func (e extension) UpdateTrip(trip *gtfsrt.TripUpdate, feedCreatedAt time.Time) (extensions.UpdateTripResult, error) {
	tripID := trip.Trip.GetTripID()
	vehicle := trip.GetVehicle()
	vehicleID := vehicle.GetID()
	direction := "unspecified"
	if trip.Trip.DirectionID != nil {
		direction = fmt.Sprintf("%d", *trip.Trip.DirectionID)
	}
	compositeTripID := strings.Replace(fmt.Sprintf("%s_%s_%s", tripID, vehicleID, direction), " ", "_", -1)

	trip.Trip.TripID = &compositeTripID

	return extensions.UpdateTripResult{}, nil
}
