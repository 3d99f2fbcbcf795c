// Package extensions adapts feeds that carry agency-specific data in extension fields.
package extensions

import (
	"fmt"
	"time"

	"github.com/jamespfennell/gtfsrt"
)

type Extension interface {
	UpdateTrip(trip *gtfsrt.TripUpdate, feedCreatedAt time.Time) (UpdateTripResult, error)

	UpdateVehicle(vehicle *gtfsrt.VehiclePosition) error
}

type UpdateTripResult struct {
	// Whether this trip should be skipped.
	ShouldSkip bool
	// Whether a vehicle has been assigned to the trip. Only set by extensions that know.
	IsAssigned bool
}

func NoExtension() Extension {
	return NoExtensionImpl{}
}

type NoExtensionImpl struct {
}

func (n NoExtensionImpl) UpdateTrip(trip *gtfsrt.TripUpdate, feedCreatedAt time.Time) (UpdateTripResult, error) {
	return UpdateTripResult{}, nil
}

func (n NoExtensionImpl) UpdateVehicle(vehicle *gtfsrt.VehiclePosition) error {
	return nil
}

// Apply runs the extension over every entity of the message in place. Trip updates the
// extension asks to skip are removed from the message; their ids are returned.
func Apply(rt *gtfsrt.Realtime, ext Extension) ([]string, error) {
	var skipped []string
	entities := rt.Message.Entities[:0]
	for _, entity := range rt.Message.Entities {
		switch payload := entity.Payload.(type) {
		case *gtfsrt.TripUpdate:
			result, err := ext.UpdateTrip(payload, rt.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", entity.ID, err)
			}
			if result.ShouldSkip {
				skipped = append(skipped, entity.ID)
				continue
			}
		case *gtfsrt.VehiclePosition:
			if err := ext.UpdateVehicle(payload); err != nil {
				return nil, fmt.Errorf("entity %s: %w", entity.ID, err)
			}
		}
		entities = append(entities, entity)
	}
	rt.Message.Entities = entities
	return skipped, nil
}
