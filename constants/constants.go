package constants

// EntityKind identifies the payload carried by a feed entity.
type EntityKind string

const (
	TripUpdate EntityKind = "trip_update"
	Vehicle    EntityKind = "vehicle"
	Alert      EntityKind = "alert"
)

// EntityKinds lists the payload kinds in field number order.
var EntityKinds = []EntityKind{TripUpdate, Vehicle, Alert}

// Version is the GTFS Realtime version written by this module.
const Version = "2.0"
