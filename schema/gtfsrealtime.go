package schema

import "sync"

// Message names in the GTFS Realtime registry.
const (
	FeedMessage       = "FeedMessage"
	FeedHeader        = "FeedHeader"
	FeedEntity        = "FeedEntity"
	TripUpdate        = "TripUpdate"
	StopTimeEvent     = "TripUpdate.StopTimeEvent"
	StopTimeUpdate    = "TripUpdate.StopTimeUpdate"
	VehiclePosition   = "VehiclePosition"
	Alert             = "Alert"
	TimeRange         = "TimeRange"
	Position          = "Position"
	TripDescriptor    = "TripDescriptor"
	VehicleDescriptor = "VehicleDescriptor"
	EntitySelector    = "EntitySelector"
	TranslatedString  = "TranslatedString"
	Translation       = "TranslatedString.Translation"
)

// Enum names in the GTFS Realtime registry.
const (
	Incrementality               = "FeedHeader.Incrementality"
	StopTimeScheduleRelationship = "TripUpdate.StopTimeUpdate.ScheduleRelationship"
	VehicleStopStatus            = "VehiclePosition.VehicleStopStatus"
	CongestionLevel              = "VehiclePosition.CongestionLevel"
	OccupancyStatus              = "VehiclePosition.OccupancyStatus"
	AlertCause                   = "Alert.Cause"
	AlertEffect                  = "Alert.Effect"
	TripScheduleRelationship     = "TripDescriptor.ScheduleRelationship"
)

// ExtensionRanges are the field numbers every extensible GTFS Realtime message reserves:
// 1000-1999 for registered third-party extensions and 9000-9999 for private experiments.
var ExtensionRanges = []Range{{Start: 1000, End: 1999}, {Start: 9000, End: 9999}}

var (
	gtfsRealtimeOnce     sync.Once
	gtfsRealtimeRegistry *Registry
)

// GTFSRealtime returns the registry of the GTFS Realtime 2.0 messages.
func GTFSRealtime() *Registry {
	gtfsRealtimeOnce.Do(func() {
		gtfsRealtimeRegistry = buildGTFSRealtime()
	})
	return gtfsRealtimeRegistry
}

func scalar(c Cardinality, number int32, name string, kind Kind) *Field {
	return &Field{Number: number, Name: name, Cardinality: c, Kind: kind}
}

func scalarWithDefault(number int32, name string, kind Kind, def any) *Field {
	return &Field{Number: number, Name: name, Cardinality: Optional, Kind: kind, Default: def}
}

func enum(number int32, name string, enumName string, def int32) *Field {
	return &Field{Number: number, Name: name, Cardinality: Optional, Kind: EnumKind, TypeName: enumName, Default: def}
}

func message(c Cardinality, number int32, name string, messageName string) *Field {
	return &Field{Number: number, Name: name, Cardinality: c, Kind: MessageKind, TypeName: messageName}
}

func extensible(name string, fields ...*Field) *Message {
	return &Message{Name: name, Fields: fields, ExtensionRanges: ExtensionRanges}
}

func values(names ...string) []EnumValue {
	var vs []EnumValue
	for i, name := range names {
		vs = append(vs, EnumValue{Name: name, Number: int32(i)})
	}
	return vs
}

func buildGTFSRealtime() *Registry {
	r := NewRegistry()

	r.AddEnum(&Enum{
		Name:   Incrementality,
		Values: values("FULL_DATASET", "DIFFERENTIAL"),
	})
	r.AddEnum(&Enum{
		Name:   StopTimeScheduleRelationship,
		Values: values("SCHEDULED", "SKIPPED", "NO_DATA", "UNSCHEDULED"),
	})
	r.AddEnum(&Enum{
		Name:    VehicleStopStatus,
		Values:  values("INCOMING_AT", "STOPPED_AT", "IN_TRANSIT_TO"),
		Default: 2,
	})
	r.AddEnum(&Enum{
		Name:   CongestionLevel,
		Values: values("UNKNOWN_CONGESTION_LEVEL", "RUNNING_SMOOTHLY", "STOP_AND_GO", "CONGESTION", "SEVERE_CONGESTION"),
	})
	r.AddEnum(&Enum{
		Name: OccupancyStatus,
		Values: values("EMPTY", "MANY_SEATS_AVAILABLE", "FEW_SEATS_AVAILABLE", "STANDING_ROOM_ONLY",
			"CRUSHED_STANDING_ROOM_ONLY", "FULL", "NOT_ACCEPTING_PASSENGERS", "NO_DATA_AVAILABLE", "NOT_BOARDABLE"),
	})
	r.AddEnum(&Enum{
		Name: AlertCause,
		Values: []EnumValue{
			{"UNKNOWN_CAUSE", 1},
			{"OTHER_CAUSE", 2},
			{"TECHNICAL_PROBLEM", 3},
			{"STRIKE", 4},
			{"DEMONSTRATION", 5},
			{"ACCIDENT", 6},
			{"HOLIDAY", 7},
			{"WEATHER", 8},
			{"MAINTENANCE", 9},
			{"CONSTRUCTION", 10},
			{"POLICE_ACTIVITY", 11},
			{"MEDICAL_EMERGENCY", 12},
		},
		Default: 1,
	})
	r.AddEnum(&Enum{
		Name: AlertEffect,
		Values: []EnumValue{
			{"NO_SERVICE", 1},
			{"REDUCED_SERVICE", 2},
			{"SIGNIFICANT_DELAYS", 3},
			{"DETOUR", 4},
			{"ADDITIONAL_SERVICE", 5},
			{"MODIFIED_SERVICE", 6},
			{"OTHER_EFFECT", 7},
			{"UNKNOWN_EFFECT", 8},
			{"STOP_MOVED", 9},
			{"NO_EFFECT", 10},
			{"ACCESSIBILITY_ISSUE", 11},
		},
		Default: 8,
	})
	r.AddEnum(&Enum{
		Name: TripScheduleRelationship,
		Values: []EnumValue{
			{"SCHEDULED", 0},
			{"ADDED", 1},
			{"UNSCHEDULED", 2},
			{"CANCELED", 3},
		},
	})

	r.AddMessage(extensible(FeedMessage,
		message(Required, 1, "header", FeedHeader),
		message(Repeated, 2, "entity", FeedEntity),
	))
	r.AddMessage(extensible(FeedHeader,
		scalar(Required, 1, "gtfs_realtime_version", StringKind),
		enum(2, "incrementality", Incrementality, 0),
		scalar(Optional, 3, "timestamp", Uint64Kind),
		scalar(Optional, 4, "feed_version", StringKind),
	))
	r.AddMessage(extensible(FeedEntity,
		scalar(Required, 1, "id", StringKind),
		scalarWithDefault(2, "is_deleted", BoolKind, false),
		message(Optional, 3, "trip_update", TripUpdate),
		message(Optional, 4, "vehicle", VehiclePosition),
		message(Optional, 5, "alert", Alert),
	))
	r.AddMessage(extensible(TripUpdate,
		message(Required, 1, "trip", TripDescriptor),
		message(Repeated, 2, "stop_time_update", StopTimeUpdate),
		message(Optional, 3, "vehicle", VehicleDescriptor),
		scalar(Optional, 4, "timestamp", Uint64Kind),
		scalar(Optional, 5, "delay", Int32Kind),
	))
	r.AddMessage(extensible(StopTimeEvent,
		scalar(Optional, 1, "delay", Int32Kind),
		scalar(Optional, 2, "time", Int64Kind),
		scalar(Optional, 3, "uncertainty", Int32Kind),
	))
	r.AddMessage(extensible(StopTimeUpdate,
		scalar(Optional, 1, "stop_sequence", Uint32Kind),
		message(Optional, 2, "arrival", StopTimeEvent),
		message(Optional, 3, "departure", StopTimeEvent),
		scalar(Optional, 4, "stop_id", StringKind),
		enum(5, "schedule_relationship", StopTimeScheduleRelationship, 0),
	))
	r.AddMessage(extensible(VehiclePosition,
		message(Optional, 1, "trip", TripDescriptor),
		message(Optional, 2, "position", Position),
		scalar(Optional, 3, "current_stop_sequence", Uint32Kind),
		enum(4, "current_status", VehicleStopStatus, 2),
		scalar(Optional, 5, "timestamp", Uint64Kind),
		enum(6, "congestion_level", CongestionLevel, 0),
		scalar(Optional, 7, "stop_id", StringKind),
		message(Optional, 8, "vehicle", VehicleDescriptor),
		enum(9, "occupancy_status", OccupancyStatus, 0),
		scalar(Optional, 10, "occupancy_percentage", Uint32Kind),
	))
	r.AddMessage(extensible(Alert,
		message(Repeated, 1, "active_period", TimeRange),
		message(Repeated, 5, "informed_entity", EntitySelector),
		enum(6, "cause", AlertCause, 1),
		enum(7, "effect", AlertEffect, 8),
		message(Optional, 8, "url", TranslatedString),
		message(Optional, 10, "header_text", TranslatedString),
		message(Optional, 11, "description_text", TranslatedString),
		message(Optional, 12, "tts_header_text", TranslatedString),
		message(Optional, 13, "tts_description_text", TranslatedString),
	))
	r.AddMessage(extensible(TimeRange,
		scalar(Optional, 1, "start", Uint64Kind),
		scalar(Optional, 2, "end", Uint64Kind),
	))
	r.AddMessage(extensible(Position,
		scalar(Required, 1, "latitude", FloatKind),
		scalar(Required, 2, "longitude", FloatKind),
		scalar(Optional, 3, "bearing", FloatKind),
		scalar(Optional, 4, "odometer", DoubleKind),
		scalar(Optional, 5, "speed", FloatKind),
	))
	r.AddMessage(extensible(TripDescriptor,
		scalar(Optional, 1, "trip_id", StringKind),
		scalar(Optional, 2, "start_time", StringKind),
		scalar(Optional, 3, "start_date", StringKind),
		enum(4, "schedule_relationship", TripScheduleRelationship, 0),
		scalar(Optional, 5, "route_id", StringKind),
		scalar(Optional, 6, "direction_id", Uint32Kind),
	))
	r.AddMessage(extensible(VehicleDescriptor,
		scalar(Optional, 1, "id", StringKind),
		scalar(Optional, 2, "label", StringKind),
		scalar(Optional, 3, "license_plate", StringKind),
	))
	r.AddMessage(extensible(EntitySelector,
		scalar(Optional, 1, "agency_id", StringKind),
		scalar(Optional, 2, "route_id", StringKind),
		scalar(Optional, 3, "route_type", Int32Kind),
		message(Optional, 4, "trip", TripDescriptor),
		scalar(Optional, 5, "stop_id", StringKind),
		scalar(Optional, 6, "direction_id", Uint32Kind),
	))
	r.AddMessage(extensible(TranslatedString,
		message(Repeated, 1, "translation", Translation),
	))
	r.AddMessage(extensible(Translation,
		scalar(Required, 1, "text", StringKind),
		scalar(Optional, 2, "language", StringKind),
	))
	return r
}
