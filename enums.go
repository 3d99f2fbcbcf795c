package gtfsrt

import "github.com/jamespfennell/gtfsrt/schema"

// enumString names an enum value using the schema registry. Values that are not declared by the
// schema, typically values added by a newer version of GTFS Realtime, print as UNKNOWN(n).
func enumString(enumName string, v int32) string {
	e := schema.GTFSRealtime().Enum(enumName)
	if e == nil {
		return "UNKNOWN"
	}
	return e.Format(v)
}

// Incrementality determines whether the current fetch is incremental.
type Incrementality int32

const (
	FullDataset  Incrementality = 0
	Differential Incrementality = 1
)

func (i Incrementality) String() string {
	return enumString(schema.Incrementality, int32(i))
}

// TripScheduleRelationship describes the relation between a trip and the static schedule.
type TripScheduleRelationship int32

const (
	TripScheduled   TripScheduleRelationship = 0
	TripAdded       TripScheduleRelationship = 1
	TripUnscheduled TripScheduleRelationship = 2
	TripCanceled    TripScheduleRelationship = 3
)

func (r TripScheduleRelationship) String() string {
	return enumString(schema.TripScheduleRelationship, int32(r))
}

// StopTimeScheduleRelationship describes the relation between a stop time update and the
// static schedule.
type StopTimeScheduleRelationship int32

const (
	StopScheduled   StopTimeScheduleRelationship = 0
	StopSkipped     StopTimeScheduleRelationship = 1
	StopNoData      StopTimeScheduleRelationship = 2
	StopUnscheduled StopTimeScheduleRelationship = 3
)

func (r StopTimeScheduleRelationship) String() string {
	return enumString(schema.StopTimeScheduleRelationship, int32(r))
}

type VehicleStopStatus int32

const (
	IncomingAt  VehicleStopStatus = 0
	StoppedAt   VehicleStopStatus = 1
	InTransitTo VehicleStopStatus = 2
)

func (s VehicleStopStatus) String() string {
	return enumString(schema.VehicleStopStatus, int32(s))
}

type CongestionLevel int32

const (
	UnknownCongestionLevel CongestionLevel = 0
	RunningSmoothly        CongestionLevel = 1
	StopAndGo              CongestionLevel = 2
	Congestion             CongestionLevel = 3
	SevereCongestion       CongestionLevel = 4
)

func (c CongestionLevel) String() string {
	return enumString(schema.CongestionLevel, int32(c))
}

type OccupancyStatus int32

const (
	Empty                   OccupancyStatus = 0
	ManySeatsAvailable      OccupancyStatus = 1
	FewSeatsAvailable       OccupancyStatus = 2
	StandingRoomOnly        OccupancyStatus = 3
	CrushedStandingRoomOnly OccupancyStatus = 4
	Full                    OccupancyStatus = 5
	NotAcceptingPassengers  OccupancyStatus = 6
	NoDataAvailable         OccupancyStatus = 7
	NotBoardable            OccupancyStatus = 8
)

func (o OccupancyStatus) String() string {
	return enumString(schema.OccupancyStatus, int32(o))
}

type AlertCause int32

const (
	UnknownCause     AlertCause = 1
	OtherCause       AlertCause = 2
	TechnicalProblem AlertCause = 3
	Strike           AlertCause = 4
	Demonstration    AlertCause = 5
	Accident         AlertCause = 6
	Holiday          AlertCause = 7
	Weather          AlertCause = 8
	Maintenance      AlertCause = 9
	Construction     AlertCause = 10
	PoliceActivity   AlertCause = 11
	MedicalEmergency AlertCause = 12
)

func (c AlertCause) String() string {
	return enumString(schema.AlertCause, int32(c))
}

type AlertEffect int32

const (
	NoService          AlertEffect = 1
	ReducedService     AlertEffect = 2
	SignificantDelays  AlertEffect = 3
	Detour             AlertEffect = 4
	AdditionalService  AlertEffect = 5
	ModifiedService    AlertEffect = 6
	OtherEffect        AlertEffect = 7
	UnknownEffect      AlertEffect = 8
	StopMoved          AlertEffect = 9
	NoEffect           AlertEffect = 10
	AccessibilityIssue AlertEffect = 11
)

func (e AlertEffect) String() string {
	return enumString(schema.AlertEffect, int32(e))
}
