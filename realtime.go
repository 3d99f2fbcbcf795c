package gtfsrt

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jamespfennell/gtfsrt/constants"
	"github.com/jamespfennell/gtfsrt/schema"
	"github.com/jamespfennell/gtfsrt/validate"
	"github.com/jamespfennell/gtfsrt/warnings"
	"github.com/jamespfennell/gtfsrt/wire"
	"github.com/rs/zerolog"
)

// Realtime contains the parsed content for a single GTFS realtime message.
type Realtime struct {
	// Message contains the entities that passed validation. Entities with a Fatal violation are
	// omitted.
	Message *FeedMessage

	// CreatedAt is the header timestamp, or the zero time if the header has none.
	CreatedAt time.Time

	Warnings []warnings.RealtimeWarning

	// Rejected lists the ids of entities dropped because of a Fatal violation. Ids that also
	// appear on an accepted entity are not listed.
	Rejected []string
}

type FeedMessage struct {
	Header   FeedHeader
	Entities []FeedEntity
	Unknown  wire.UnknownFields
}

type FeedHeader struct {
	Version        string
	Incrementality Incrementality
	Timestamp      *time.Time
	FeedVersion    *string
	Unknown        wire.UnknownFields
}

type FeedEntity struct {
	ID        string
	IsDeleted bool
	// Payload is nil for deleted entities that carry no data.
	Payload Payload
	Unknown wire.UnknownFields
}

// Payload is the data carried by an entity: a *TripUpdate, *VehiclePosition or *Alert.
type Payload interface {
	Kind() constants.EntityKind
	isPayload()
}

func (e *FeedEntity) GetTripUpdate() *TripUpdate {
	if e == nil {
		return nil
	}
	tu, _ := e.Payload.(*TripUpdate)
	return tu
}

func (e *FeedEntity) GetVehicle() *VehiclePosition {
	if e == nil {
		return nil
	}
	v, _ := e.Payload.(*VehiclePosition)
	return v
}

func (e *FeedEntity) GetAlert() *Alert {
	if e == nil {
		return nil
	}
	a, _ := e.Payload.(*Alert)
	return a
}

type TripUpdate struct {
	Trip            TripDescriptor
	Vehicle         *VehicleDescriptor
	StopTimeUpdates []StopTimeUpdate
	Timestamp       *time.Time
	Delay           *time.Duration
	Unknown         wire.UnknownFields
}

func (*TripUpdate) Kind() constants.EntityKind { return constants.TripUpdate }
func (*TripUpdate) isPayload()                 {}

func (tripUpdate *TripUpdate) GetVehicle() VehicleDescriptor {
	if tripUpdate != nil && tripUpdate.Vehicle != nil {
		return *tripUpdate.Vehicle
	}
	return VehicleDescriptor{}
}

// StopTimeUpdate is a realtime update for one stop of a trip. At least one of StopSequence and
// StopID is set.
type StopTimeUpdate struct {
	StopSequence         *uint32
	StopID               *string
	Arrival              *StopTimeEvent
	Departure            *StopTimeEvent
	ScheduleRelationship StopTimeScheduleRelationship
	Unknown              wire.UnknownFields
}

func (stopTimeUpdate *StopTimeUpdate) GetArrival() StopTimeEvent {
	if stopTimeUpdate != nil && stopTimeUpdate.Arrival != nil {
		return *stopTimeUpdate.Arrival
	}
	return StopTimeEvent{}
}

func (stopTimeUpdate *StopTimeUpdate) GetDeparture() StopTimeEvent {
	if stopTimeUpdate != nil && stopTimeUpdate.Departure != nil {
		return *stopTimeUpdate.Departure
	}
	return StopTimeEvent{}
}

type StopTimeEvent struct {
	Delay       *time.Duration
	Time        *time.Time
	Uncertainty *int32
	Unknown     wire.UnknownFields
}

type VehiclePosition struct {
	Trip                *TripDescriptor
	Vehicle             *VehicleDescriptor
	Position            *Position
	CurrentStopSequence *uint32
	StopID              *string
	CurrentStatus       *VehicleStopStatus
	Timestamp           *time.Time
	CongestionLevel     *CongestionLevel
	OccupancyStatus     *OccupancyStatus
	OccupancyPercentage *uint32
	Unknown             wire.UnknownFields
}

func (*VehiclePosition) Kind() constants.EntityKind { return constants.Vehicle }
func (*VehiclePosition) isPayload()                 {}

// GetCurrentStatus returns the current status, which is IN_TRANSIT_TO if the feed does not
// specify one.
func (vehicle *VehiclePosition) GetCurrentStatus() VehicleStopStatus {
	if vehicle != nil && vehicle.CurrentStatus != nil {
		return *vehicle.CurrentStatus
	}
	return InTransitTo
}

func (vehicle *VehiclePosition) GetTrip() TripDescriptor {
	if vehicle != nil && vehicle.Trip != nil {
		return *vehicle.Trip
	}
	return TripDescriptor{}
}

func (vehicle *VehiclePosition) GetVehicle() VehicleDescriptor {
	if vehicle != nil && vehicle.Vehicle != nil {
		return *vehicle.Vehicle
	}
	return VehicleDescriptor{}
}

type Position struct {
	// Degrees North, in the WGS-84 coordinate system.
	Latitude float32
	// Degrees East, in the WGS-84 coordinate system.
	Longitude float32
	// Bearing, in degrees, clockwise from North, i.e., 0 is North and 90 is East.
	// This can be the compass bearing, or the direction towards the next stop
	// or intermediate location.
	Bearing *float32
	// Odometer value, in meters.
	Odometer *float64
	// Momentary speed measured by the vehicle, in meters per second.
	Speed   *float32
	Unknown wire.UnknownFields
}

type Alert struct {
	ActivePeriods    []TimeRange
	InformedEntities []EntitySelector
	Cause            AlertCause
	Effect           AlertEffect
	URL              *TranslatedString
	Header           *TranslatedString
	Description      *TranslatedString
	TTSHeader        *TranslatedString
	TTSDescription   *TranslatedString
	Unknown          wire.UnknownFields
}

func (*Alert) Kind() constants.EntityKind { return constants.Alert }
func (*Alert) isPayload()                 {}

// ActiveAt reports whether the alert is active at t. An alert without active periods is always
// active.
func (alert *Alert) ActiveAt(t time.Time) bool {
	if len(alert.ActivePeriods) == 0 {
		return true
	}
	for _, period := range alert.ActivePeriods {
		if period.Active(t) {
			return true
		}
	}
	return false
}

type TimeRange struct {
	Start   *time.Time
	End     *time.Time
	Unknown wire.UnknownFields
}

// Active reports whether start <= t < end. A missing bound is unbounded.
func (r TimeRange) Active(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(*r.End) {
		return false
	}
	return true
}

type TripDescriptor struct {
	TripID               *string
	RouteID              *string
	DirectionID          *uint32
	StartTime            *string
	StartDate            *string
	ScheduleRelationship TripScheduleRelationship
	Unknown              wire.UnknownFields
}

func (t *TripDescriptor) GetTripID() string {
	if t != nil && t.TripID != nil {
		return *t.TripID
	}
	return ""
}

func (t *TripDescriptor) GetRouteID() string {
	if t != nil && t.RouteID != nil {
		return *t.RouteID
	}
	return ""
}

var startTimeRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{2}):([0-9]{2}):([0-9]{2})$`)
var startDateRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{4})([0-9]{2})([0-9]{2})$`)

// ParseStartTime parses a start time of the form HH:MM:SS into a Duration since the start of
// the service day. Hours may exceed 23 for trips that run past midnight.
//
// It does not handle daylight saving time currently.
func (t *TripDescriptor) ParseStartTime() (time.Duration, bool) {
	if t == nil || t.StartTime == nil {
		return 0, false
	}
	startTimeMatch := startTimeRegex.FindStringSubmatch(*t.StartTime)
	if startTimeMatch == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(startTimeMatch[1])
	m, _ := strconv.Atoi(startTimeMatch[2])
	s, _ := strconv.Atoi(startTimeMatch[3])
	return time.Duration((h*60+m)*60+s) * time.Second, true
}

// ParseStartDate parses a start date of the form YYYYMMDD in the given timezone.
func (t *TripDescriptor) ParseStartDate(timezone *time.Location) (time.Time, bool) {
	if t == nil || t.StartDate == nil {
		return time.Time{}, false
	}
	startDateMatch := startDateRegex.FindStringSubmatch(*t.StartDate)
	if startDateMatch == nil {
		return time.Time{}, false
	}
	y, _ := strconv.Atoi(startDateMatch[1])
	m, _ := strconv.Atoi(startDateMatch[2])
	d, _ := strconv.Atoi(startDateMatch[3])
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, timezone), true
}

// UniquelyIdentifiesTrip reports whether the descriptor names a single trip instance: either by
// trip id, or by route, direction, start time and start date.
func (t *TripDescriptor) UniquelyIdentifiesTrip() bool {
	if t == nil {
		return false
	}
	if t.GetTripID() != "" {
		return true
	}
	_, hasStartTime := t.ParseStartTime()
	_, hasStartDate := t.ParseStartDate(time.UTC)
	return t.GetRouteID() != "" && t.DirectionID != nil && hasStartTime && hasStartDate
}

type VehicleDescriptor struct {
	ID           *string
	Label        *string
	LicensePlate *string
	Unknown      wire.UnknownFields
}

func (v *VehicleDescriptor) GetID() string {
	if v != nil && v.ID != nil {
		return *v.ID
	}
	return ""
}

type EntitySelector struct {
	AgencyID    *string
	RouteID     *string
	RouteType   *int32
	Trip        *TripDescriptor
	StopID      *string
	DirectionID *uint32
	Unknown     wire.UnknownFields
}

// Matches reports whether every field set in the selector agrees with the target. A selector
// with no fields set matches nothing.
func (s EntitySelector) Matches(target EntitySelector) bool {
	if s.AgencyID == nil && s.RouteID == nil && s.RouteType == nil && s.Trip == nil && s.StopID == nil && s.DirectionID == nil {
		return false
	}
	if !optEqual(s.AgencyID, target.AgencyID) ||
		!optEqual(s.RouteID, target.RouteID) ||
		!optEqual(s.RouteType, target.RouteType) ||
		!optEqual(s.StopID, target.StopID) ||
		!optEqual(s.DirectionID, target.DirectionID) {
		return false
	}
	if s.Trip == nil {
		return true
	}
	if target.Trip == nil {
		return false
	}
	return optEqual(s.Trip.TripID, target.Trip.TripID) &&
		optEqual(s.Trip.RouteID, target.Trip.RouteID) &&
		optEqual(s.Trip.DirectionID, target.Trip.DirectionID) &&
		optEqual(s.Trip.StartTime, target.Trip.StartTime) &&
		optEqual(s.Trip.StartDate, target.Trip.StartDate)
}

// optEqual reports whether want is unset or equal to got.
func optEqual[T comparable](want, got *T) bool {
	if want == nil {
		return true
	}
	return got != nil && *want == *got
}

type TranslatedString struct {
	Translations []Translation
	Unknown      wire.UnknownFields
}

type Translation struct {
	Text string
	// Language is a BCP-47 tag. Unset means the text is in the feed's default language.
	Language *string
	Unknown  wire.UnknownFields
}

type ParseRealtimeOptions struct {
	// The timezone to interpret date field.
	//
	// It can be nil, in which case UTC will used.
	Timezone *time.Location

	// Logger receives a debug event for every rejected entity. It can be nil.
	Logger *zerolog.Logger
}

func (opts *ParseRealtimeOptions) timezoneOrUTC() *time.Location {
	if opts.Timezone != nil {
		return opts.Timezone
	}
	return time.UTC
}

func (opts *ParseRealtimeOptions) logger() *zerolog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// ParseRealtime decodes and validates a GTFS Realtime message.
//
// Malformed input results in an error matching ErrMalformedInput, unless the damage is confined
// to the content of entities: each such entity is dropped with a Fatal MalformedEntity warning.
// A message whose header is unusable results in an error matching ErrSchemaViolation. Otherwise
// entities with Fatal violations are dropped and the rest of the message is returned.
func ParseRealtime(content []byte, opts *ParseRealtimeOptions) (*Realtime, error) {
	if opts == nil {
		opts = &ParseRealtimeOptions{}
	}
	m, err := wire.UnmarshalPartial(content, schema.GTFSRealtime().MustMessage(schema.FeedMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to parse input as a GTFS Realtime message: %w", err)
	}
	report := validate.Validate(m)
	if report.MessageRejected() {
		return nil, fmt.Errorf("GTFS Realtime message rejected: %w", report.Fatal()[0])
	}

	p := parser{timezone: opts.timezoneOrUTC()}
	result := &Realtime{
		Message: &FeedMessage{
			Header:  p.header(m.Child("header")),
			Unknown: m.Unknown,
		},
		Warnings: report.Warnings,
	}
	if t := result.Message.Header.Timestamp; t != nil {
		result.CreatedAt = *t
	}

	accepted := map[string]bool{}
	var rejected []string
	for i, entity := range m.Children("entity") {
		if report.EntityRejected(i) {
			if entity.Has("id") {
				rejected = append(rejected, wire.Value[string](entity, "id"))
			}
			continue
		}
		e := p.entity(entity)
		accepted[e.ID] = true
		result.Message.Entities = append(result.Message.Entities, e)
	}
	for _, id := range rejected {
		if accepted[id] {
			continue
		}
		accepted[id] = true
		result.Rejected = append(result.Rejected, id)
	}
	for _, w := range report.Warnings {
		if w, ok := w.(warnings.MalformedEntity); ok {
			opts.logger().Debug().Int("entity_index", w.Index).Int("offset", w.Offset).Msg(w.Error())
		}
	}
	if len(result.Rejected) > 0 {
		byEntity := report.ByEntity()
		for _, id := range result.Rejected {
			for _, w := range byEntity[id] {
				if w.Severity() == warnings.Fatal {
					opts.logger().Debug().Str("entity_id", id).Str("path", w.Path()).Msg(w.Error())
				}
			}
		}
	}
	return result, nil
}

type parser struct {
	timezone *time.Location
}

func (p *parser) timestamp(m *wire.Message, name string) *time.Time {
	return convertOptionalTimestamp(wire.Opt[uint64](m, name), p.timezone)
}

func convertOptionalTimestamp(in *uint64, timezone *time.Location) *time.Time {
	if in == nil {
		return nil
	}
	out := time.Unix(int64(*in), 0).In(timezone)
	return &out
}

func convertOptionalDelay(in *int32) *time.Duration {
	if in == nil {
		return nil
	}
	d := time.Duration(*in) * time.Second
	return &d
}

func convertOptionalEnum[T ~int32](in *int32) *T {
	if in == nil {
		return nil
	}
	t := T(*in)
	return &t
}

func (p *parser) header(m *wire.Message) FeedHeader {
	return FeedHeader{
		Version:        wire.Value[string](m, "gtfs_realtime_version"),
		Incrementality: Incrementality(wire.Value[int32](m, "incrementality")),
		Timestamp:      p.timestamp(m, "timestamp"),
		FeedVersion:    wire.Opt[string](m, "feed_version"),
		Unknown:        m.Unknown,
	}
}

func (p *parser) entity(m *wire.Message) FeedEntity {
	entity := FeedEntity{
		ID:        wire.Value[string](m, "id"),
		IsDeleted: wire.Value[bool](m, "is_deleted"),
		Unknown:   m.Unknown,
	}
	switch {
	case m.Has("trip_update"):
		entity.Payload = p.tripUpdate(m.Child("trip_update"))
	case m.Has("vehicle"):
		entity.Payload = p.vehicle(m.Child("vehicle"))
	case m.Has("alert"):
		entity.Payload = p.alert(m.Child("alert"))
	}
	return entity
}

func (p *parser) tripUpdate(m *wire.Message) *TripUpdate {
	tripUpdate := &TripUpdate{
		Trip:      *p.tripDescriptor(m.Child("trip")),
		Vehicle:   p.vehicleDescriptor(m.Child("vehicle")),
		Timestamp: p.timestamp(m, "timestamp"),
		Delay:     convertOptionalDelay(wire.Opt[int32](m, "delay")),
		Unknown:   m.Unknown,
	}
	for _, stu := range m.Children("stop_time_update") {
		tripUpdate.StopTimeUpdates = append(tripUpdate.StopTimeUpdates, StopTimeUpdate{
			StopSequence:         wire.Opt[uint32](stu, "stop_sequence"),
			StopID:               wire.Opt[string](stu, "stop_id"),
			Arrival:              p.stopTimeEvent(stu.Child("arrival")),
			Departure:            p.stopTimeEvent(stu.Child("departure")),
			ScheduleRelationship: StopTimeScheduleRelationship(wire.Value[int32](stu, "schedule_relationship")),
			Unknown:              stu.Unknown,
		})
	}
	return tripUpdate
}

func (p *parser) stopTimeEvent(m *wire.Message) *StopTimeEvent {
	if m == nil {
		return nil
	}
	event := &StopTimeEvent{
		Delay:       convertOptionalDelay(wire.Opt[int32](m, "delay")),
		Uncertainty: wire.Opt[int32](m, "uncertainty"),
		Unknown:     m.Unknown,
	}
	if t := wire.Opt[int64](m, "time"); t != nil {
		tt := time.Unix(*t, 0).In(p.timezone)
		event.Time = &tt
	}
	return event
}

func (p *parser) vehicle(m *wire.Message) *VehiclePosition {
	return &VehiclePosition{
		Trip:                p.tripDescriptor(m.Child("trip")),
		Vehicle:             p.vehicleDescriptor(m.Child("vehicle")),
		Position:            p.position(m.Child("position")),
		CurrentStopSequence: wire.Opt[uint32](m, "current_stop_sequence"),
		StopID:              wire.Opt[string](m, "stop_id"),
		CurrentStatus:       convertOptionalEnum[VehicleStopStatus](wire.Opt[int32](m, "current_status")),
		Timestamp:           p.timestamp(m, "timestamp"),
		CongestionLevel:     convertOptionalEnum[CongestionLevel](wire.Opt[int32](m, "congestion_level")),
		OccupancyStatus:     convertOptionalEnum[OccupancyStatus](wire.Opt[int32](m, "occupancy_status")),
		OccupancyPercentage: wire.Opt[uint32](m, "occupancy_percentage"),
		Unknown:             m.Unknown,
	}
}

func (p *parser) position(m *wire.Message) *Position {
	if m == nil {
		return nil
	}
	return &Position{
		Latitude:  wire.Value[float32](m, "latitude"),
		Longitude: wire.Value[float32](m, "longitude"),
		Bearing:   wire.Opt[float32](m, "bearing"),
		Odometer:  wire.Opt[float64](m, "odometer"),
		Speed:     wire.Opt[float32](m, "speed"),
		Unknown:   m.Unknown,
	}
}

func (p *parser) alert(m *wire.Message) *Alert {
	alert := &Alert{
		Cause:          AlertCause(wire.Value[int32](m, "cause")),
		Effect:         AlertEffect(wire.Value[int32](m, "effect")),
		URL:            p.translatedString(m.Child("url")),
		Header:         p.translatedString(m.Child("header_text")),
		Description:    p.translatedString(m.Child("description_text")),
		TTSHeader:      p.translatedString(m.Child("tts_header_text")),
		TTSDescription: p.translatedString(m.Child("tts_description_text")),
		Unknown:        m.Unknown,
	}
	for _, period := range m.Children("active_period") {
		alert.ActivePeriods = append(alert.ActivePeriods, TimeRange{
			Start:   p.timestamp(period, "start"),
			End:     p.timestamp(period, "end"),
			Unknown: period.Unknown,
		})
	}
	for _, selector := range m.Children("informed_entity") {
		alert.InformedEntities = append(alert.InformedEntities, EntitySelector{
			AgencyID:    wire.Opt[string](selector, "agency_id"),
			RouteID:     wire.Opt[string](selector, "route_id"),
			RouteType:   wire.Opt[int32](selector, "route_type"),
			Trip:        p.tripDescriptor(selector.Child("trip")),
			StopID:      wire.Opt[string](selector, "stop_id"),
			DirectionID: wire.Opt[uint32](selector, "direction_id"),
			Unknown:     selector.Unknown,
		})
	}
	return alert
}

func (p *parser) translatedString(m *wire.Message) *TranslatedString {
	if m == nil {
		return nil
	}
	ts := &TranslatedString{Unknown: m.Unknown}
	for _, t := range m.Children("translation") {
		ts.Translations = append(ts.Translations, Translation{
			Text:     wire.Value[string](t, "text"),
			Language: wire.Opt[string](t, "language"),
			Unknown:  t.Unknown,
		})
	}
	return ts
}

func (p *parser) tripDescriptor(m *wire.Message) *TripDescriptor {
	if m == nil {
		return nil
	}
	return &TripDescriptor{
		TripID:               wire.Opt[string](m, "trip_id"),
		RouteID:              wire.Opt[string](m, "route_id"),
		DirectionID:          wire.Opt[uint32](m, "direction_id"),
		StartTime:            wire.Opt[string](m, "start_time"),
		StartDate:            wire.Opt[string](m, "start_date"),
		ScheduleRelationship: TripScheduleRelationship(wire.Value[int32](m, "schedule_relationship")),
		Unknown:              m.Unknown,
	}
}

func (p *parser) vehicleDescriptor(m *wire.Message) *VehicleDescriptor {
	if m == nil {
		return nil
	}
	return &VehicleDescriptor{
		ID:           wire.Opt[string](m, "id"),
		Label:        wire.Opt[string](m, "label"),
		LicensePlate: wire.Opt[string](m, "license_plate"),
		Unknown:      m.Unknown,
	}
}
