package gtfsrt

import (
	"time"

	"github.com/jamespfennell/gtfsrt/schema"
	"github.com/jamespfennell/gtfsrt/wire"
)

// Marshal encodes a feed message.
//
// Unknown and extension fields captured when the message was parsed are written back verbatim.
// Enum fields equal to their default value are omitted.
func Marshal(m *FeedMessage) ([]byte, error) {
	return wire.Marshal(m.toWire())
}

// Marshal encodes the entity as a single entity feed message with the given header.
func (e *FeedEntity) Marshal(header FeedHeader) ([]byte, error) {
	return Marshal(&FeedMessage{Header: header, Entities: []FeedEntity{*e}})
}

func newMessage(name string, unknown wire.UnknownFields) *wire.Message {
	m := wire.New(schema.GTFSRealtime().MustMessage(name))
	m.Unknown = append(wire.UnknownFields(nil), unknown...)
	return m
}

func setTimestamp(m *wire.Message, name string, t *time.Time) {
	if t != nil {
		m.Set(name, uint64(t.Unix()))
	}
}

func setDelay(m *wire.Message, name string, d *time.Duration) {
	if d != nil {
		m.Set(name, int32(*d/time.Second))
	}
}

func setEnum[T ~int32](m *wire.Message, name string, v T, def T) {
	if v != def {
		m.Set(name, int32(v))
	}
}

func setOptionalEnum[T ~int32](m *wire.Message, name string, v *T) {
	if v != nil {
		m.Set(name, int32(*v))
	}
}

func (m *FeedMessage) toWire() *wire.Message {
	w := newMessage(schema.FeedMessage, m.Unknown)
	w.Set("header", m.Header.toWire())
	for i := range m.Entities {
		w.Append("entity", m.Entities[i].toWire())
	}
	return w
}

func (h *FeedHeader) toWire() *wire.Message {
	w := newMessage(schema.FeedHeader, h.Unknown)
	w.Set("gtfs_realtime_version", h.Version)
	setEnum(w, "incrementality", h.Incrementality, FullDataset)
	setTimestamp(w, "timestamp", h.Timestamp)
	wire.SetOpt(w, "feed_version", h.FeedVersion)
	return w
}

func (e *FeedEntity) toWire() *wire.Message {
	w := newMessage(schema.FeedEntity, e.Unknown)
	w.Set("id", e.ID)
	if e.IsDeleted {
		w.Set("is_deleted", true)
	}
	switch p := e.Payload.(type) {
	case *TripUpdate:
		w.Set("trip_update", p.toWire())
	case *VehiclePosition:
		w.Set("vehicle", p.toWire())
	case *Alert:
		w.Set("alert", p.toWire())
	}
	return w
}

func (tu *TripUpdate) toWire() *wire.Message {
	w := newMessage(schema.TripUpdate, tu.Unknown)
	w.Set("trip", tu.Trip.toWire())
	for i := range tu.StopTimeUpdates {
		w.Append("stop_time_update", tu.StopTimeUpdates[i].toWire())
	}
	if tu.Vehicle != nil {
		w.Set("vehicle", tu.Vehicle.toWire())
	}
	setTimestamp(w, "timestamp", tu.Timestamp)
	setDelay(w, "delay", tu.Delay)
	return w
}

func (stu *StopTimeUpdate) toWire() *wire.Message {
	w := newMessage(schema.StopTimeUpdate, stu.Unknown)
	wire.SetOpt(w, "stop_sequence", stu.StopSequence)
	if stu.Arrival != nil {
		w.Set("arrival", stu.Arrival.toWire())
	}
	if stu.Departure != nil {
		w.Set("departure", stu.Departure.toWire())
	}
	wire.SetOpt(w, "stop_id", stu.StopID)
	setEnum(w, "schedule_relationship", stu.ScheduleRelationship, StopScheduled)
	return w
}

func (e *StopTimeEvent) toWire() *wire.Message {
	w := newMessage(schema.StopTimeEvent, e.Unknown)
	setDelay(w, "delay", e.Delay)
	if e.Time != nil {
		w.Set("time", e.Time.Unix())
	}
	wire.SetOpt(w, "uncertainty", e.Uncertainty)
	return w
}

func (v *VehiclePosition) toWire() *wire.Message {
	w := newMessage(schema.VehiclePosition, v.Unknown)
	if v.Trip != nil {
		w.Set("trip", v.Trip.toWire())
	}
	if v.Position != nil {
		w.Set("position", v.Position.toWire())
	}
	wire.SetOpt(w, "current_stop_sequence", v.CurrentStopSequence)
	setOptionalEnum(w, "current_status", v.CurrentStatus)
	setTimestamp(w, "timestamp", v.Timestamp)
	setOptionalEnum(w, "congestion_level", v.CongestionLevel)
	wire.SetOpt(w, "stop_id", v.StopID)
	if v.Vehicle != nil {
		w.Set("vehicle", v.Vehicle.toWire())
	}
	setOptionalEnum(w, "occupancy_status", v.OccupancyStatus)
	wire.SetOpt(w, "occupancy_percentage", v.OccupancyPercentage)
	return w
}

func (p *Position) toWire() *wire.Message {
	w := newMessage(schema.Position, p.Unknown)
	w.Set("latitude", p.Latitude)
	w.Set("longitude", p.Longitude)
	wire.SetOpt(w, "bearing", p.Bearing)
	wire.SetOpt(w, "odometer", p.Odometer)
	wire.SetOpt(w, "speed", p.Speed)
	return w
}

func (a *Alert) toWire() *wire.Message {
	w := newMessage(schema.Alert, a.Unknown)
	for _, period := range a.ActivePeriods {
		pw := newMessage(schema.TimeRange, period.Unknown)
		setTimestamp(pw, "start", period.Start)
		setTimestamp(pw, "end", period.End)
		w.Append("active_period", pw)
	}
	for i := range a.InformedEntities {
		w.Append("informed_entity", a.InformedEntities[i].toWire())
	}
	setEnum(w, "cause", a.Cause, UnknownCause)
	setEnum(w, "effect", a.Effect, UnknownEffect)
	for _, text := range []struct {
		name string
		ts   *TranslatedString
	}{
		{"url", a.URL},
		{"header_text", a.Header},
		{"description_text", a.Description},
		{"tts_header_text", a.TTSHeader},
		{"tts_description_text", a.TTSDescription},
	} {
		if text.ts != nil {
			w.Set(text.name, text.ts.toWire())
		}
	}
	return w
}

func (s *EntitySelector) toWire() *wire.Message {
	w := newMessage(schema.EntitySelector, s.Unknown)
	wire.SetOpt(w, "agency_id", s.AgencyID)
	wire.SetOpt(w, "route_id", s.RouteID)
	wire.SetOpt(w, "route_type", s.RouteType)
	if s.Trip != nil {
		w.Set("trip", s.Trip.toWire())
	}
	wire.SetOpt(w, "stop_id", s.StopID)
	wire.SetOpt(w, "direction_id", s.DirectionID)
	return w
}

func (ts *TranslatedString) toWire() *wire.Message {
	w := newMessage(schema.TranslatedString, ts.Unknown)
	for _, t := range ts.Translations {
		tw := newMessage(schema.Translation, t.Unknown)
		tw.Set("text", t.Text)
		wire.SetOpt(tw, "language", t.Language)
		w.Append("translation", tw)
	}
	return w
}

func (t *TripDescriptor) toWire() *wire.Message {
	w := newMessage(schema.TripDescriptor, t.Unknown)
	wire.SetOpt(w, "trip_id", t.TripID)
	wire.SetOpt(w, "start_time", t.StartTime)
	wire.SetOpt(w, "start_date", t.StartDate)
	setEnum(w, "schedule_relationship", t.ScheduleRelationship, TripScheduled)
	wire.SetOpt(w, "route_id", t.RouteID)
	wire.SetOpt(w, "direction_id", t.DirectionID)
	return w
}

func (v *VehicleDescriptor) toWire() *wire.Message {
	w := newMessage(schema.VehicleDescriptor, v.Unknown)
	wire.SetOpt(w, "id", v.ID)
	wire.SetOpt(w, "label", v.Label)
	wire.SetOpt(w, "license_plate", v.LicensePlate)
	return w
}
