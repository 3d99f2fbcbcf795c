// Package validate checks a decoded GTFS Realtime message against the structural rules of
// GTFS Realtime.
//
// Violations are either Fatal, meaning the affected entity (or the whole message, for header
// problems) cannot be interpreted, or Advisory. Only Fatal violations stop an entity from being
// processed; the rest of the feed is unaffected.
package validate

import (
	"fmt"
	"math"

	"github.com/jamespfennell/gtfsrt/constants"
	"github.com/jamespfennell/gtfsrt/schema"
	"github.com/jamespfennell/gtfsrt/warnings"
	"github.com/jamespfennell/gtfsrt/wire"
	"golang.org/x/text/language"
)

// Report is the result of validating one feed message.
type Report struct {
	Warnings []warnings.RealtimeWarning

	messageRejected  bool
	rejectedEntities map[int]bool
}

// MessageRejected reports whether the message as a whole cannot be interpreted.
func (r *Report) MessageRejected() bool {
	return r.messageRejected
}

// EntityRejected reports whether the entity at index i of the message has a Fatal violation.
func (r *Report) EntityRejected(i int) bool {
	return r.rejectedEntities[i]
}

// Fatal returns the Fatal warnings.
func (r *Report) Fatal() []warnings.RealtimeWarning {
	var out []warnings.RealtimeWarning
	for _, w := range r.Warnings {
		if w.Severity() == warnings.Fatal {
			out = append(out, w)
		}
	}
	return out
}

// ByEntity groups the warnings by entity id. Message level warnings use the empty id.
func (r *Report) ByEntity() map[string][]warnings.RealtimeWarning {
	m := map[string][]warnings.RealtimeWarning{}
	for _, w := range r.Warnings {
		m[w.EntityID()] = append(m[w.EntityID()], w)
	}
	return m
}

type validator struct {
	report *Report
	entity string
	// index of the entity being validated, or -1 for message level fields.
	index int
}

func (v *validator) add(w warnings.RealtimeWarning) {
	v.report.Warnings = append(v.report.Warnings, w)
	if w.Severity() != warnings.Fatal {
		return
	}
	if v.index < 0 {
		v.report.messageRejected = true
	} else {
		v.report.rejectedEntities[v.index] = true
	}
}

func (v *validator) at(path string) warnings.Location {
	return warnings.Location{Entity: v.entity, At: path}
}

// Validate checks a decoded FeedMessage.
func Validate(m *wire.Message) *Report {
	v := &validator{
		report: &Report{rejectedEntities: map[int]bool{}},
		index:  -1,
	}
	v.unknownFields(m, "")
	header := m.Child("header")
	if header == nil {
		v.add(warnings.MissingHeader{Location: v.at("header")})
	} else {
		if wire.Value[string](header, "gtfs_realtime_version") == "" {
			v.add(warnings.EmptyVersion{Location: v.at("header.gtfs_realtime_version")})
		}
		if incrementality := wire.Value[int32](header, "incrementality"); incrementality == 1 {
			v.add(warnings.UnsupportedIncrementality{
				Location:       v.at("header.incrementality"),
				Incrementality: "DIFFERENTIAL",
			})
		}
		v.walk(header, "header")
	}

	malformed := map[int]*wire.ElementError{}
	for _, e := range m.Malformed {
		if e.Field == "entity" {
			malformed[e.Index] = e
		}
	}
	firstUse := map[string]string{}
	for i, entity := range m.Children("entity") {
		path := fmt.Sprintf("entity[%d]", i)
		v.index = i
		v.entity = wire.Value[string](entity, "id")
		if e, ok := malformed[i]; ok {
			v.add(warnings.MalformedEntity{Location: v.at(path), Index: i, Offset: e.Err.Offset, Err: e.Err})
			continue
		}
		v.walk(entity, path)
		v.payload(entity, path)
		if !entity.Has("id") {
			continue
		}
		if first, ok := firstUse[v.entity]; ok {
			v.add(warnings.DuplicateEntityID{Location: v.at(path), FirstPath: first})
		} else {
			firstUse[v.entity] = path
		}
	}
	return v.report
}

func (v *validator) payload(entity *wire.Message, path string) {
	var payloads []constants.EntityKind
	for _, kind := range constants.EntityKinds {
		if entity.Has(string(kind)) {
			payloads = append(payloads, kind)
		}
	}
	if wire.Value[bool](entity, "is_deleted") {
		if len(payloads) > 0 {
			v.add(warnings.DeletedEntityHasPayload{Location: v.at(path), Payloads: payloads})
		}
		return
	}
	if len(payloads) != 1 {
		v.add(warnings.PayloadCount{Location: v.at(path), Payloads: payloads})
	}
}

// walk applies the descriptor driven checks to m and its descendants.
func (v *validator) walk(m *wire.Message, path string) {
	md := m.Descriptor
	for _, f := range md.Fields {
		fieldPath := join(path, f.Name)
		if f.Cardinality == schema.Required && !m.Has(f.Name) {
			v.add(warnings.MissingRequiredField{Location: v.at(path), Field: f.Name})
			continue
		}
		switch f.Kind {
		case schema.EnumKind:
			e := f.Enum()
			if val, ok := m.Lookup(f.Name); ok && e != nil && !e.Contains(val.(int32)) {
				v.add(warnings.UnknownEnumValue{Location: v.at(fieldPath), Enum: e.Name, Value: val.(int32)})
			}
		case schema.MessageKind:
			if f.Repeated() {
				for i, child := range m.Children(f.Name) {
					v.walk(child, fmt.Sprintf("%s[%d]", fieldPath, i))
				}
			} else if child := m.Child(f.Name); child != nil {
				v.walk(child, fieldPath)
			}
		}
	}
	v.unknownFields(m, path)

	switch md.Name {
	case schema.TripUpdate:
		v.stopSequences(m, path)
	case schema.StopTimeUpdate:
		if !m.Has("stop_sequence") && !m.Has("stop_id") {
			v.add(warnings.MissingStopReference{Location: v.at(path)})
		}
	case schema.StopTimeEvent:
		if u := wire.Opt[int32](m, "uncertainty"); u != nil && *u < 0 {
			v.add(warnings.ValueOutOfRange{Location: v.at(path), Field: "uncertainty", Value: float64(*u), Min: 0, Max: math.MaxInt32})
		}
	case schema.TripDescriptor:
		if !m.Has("trip_id") && !m.Has("route_id") {
			v.add(warnings.UnidentifiedTrip{Location: v.at(path)})
		}
	case schema.EntitySelector:
		if len(m.Present()) == 0 {
			v.add(warnings.EmptyEntitySelector{Location: v.at(path)})
		}
	case schema.Position:
		v.inRange(m, path, "latitude", -90, 90)
		v.inRange(m, path, "longitude", -180, 180)
		v.inRange(m, path, "bearing", 0, 360)
	case schema.TranslatedString:
		v.translations(m, path)
	}
}

func (v *validator) unknownFields(m *wire.Message, path string) {
	for _, u := range m.Unknown {
		if !m.Descriptor.InExtensionRange(u.Number) {
			v.add(warnings.UnrecognizedField{Location: v.at(path), Number: u.Number})
		}
	}
}

// stopSequences checks that explicit stop_sequence values increase through the update list.
// Updates identified only by stop_id can only be ordered against the static schedule, which is
// not available here.
func (v *validator) stopSequences(tripUpdate *wire.Message, path string) {
	var previous *uint32
	for i, stu := range tripUpdate.Children("stop_time_update") {
		current := wire.Opt[uint32](stu, "stop_sequence")
		if current == nil {
			continue
		}
		location := v.at(fmt.Sprintf("%s.stop_time_update[%d]", path, i))
		switch {
		case previous == nil:
		case *current < *previous:
			v.add(warnings.StopSequenceDecreasing{Location: location, Previous: *previous, Current: *current})
		case *current == *previous:
			v.add(warnings.StopSequenceRepeated{Location: location, StopSequence: *current})
		}
		previous = current
	}
}

func (v *validator) translations(ts *wire.Message, path string) {
	untagged := 0
	for i, t := range ts.Children("translation") {
		lang := wire.Opt[string](t, "language")
		if lang == nil || *lang == "" {
			untagged++
			continue
		}
		if _, err := language.Parse(*lang); err != nil {
			v.add(warnings.InvalidLanguageTag{Location: v.at(fmt.Sprintf("%s.translation[%d]", path, i)), Tag: *lang})
		}
	}
	if untagged > 1 {
		v.add(warnings.MultipleUntaggedTranslations{Location: v.at(path), Count: untagged})
	}
}

func (v *validator) inRange(m *wire.Message, path, field string, min, max float64) {
	f := wire.Opt[float32](m, field)
	if f == nil {
		return
	}
	if val := float64(*f); val < min || val > max || math.IsNaN(val) {
		v.add(warnings.ValueOutOfRange{Location: v.at(path), Field: field, Value: val, Min: min, Max: max})
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
