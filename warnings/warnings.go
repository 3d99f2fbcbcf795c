// Package warnings contains the violations reported when validating a GTFS Realtime feed.
package warnings

import (
	"errors"
	"fmt"

	"github.com/jamespfennell/gtfsrt/constants"
)

var (
	// ErrSchemaViolation is matched by every warning describing a decoded but invalid feed.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrUnsupportedIncrementality is matched by the DIFFERENTIAL capability warning.
	ErrUnsupportedIncrementality = errors.New("unsupported incrementality")
)

// Severity says whether a warning prevents an entity from being interpreted.
type Severity int32

const (
	Advisory Severity = 0
	Fatal    Severity = 1
)

func (s Severity) String() string {
	switch s {
	case Fatal:
		return "FATAL"
	default:
		return "ADVISORY"
	}
}

type RealtimeWarning interface {
	// EntityID is the id of the affected entity, or the empty string for message level warnings.
	EntityID() string
	Severity() Severity
	// Path locates the offending field, e.g. "entity[3].trip_update.stop_time_update[2]".
	Path() string
	Error() string
}

// Location is embedded by every warning.
type Location struct {
	Entity string
	At     string
}

func (l Location) EntityID() string {
	return l.Entity
}

func (l Location) Path() string {
	return l.At
}

func (l Location) Unwrap() error {
	return ErrSchemaViolation
}

func (l Location) prefix() string {
	if l.Entity == "" {
		return l.At
	}
	return fmt.Sprintf("entity %q: %s", l.Entity, l.At)
}

type MissingHeader struct {
	Location
}

func (w MissingHeader) Severity() Severity { return Fatal }

func (w MissingHeader) Error() string {
	return "feed message has no header"
}

type EmptyVersion struct {
	Location
}

func (w EmptyVersion) Severity() Severity { return Fatal }

func (w EmptyVersion) Error() string {
	return "feed header has an empty gtfs_realtime_version"
}

// UnsupportedIncrementality is reported for DIFFERENTIAL feeds, whose merge semantics are
// unspecified. It is a capability warning and never blocks processing.
type UnsupportedIncrementality struct {
	Location
	Incrementality string
}

func (w UnsupportedIncrementality) Severity() Severity { return Advisory }

func (w UnsupportedIncrementality) Unwrap() error {
	return ErrUnsupportedIncrementality
}

func (w UnsupportedIncrementality) Error() string {
	return fmt.Sprintf("incrementality %s is experimental", w.Incrementality)
}

// MalformedEntity is reported for an entity whose bytes cannot be decoded. The other entities
// of the message are unaffected.
type MalformedEntity struct {
	Location
	Index int
	// Offset is the position in the message where decoding failed.
	Offset int
	Err    error
}

func (w MalformedEntity) Severity() Severity { return Fatal }

func (w MalformedEntity) Unwrap() error {
	return w.Err
}

func (w MalformedEntity) Error() string {
	return fmt.Sprintf("%s: entity %d is malformed at byte %d: %s", w.prefix(), w.Index, w.Offset, w.Err)
}

type DuplicateEntityID struct {
	Location
	FirstPath string
}

func (w DuplicateEntityID) Severity() Severity { return Fatal }

func (w DuplicateEntityID) Error() string {
	return fmt.Sprintf("%s: entity id already used by %s", w.prefix(), w.FirstPath)
}

type PayloadCount struct {
	Location
	Payloads []constants.EntityKind
}

func (w PayloadCount) Severity() Severity { return Fatal }

func (w PayloadCount) Error() string {
	if len(w.Payloads) == 0 {
		return fmt.Sprintf("%s: entity is not deleted and has no payload", w.prefix())
	}
	return fmt.Sprintf("%s: entity has %d payloads %v, want exactly one", w.prefix(), len(w.Payloads), w.Payloads)
}

type DeletedEntityHasPayload struct {
	Location
	Payloads []constants.EntityKind
}

func (w DeletedEntityHasPayload) Severity() Severity { return Advisory }

func (w DeletedEntityHasPayload) Error() string {
	return fmt.Sprintf("%s: deleted entity carries payload %v", w.prefix(), w.Payloads)
}

type MissingRequiredField struct {
	Location
	Field string
}

func (w MissingRequiredField) Severity() Severity { return Fatal }

func (w MissingRequiredField) Error() string {
	return fmt.Sprintf("%s: required field %s is missing", w.prefix(), w.Field)
}

type MissingStopReference struct {
	Location
}

func (w MissingStopReference) Severity() Severity { return Fatal }

func (w MissingStopReference) Error() string {
	return fmt.Sprintf("%s: stop time update has neither stop_sequence nor stop_id", w.prefix())
}

type StopSequenceDecreasing struct {
	Location
	Previous uint32
	Current  uint32
}

func (w StopSequenceDecreasing) Severity() Severity { return Fatal }

func (w StopSequenceDecreasing) Error() string {
	return fmt.Sprintf("%s: stop_sequence %d follows %d", w.prefix(), w.Current, w.Previous)
}

type StopSequenceRepeated struct {
	Location
	StopSequence uint32
}

func (w StopSequenceRepeated) Severity() Severity { return Advisory }

func (w StopSequenceRepeated) Error() string {
	return fmt.Sprintf("%s: stop_sequence %d appears more than once", w.prefix(), w.StopSequence)
}

// UnknownEnumValue is reported for values outside the declared enumerants. Such values are
// kept: they may have been added by a newer version of the schema.
type UnknownEnumValue struct {
	Location
	Enum  string
	Value int32
}

func (w UnknownEnumValue) Severity() Severity { return Advisory }

func (w UnknownEnumValue) Error() string {
	return fmt.Sprintf("%s: value %d is not a declared %s", w.prefix(), w.Value, w.Enum)
}

// UnrecognizedField is reported for unknown field numbers outside the extension ranges.
type UnrecognizedField struct {
	Location
	Number int32
}

func (w UnrecognizedField) Severity() Severity { return Advisory }

func (w UnrecognizedField) Error() string {
	return fmt.Sprintf("%s: unrecognized field number %d outside the extension ranges", w.prefix(), w.Number)
}

type MultipleUntaggedTranslations struct {
	Location
	Count int
}

func (w MultipleUntaggedTranslations) Severity() Severity { return Advisory }

func (w MultipleUntaggedTranslations) Error() string {
	return fmt.Sprintf("%s: %d translations have no language, at most one is allowed", w.prefix(), w.Count)
}

type InvalidLanguageTag struct {
	Location
	Tag string
}

func (w InvalidLanguageTag) Severity() Severity { return Advisory }

func (w InvalidLanguageTag) Error() string {
	return fmt.Sprintf("%s: %q is not a BCP-47 language tag", w.prefix(), w.Tag)
}

type EmptyEntitySelector struct {
	Location
}

func (w EmptyEntitySelector) Severity() Severity { return Advisory }

func (w EmptyEntitySelector) Error() string {
	return fmt.Sprintf("%s: entity selector selects nothing", w.prefix())
}

type UnidentifiedTrip struct {
	Location
}

func (w UnidentifiedTrip) Severity() Severity { return Advisory }

func (w UnidentifiedTrip) Error() string {
	return fmt.Sprintf("%s: trip descriptor has neither trip_id nor route_id", w.prefix())
}

type ValueOutOfRange struct {
	Location
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (w ValueOutOfRange) Severity() Severity { return Advisory }

func (w ValueOutOfRange) Error() string {
	return fmt.Sprintf("%s: %s = %v is outside [%v, %v]", w.prefix(), w.Field, w.Value, w.Min, w.Max)
}
