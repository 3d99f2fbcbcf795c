// Package stoptime expands the sparse stop time updates of a trip into a prediction for every
// stop of the trip.
package stoptime

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jamespfennell/gtfsrt"
)

// ErrUnknownStop is returned when a stop time update cannot be matched to a stop of the trip.
var ErrUnknownStop = errors.New("stop time update does not match a scheduled stop")

// ErrNoTripUpdate is returned when a nil trip update is resolved.
var ErrNoTripUpdate = errors.New("no trip update")

// ScheduledStop is one stop of a trip in the static schedule.
type ScheduledStop struct {
	Sequence  uint32
	StopID    string
	Arrival   *time.Time
	Departure *time.Time
}

// Schedule provides the stops of scheduled trips.
type Schedule interface {
	// StopsForTrip returns the stops of the trip. The order of the result is not significant.
	StopsForTrip(tripID string) ([]ScheduledStop, error)
}

type Status int

const (
	// NoPrediction means there is no realtime information for the stop: it precedes the first
	// update, or follows a NO_DATA update.
	NoPrediction Status = iota
	Predicted
	Skipped
	// ScheduleUnknown means the trip update has no stop time updates at all.
	ScheduleUnknown
	// AsScheduled means the feed has never carried an update for the trip, which is taken to
	// run on schedule with zero delay.
	AsScheduled
)

func (s Status) String() string {
	switch s {
	case Predicted:
		return "PREDICTED"
	case Skipped:
		return "SKIPPED"
	case ScheduleUnknown:
		return "SCHEDULE_UNKNOWN"
	case AsScheduled:
		return "AS_SCHEDULED"
	default:
		return "NO_PREDICTION"
	}
}

// EventPrediction is the effective arrival or departure at a stop.
type EventPrediction struct {
	Delay       *time.Duration
	Time        *time.Time
	Uncertainty *int32
}

type Prediction struct {
	Sequence  uint32
	StopID    string
	Status    Status
	Arrival   EventPrediction
	Departure EventPrediction
	// Explicit is true if the feed contains an update for this stop.
	Explicit bool
}

// ResolveTrip looks up the stops of the trip in the schedule and calls Resolve.
func ResolveTrip(schedule Schedule, tu *gtfsrt.TripUpdate) ([]Prediction, error) {
	if tu == nil {
		return nil, ErrNoTripUpdate
	}
	tripID := tu.Trip.GetTripID()
	stops, err := schedule.StopsForTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stops for trip %q: %w", tripID, err)
	}
	return Resolve(stops, tu)
}

// Resolve computes a prediction for every stop.
//
// Updates are matched to stops by stop_sequence or, failing that, by stop_id. Stops are walked
// in sequence order. A stop without an update inherits the delay and uncertainty of the most
// recent update before it, unless that update is NO_DATA. SKIPPED updates apply only to their
// own stop. An absolute time applies to its own stop; when the scheduled time is known it also
// defines the delay passed on to later stops.
//
// An explicit update with neither an event nor a delay to inherit gives no prediction and
// starts nothing for the stops after it.
//
// If stops is empty the stops are taken from the updates, which must then all have a
// stop_sequence.
func Resolve(stops []ScheduledStop, tu *gtfsrt.TripUpdate) ([]Prediction, error) {
	if tu == nil {
		return nil, ErrNoTripUpdate
	}
	if len(stops) == 0 {
		var err error
		if stops, err = stopsFromUpdates(tu); err != nil {
			return nil, err
		}
	} else {
		stops = append([]ScheduledStop(nil), stops...)
	}
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})

	predictions := make([]Prediction, len(stops))
	for i, stop := range stops {
		predictions[i] = Prediction{Sequence: stop.Sequence, StopID: stop.StopID}
	}
	if tu.Trip.ScheduleRelationship == gtfsrt.TripCanceled {
		for i := range predictions {
			predictions[i].Status = Skipped
		}
		return predictions, nil
	}
	if len(tu.StopTimeUpdates) == 0 {
		for i := range predictions {
			predictions[i].Status = ScheduleUnknown
		}
		return predictions, nil
	}

	explicit, err := anchor(stops, tu.StopTimeUpdates)
	if err != nil {
		return nil, err
	}

	// current is nil until the first update is reached.
	var current *carry
	for i, stop := range stops {
		p := &predictions[i]
		stu, ok := explicit[i]
		if !ok {
			if current == nil || current.noData || current.delay == nil {
				p.Status = NoPrediction
				continue
			}
			p.Status = Predicted
			p.Arrival = current.apply(stop.Arrival)
			p.Departure = current.apply(stop.Departure)
			continue
		}
		p.Explicit = true
		switch stu.ScheduleRelationship {
		case gtfsrt.StopSkipped:
			p.Status = Skipped
		case gtfsrt.StopNoData:
			p.Status = NoPrediction
			current = &carry{noData: true}
		default:
			inherited := carry{}
			if current != nil && !current.noData {
				inherited = *current
			}
			arrival, next := predict(stu.Arrival, stop.Arrival, inherited)
			departure, next := predict(stu.Departure, stop.Departure, next)
			if !arrival.known() && !departure.known() {
				p.Status = NoPrediction
				continue
			}
			p.Arrival, p.Departure = arrival, departure
			p.Status = Predicted
			current = &next
		}
	}
	return predictions, nil
}

func stopsFromUpdates(tu *gtfsrt.TripUpdate) ([]ScheduledStop, error) {
	var stops []ScheduledStop
	seen := map[uint32]bool{}
	for i, stu := range tu.StopTimeUpdates {
		if stu.StopSequence == nil {
			return nil, fmt.Errorf("stop time update %d has no stop_sequence and no schedule was provided: %w", i, ErrUnknownStop)
		}
		if seen[*stu.StopSequence] {
			continue
		}
		seen[*stu.StopSequence] = true
		stop := ScheduledStop{Sequence: *stu.StopSequence}
		if stu.StopID != nil {
			stop.StopID = *stu.StopID
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

// anchor maps stop indices to the update for that stop. Updates identified only by stop_id match
// the first stop with that id after the previously anchored stop, so trips visiting a stop twice
// are handled.
func anchor(stops []ScheduledStop, updates []gtfsrt.StopTimeUpdate) (map[int]*gtfsrt.StopTimeUpdate, error) {
	explicit := map[int]*gtfsrt.StopTimeUpdate{}
	last := -1
	for i := range updates {
		stu := &updates[i]
		idx := -1
		if stu.StopSequence != nil {
			idx = sort.Search(len(stops), func(j int) bool {
				return stops[j].Sequence >= *stu.StopSequence
			})
			if idx == len(stops) || stops[idx].Sequence != *stu.StopSequence {
				return nil, fmt.Errorf("stop_sequence %d: %w", *stu.StopSequence, ErrUnknownStop)
			}
		} else if stu.StopID != nil {
			for j := last + 1; j < len(stops); j++ {
				if stops[j].StopID == *stu.StopID {
					idx = j
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("stop_id %q: %w", *stu.StopID, ErrUnknownStop)
			}
		} else {
			return nil, fmt.Errorf("stop time update %d: %w", i, ErrUnknownStop)
		}
		explicit[idx] = stu
		if idx > last {
			last = idx
		}
	}
	return explicit, nil
}

// Scheduled returns the predictions of a trip without any realtime update: every stop at its
// scheduled time with zero delay.
func Scheduled(stops []ScheduledStop) []Prediction {
	stops = append([]ScheduledStop(nil), stops...)
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})
	onTime := carry{delay: new(time.Duration)}
	predictions := make([]Prediction, len(stops))
	for i, stop := range stops {
		predictions[i] = Prediction{
			Sequence:  stop.Sequence,
			StopID:    stop.StopID,
			Status:    AsScheduled,
			Arrival:   onTime.apply(stop.Arrival),
			Departure: onTime.apply(stop.Departure),
		}
	}
	return predictions
}

func (p EventPrediction) known() bool {
	return p.Delay != nil || p.Time != nil
}

// carry is the delay passed from an update to the stops after it.
type carry struct {
	delay       *time.Duration
	uncertainty *int32
	noData      bool
}

func (c *carry) apply(scheduled *time.Time) EventPrediction {
	p := EventPrediction{Delay: c.delay, Uncertainty: c.uncertainty}
	if c.delay != nil && scheduled != nil {
		t := scheduled.Add(*c.delay)
		p.Time = &t
	}
	return p
}

// predict returns the prediction for an explicit event and the carry for what follows. A nil
// event inherits.
func predict(event *gtfsrt.StopTimeEvent, scheduled *time.Time, inherited carry) (EventPrediction, carry) {
	if event == nil || (event.Delay == nil && event.Time == nil) {
		p := inherited.apply(scheduled)
		if event != nil && event.Uncertainty != nil {
			p.Uncertainty = event.Uncertainty
		}
		return p, inherited
	}
	next := carry{delay: event.Delay, uncertainty: event.Uncertainty}
	p := EventPrediction{Delay: event.Delay, Uncertainty: event.Uncertainty}
	if event.Time != nil {
		p.Time = event.Time
		if scheduled != nil {
			d := event.Time.Sub(*scheduled)
			p.Delay = &d
			next.delay = &d
		} else if event.Delay == nil {
			next.delay = inherited.delay
		}
	} else if scheduled != nil {
		t := scheduled.Add(*event.Delay)
		p.Time = &t
	}
	return p, next
}
