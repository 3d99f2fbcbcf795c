// Package journal records how the predictions for trips evolve over a sequence of feed messages.
package journal

import (
	"sort"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/stoptime"
)

// Trip is the journal entry of one trip update entity.
type Trip struct {
	TripUID     string
	TripID      string
	RouteID     string
	DirectionID *uint32
	VehicleID   string
	StartTime   *time.Time
	StopTimes   []StopTime

	LastObserved time.Time
	// MarkedPast is when the trip first disappeared from the feed.
	MarkedPast *time.Time
	NumUpdates int
	// NumScheduleChanges counts the updates that changed the set of stops of the trip, other
	// than by dropping the stops already passed.
	NumScheduleChanges int
}

// StopTime is the last prediction seen for a stop of a trip.
type StopTime struct {
	Sequence      uint32
	StopID        string
	ArrivalTime   *time.Time
	DepartureTime *time.Time
	LastObserved  time.Time
	// MarkedPast is when the stop first disappeared from the predictions of the trip.
	MarkedPast *time.Time
}

type Journal struct {
	Trips []Trip

	timezone *time.Location
	index    map[string]int
}

// New returns an empty journal. Trip start dates are interpreted in the timezone.
func New(timezone *time.Location) *Journal {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Journal{timezone: timezone, index: map[string]int{}}
}

// Observe records the resolved predictions of a trip update seen at the given time.
func (j *Journal) Observe(at time.Time, tripUID string, tu *gtfsrt.TripUpdate, predictions []stoptime.Prediction) {
	i, ok := j.index[tripUID]
	if !ok {
		i = len(j.Trips)
		j.index[tripUID] = i
		j.Trips = append(j.Trips, Trip{TripUID: tripUID})
	}
	trip := &j.Trips[i]
	trip.TripID = tu.Trip.GetTripID()
	trip.RouteID = tu.Trip.GetRouteID()
	trip.DirectionID = tu.Trip.DirectionID
	vehicle := tu.GetVehicle()
	if id := vehicle.GetID(); id != "" {
		trip.VehicleID = id
	}
	if startDate, ok := tu.Trip.ParseStartDate(j.timezone); ok {
		start := startDate
		if startTime, ok := tu.Trip.ParseStartTime(); ok {
			start = startDate.Add(startTime)
		}
		trip.StartTime = &start
	}
	trip.LastObserved = at
	trip.MarkedPast = nil
	trip.NumUpdates++

	type key struct {
		sequence uint32
		stopID   string
	}
	existing := map[key]int{}
	for k, st := range trip.StopTimes {
		existing[key{st.Sequence, st.StopID}] = k
	}
	seen := map[key]bool{}
	var firstSeen *uint32
	var added bool
	for _, p := range predictions {
		if p.Status != stoptime.Predicted {
			continue
		}
		k := key{p.Sequence, p.StopID}
		seen[k] = true
		if firstSeen == nil {
			seq := p.Sequence
			firstSeen = &seq
		}
		idx, ok := existing[k]
		if !ok {
			idx = len(trip.StopTimes)
			trip.StopTimes = append(trip.StopTimes, StopTime{Sequence: p.Sequence, StopID: p.StopID})
			added = trip.NumUpdates > 1
		}
		st := &trip.StopTimes[idx]
		st.ArrivalTime = p.Arrival.Time
		st.DepartureTime = p.Departure.Time
		st.LastObserved = at
		st.MarkedPast = nil
	}
	var removed bool
	for k := range trip.StopTimes {
		st := &trip.StopTimes[k]
		if seen[key{st.Sequence, st.StopID}] || st.MarkedPast != nil {
			continue
		}
		if firstSeen == nil || st.Sequence < *firstSeen {
			t := at
			st.MarkedPast = &t
			continue
		}
		removed = true
	}
	if added || removed {
		trip.NumScheduleChanges++
	}
	sort.SliceStable(trip.StopTimes, func(a, b int) bool {
		return trip.StopTimes[a].Sequence < trip.StopTimes[b].Sequence
	})
}

// MarkPast marks the trips that are not active at the given time as past. Trips already marked
// keep their original time.
func (j *Journal) MarkPast(at time.Time, active map[string]bool) {
	for i := range j.Trips {
		trip := &j.Trips[i]
		if active[trip.TripUID] || trip.MarkedPast != nil {
			continue
		}
		t := at
		trip.MarkedPast = &t
	}
}
