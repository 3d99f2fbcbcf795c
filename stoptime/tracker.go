package stoptime

import (
	"sync"

	"github.com/jamespfennell/gtfsrt"
)

// TripPredictions is the latest resolved state of a trip.
type TripPredictions struct {
	TripID      string
	Predictions []Prediction
	// Held is true if the last observation had no update for the trip and the previous
	// predictions were kept.
	Held bool
}

// Tracker remembers the predictions of trips across successive feed messages.
//
// A trip that is missing from a message keeps its previous predictions, or runs AsScheduled if
// it was never updated, whereas a trip whose update has no stop time updates has an unknown
// schedule.
type Tracker struct {
	mu    sync.Mutex
	trips map[string]TripPredictions
}

func NewTracker() *Tracker {
	return &Tracker{trips: map[string]TripPredictions{}}
}

// Observe records the update for a trip. A nil update means the trip was not in the message.
func (t *Tracker) Observe(tripID string, stops []ScheduledStop, tu *gtfsrt.TripUpdate) (TripPredictions, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tu == nil {
		prev, ok := t.trips[tripID]
		if ok {
			prev.Held = true
			t.trips[tripID] = prev
			return prev, nil
		}
		// Never updated: the trip runs as scheduled as far as anyone knows.
		return TripPredictions{TripID: tripID, Predictions: Scheduled(stops)}, nil
	}
	predictions, err := Resolve(stops, tu)
	if err != nil {
		return TripPredictions{}, err
	}
	state := TripPredictions{TripID: tripID, Predictions: predictions}
	t.trips[tripID] = state
	return state, nil
}

// Predictions returns the latest state of a trip.
func (t *Tracker) Predictions(tripID string) (TripPredictions, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.trips[tripID]
	return p, ok
}

// Forget drops the state of a trip, for example once it has finished.
func (t *Tracker) Forget(tripID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.trips, tripID)
}
