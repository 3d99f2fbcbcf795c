package stoptime_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/stoptime"
)

func ptr[T any](t T) *T {
	return &t
}

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// stops returns stops 1..n, each scheduled ten minutes after the previous one.
func stops(n int) []stoptime.ScheduledStop {
	var s []stoptime.ScheduledStop
	for i := 1; i <= n; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Minute)
		s = append(s, stoptime.ScheduledStop{
			Sequence:  uint32(i),
			StopID:    fmt.Sprintf("stop%d", i),
			Arrival:   ptr(at),
			Departure: ptr(at),
		})
	}
	return s
}

func delayed(seq uint32, delay time.Duration) gtfsrt.StopTimeUpdate {
	return gtfsrt.StopTimeUpdate{
		StopSequence: ptr(seq),
		Arrival:      &gtfsrt.StopTimeEvent{Delay: ptr(delay)},
	}
}

type summary struct {
	Status   stoptime.Status
	Delay    *time.Duration
	Explicit bool
}

func summarize(predictions []stoptime.Prediction) map[uint32]summary {
	m := map[uint32]summary{}
	for _, p := range predictions {
		m[p.Sequence] = summary{Status: p.Status, Delay: p.Arrival.Delay, Explicit: p.Explicit}
	}
	return m
}

func TestResolve(t *testing.T) {
	for _, tc := range []struct {
		name    string
		stops   []stoptime.ScheduledStop
		updates []gtfsrt.StopTimeUpdate
		want    map[uint32]summary
	}{
		{
			name:  "propagation with no data",
			stops: stops(10),
			updates: []gtfsrt.StopTimeUpdate{
				delayed(3, 300*time.Second),
				delayed(8, 60*time.Second),
				{StopSequence: ptr(uint32(10)), ScheduleRelationship: gtfsrt.StopNoData},
			},
			want: map[uint32]summary{
				1:  {Status: stoptime.NoPrediction},
				2:  {Status: stoptime.NoPrediction},
				3:  {Status: stoptime.Predicted, Delay: ptr(300 * time.Second), Explicit: true},
				4:  {Status: stoptime.Predicted, Delay: ptr(300 * time.Second)},
				5:  {Status: stoptime.Predicted, Delay: ptr(300 * time.Second)},
				6:  {Status: stoptime.Predicted, Delay: ptr(300 * time.Second)},
				7:  {Status: stoptime.Predicted, Delay: ptr(300 * time.Second)},
				8:  {Status: stoptime.Predicted, Delay: ptr(60 * time.Second), Explicit: true},
				9:  {Status: stoptime.Predicted, Delay: ptr(60 * time.Second)},
				10: {Status: stoptime.NoPrediction, Explicit: true},
			},
		},
		{
			name:  "no data then delay",
			stops: stops(4),
			updates: []gtfsrt.StopTimeUpdate{
				{StopSequence: ptr(uint32(1)), ScheduleRelationship: gtfsrt.StopNoData},
				delayed(3, time.Minute),
			},
			want: map[uint32]summary{
				1: {Status: stoptime.NoPrediction, Explicit: true},
				2: {Status: stoptime.NoPrediction},
				3: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
				4: {Status: stoptime.Predicted, Delay: ptr(time.Minute)},
			},
		},
		{
			name:  "skipped does not propagate",
			stops: stops(4),
			updates: []gtfsrt.StopTimeUpdate{
				delayed(1, 2*time.Minute),
				{StopSequence: ptr(uint32(2)), ScheduleRelationship: gtfsrt.StopSkipped},
			},
			want: map[uint32]summary{
				1: {Status: stoptime.Predicted, Delay: ptr(2 * time.Minute), Explicit: true},
				2: {Status: stoptime.Skipped, Explicit: true},
				3: {Status: stoptime.Predicted, Delay: ptr(2 * time.Minute)},
				4: {Status: stoptime.Predicted, Delay: ptr(2 * time.Minute)},
			},
		},
		{
			name:  "absolute time defines the delay",
			stops: stops(3),
			updates: []gtfsrt.StopTimeUpdate{
				{
					StopSequence: ptr(uint32(2)),
					Arrival:      &gtfsrt.StopTimeEvent{Time: ptr(base.Add(20*time.Minute + 90*time.Second))},
				},
			},
			want: map[uint32]summary{
				1: {Status: stoptime.NoPrediction},
				2: {Status: stoptime.Predicted, Delay: ptr(90 * time.Second), Explicit: true},
				3: {Status: stoptime.Predicted, Delay: ptr(90 * time.Second)},
			},
		},
		{
			name:  "matched by stop id",
			stops: stops(3),
			updates: []gtfsrt.StopTimeUpdate{
				{StopID: ptr("stop2"), Arrival: &gtfsrt.StopTimeEvent{Delay: ptr(time.Minute)}},
			},
			want: map[uint32]summary{
				1: {Status: stoptime.NoPrediction},
				2: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
				3: {Status: stoptime.Predicted, Delay: ptr(time.Minute)},
			},
		},
		{
			name:  "update without events starts no prediction",
			stops: stops(3),
			updates: []gtfsrt.StopTimeUpdate{
				{StopSequence: ptr(uint32(2))},
			},
			want: map[uint32]summary{
				1: {Status: stoptime.NoPrediction},
				2: {Status: stoptime.NoPrediction, Explicit: true},
				3: {Status: stoptime.NoPrediction},
			},
		},
		{
			name:  "update without events inherits",
			stops: stops(3),
			updates: []gtfsrt.StopTimeUpdate{
				delayed(1, time.Minute),
				{StopSequence: ptr(uint32(2))},
			},
			want: map[uint32]summary{
				1: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
				2: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
				3: {Status: stoptime.Predicted, Delay: ptr(time.Minute)},
			},
		},
		{
			name:  "empty update list",
			stops: stops(2),
			want: map[uint32]summary{
				1: {Status: stoptime.ScheduleUnknown},
				2: {Status: stoptime.ScheduleUnknown},
			},
		},
		{
			name: "no schedule",
			updates: []gtfsrt.StopTimeUpdate{
				delayed(5, time.Minute),
				delayed(9, 2*time.Minute),
			},
			want: map[uint32]summary{
				5: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
				9: {Status: stoptime.Predicted, Delay: ptr(2 * time.Minute), Explicit: true},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tu := &gtfsrt.TripUpdate{
				Trip:            gtfsrt.TripDescriptor{TripID: ptr("trip")},
				StopTimeUpdates: tc.updates,
			}
			predictions, err := stoptime.Resolve(tc.stops, tu)
			if err != nil {
				t.Fatalf("Resolve() err = %s", err)
			}
			if diff := cmp.Diff(tc.want, summarize(predictions)); diff != "" {
				t.Errorf("Resolve() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolvePredictedTimes(t *testing.T) {
	tu := &gtfsrt.TripUpdate{
		StopTimeUpdates: []gtfsrt.StopTimeUpdate{
			{
				StopSequence: ptr(uint32(1)),
				Arrival:      &gtfsrt.StopTimeEvent{Delay: ptr(time.Minute), Uncertainty: ptr(int32(30))},
				Departure:    &gtfsrt.StopTimeEvent{Delay: ptr(2 * time.Minute)},
			},
		},
	}
	predictions, err := stoptime.Resolve(stops(2), tu)
	if err != nil {
		t.Fatalf("Resolve() err = %s", err)
	}
	want := []stoptime.Prediction{
		{
			Sequence:  1,
			StopID:    "stop1",
			Status:    stoptime.Predicted,
			Arrival:   stoptime.EventPrediction{Delay: ptr(time.Minute), Time: ptr(base.Add(11 * time.Minute)), Uncertainty: ptr(int32(30))},
			Departure: stoptime.EventPrediction{Delay: ptr(2 * time.Minute), Time: ptr(base.Add(12 * time.Minute))},
			Explicit:  true,
		},
		{
			Sequence:  2,
			StopID:    "stop2",
			Status:    stoptime.Predicted,
			Arrival:   stoptime.EventPrediction{Delay: ptr(2 * time.Minute), Time: ptr(base.Add(22 * time.Minute))},
			Departure: stoptime.EventPrediction{Delay: ptr(2 * time.Minute), Time: ptr(base.Add(22 * time.Minute))},
		},
	}
	if diff := cmp.Diff(want, predictions); diff != "" {
		t.Errorf("Resolve() (-want +got):\n%s", diff)
	}
}

func TestResolveCanceledTrip(t *testing.T) {
	tu := &gtfsrt.TripUpdate{
		Trip:            gtfsrt.TripDescriptor{TripID: ptr("trip"), ScheduleRelationship: gtfsrt.TripCanceled},
		StopTimeUpdates: []gtfsrt.StopTimeUpdate{delayed(1, time.Minute)},
	}
	predictions, err := stoptime.Resolve(stops(3), tu)
	if err != nil {
		t.Fatalf("Resolve() err = %s", err)
	}
	for _, p := range predictions {
		if p.Status != stoptime.Skipped {
			t.Errorf("stop %d status = %s, want SKIPPED", p.Sequence, p.Status)
		}
	}
}

func TestResolveLoopTrip(t *testing.T) {
	s := stops(4)
	s[3].StopID = "stop1"
	tu := &gtfsrt.TripUpdate{
		StopTimeUpdates: []gtfsrt.StopTimeUpdate{
			{StopID: ptr("stop1"), Arrival: &gtfsrt.StopTimeEvent{Delay: ptr(time.Minute)}},
			{StopID: ptr("stop1"), Arrival: &gtfsrt.StopTimeEvent{Delay: ptr(3 * time.Minute)}},
		},
	}
	predictions, err := stoptime.Resolve(s, tu)
	if err != nil {
		t.Fatalf("Resolve() err = %s", err)
	}
	want := map[uint32]summary{
		1: {Status: stoptime.Predicted, Delay: ptr(time.Minute), Explicit: true},
		2: {Status: stoptime.Predicted, Delay: ptr(time.Minute)},
		3: {Status: stoptime.Predicted, Delay: ptr(time.Minute)},
		4: {Status: stoptime.Predicted, Delay: ptr(3 * time.Minute), Explicit: true},
	}
	if diff := cmp.Diff(want, summarize(predictions)); diff != "" {
		t.Errorf("Resolve() (-want +got):\n%s", diff)
	}
}

func TestResolveErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		stops  []stoptime.ScheduledStop
		update gtfsrt.StopTimeUpdate
	}{
		{"unknown sequence", stops(3), delayed(7, 0)},
		{"unknown stop id", stops(3), gtfsrt.StopTimeUpdate{StopID: ptr("elsewhere")}},
		{"no reference", stops(3), gtfsrt.StopTimeUpdate{}},
		{"no schedule and no sequence", nil, gtfsrt.StopTimeUpdate{StopID: ptr("stop1")}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tu := &gtfsrt.TripUpdate{StopTimeUpdates: []gtfsrt.StopTimeUpdate{tc.update}}
			if _, err := stoptime.Resolve(tc.stops, tu); !errors.Is(err, stoptime.ErrUnknownStop) {
				t.Errorf("Resolve() err = %v, want ErrUnknownStop", err)
			}
		})
	}
}

func TestResolveNilTripUpdate(t *testing.T) {
	if _, err := stoptime.Resolve(stops(2), nil); !errors.Is(err, stoptime.ErrNoTripUpdate) {
		t.Errorf("Resolve(nil) err = %v, want ErrNoTripUpdate", err)
	}
	if _, err := stoptime.ResolveTrip(staticSchedule{}, nil); !errors.Is(err, stoptime.ErrNoTripUpdate) {
		t.Errorf("ResolveTrip(nil) err = %v, want ErrNoTripUpdate", err)
	}
}

type staticSchedule map[string][]stoptime.ScheduledStop

func (s staticSchedule) StopsForTrip(tripID string) ([]stoptime.ScheduledStop, error) {
	stops, ok := s[tripID]
	if !ok {
		return nil, fmt.Errorf("no trip %s", tripID)
	}
	return stops, nil
}

func TestResolveTrip(t *testing.T) {
	schedule := staticSchedule{"trip": stops(2)}
	tu := &gtfsrt.TripUpdate{
		Trip:            gtfsrt.TripDescriptor{TripID: ptr("trip")},
		StopTimeUpdates: []gtfsrt.StopTimeUpdate{delayed(1, time.Minute)},
	}
	predictions, err := stoptime.ResolveTrip(schedule, tu)
	if err != nil {
		t.Fatalf("ResolveTrip() err = %s", err)
	}
	if len(predictions) != 2 {
		t.Errorf("len(predictions) = %d, want 2", len(predictions))
	}

	tu.Trip.TripID = ptr("other")
	if _, err := stoptime.ResolveTrip(schedule, tu); err == nil {
		t.Errorf("ResolveTrip() for an unknown trip returned no error")
	}
}

func TestTracker(t *testing.T) {
	tracker := stoptime.NewTracker()
	tu := &gtfsrt.TripUpdate{StopTimeUpdates: []gtfsrt.StopTimeUpdate{delayed(1, time.Minute)}}

	first, err := tracker.Observe("trip", stops(2), tu)
	if err != nil {
		t.Fatalf("Observe() err = %s", err)
	}
	if first.Held {
		t.Errorf("first observation is held")
	}

	held, err := tracker.Observe("trip", stops(2), nil)
	if err != nil {
		t.Fatalf("Observe(nil) err = %s", err)
	}
	if !held.Held {
		t.Errorf("observation without an update is not held")
	}
	if diff := cmp.Diff(first.Predictions, held.Predictions); diff != "" {
		t.Errorf("held predictions changed (-first +held):\n%s", diff)
	}

	unknown, err := tracker.Observe("trip", stops(2), &gtfsrt.TripUpdate{})
	if err != nil {
		t.Fatalf("Observe(empty) err = %s", err)
	}
	for _, p := range unknown.Predictions {
		if p.Status != stoptime.ScheduleUnknown {
			t.Errorf("stop %d status = %s, want SCHEDULE_UNKNOWN", p.Sequence, p.Status)
		}
	}

	tracker.Forget("trip")
	if _, ok := tracker.Predictions("trip"); ok {
		t.Errorf("trip still tracked after Forget")
	}
}

func TestTrackerNeverUpdatedTrip(t *testing.T) {
	tracker := stoptime.NewTracker()

	missing, err := tracker.Observe("trip", stops(2), nil)
	if err != nil {
		t.Fatalf("Observe(nil) err = %s", err)
	}
	want := []stoptime.Prediction{
		{
			Sequence:  1,
			StopID:    "stop1",
			Status:    stoptime.AsScheduled,
			Arrival:   stoptime.EventPrediction{Delay: ptr(time.Duration(0)), Time: ptr(base.Add(10 * time.Minute))},
			Departure: stoptime.EventPrediction{Delay: ptr(time.Duration(0)), Time: ptr(base.Add(10 * time.Minute))},
		},
		{
			Sequence:  2,
			StopID:    "stop2",
			Status:    stoptime.AsScheduled,
			Arrival:   stoptime.EventPrediction{Delay: ptr(time.Duration(0)), Time: ptr(base.Add(20 * time.Minute))},
			Departure: stoptime.EventPrediction{Delay: ptr(time.Duration(0)), Time: ptr(base.Add(20 * time.Minute))},
		},
	}
	if diff := cmp.Diff(want, missing.Predictions); diff != "" {
		t.Errorf("Observe(nil) (-want +got):\n%s", diff)
	}
	if missing.Held {
		t.Errorf("never updated trip is held")
	}
	if _, ok := tracker.Predictions("trip"); ok {
		t.Errorf("never updated trip is tracked")
	}

	empty, err := tracker.Observe("trip", stops(2), &gtfsrt.TripUpdate{})
	if err != nil {
		t.Fatalf("Observe(empty) err = %s", err)
	}
	for _, p := range empty.Predictions {
		if p.Status != stoptime.ScheduleUnknown {
			t.Errorf("stop %d status = %s, want SCHEDULE_UNKNOWN", p.Sequence, p.Status)
		}
	}
	if _, ok := tracker.Predictions("trip"); !ok {
		t.Errorf("trip with an empty update is not tracked")
	}
}
