package journal

import (
	"testing"
	"time"
)

var trip Trip = Trip{
	TripUID:     "TripUID",
	TripID:      "TripID",
	RouteID:     "RouteID",
	DirectionID: ptr(uint32(1)),
	VehicleID:   "Vehicle, 1",
	StartTime:   ptr(time.Unix(100, 0)),
	StopTimes: []StopTime{
		{
			Sequence:      1,
			StopID:        "StopID1",
			ArrivalTime:   nil,
			DepartureTime: ptr(time.Unix(200, 0)),
			LastObserved:  time.Unix(200, 0),
			MarkedPast:    ptr(time.Unix(300, 0)),
		},
		{
			Sequence:      2,
			StopID:        "StopID2",
			ArrivalTime:   ptr(time.Unix(300, 0)),
			DepartureTime: ptr(time.Unix(400, 0)),
			LastObserved:  time.Unix(400, 0),
		},
		{
			Sequence:      3,
			StopID:        "StopID3",
			ArrivalTime:   ptr(time.Unix(500, 0)),
			DepartureTime: nil,
			LastObserved:  time.Unix(400, 0),
		},
	},
	LastObserved:       time.Unix(400, 0),
	MarkedPast:         ptr(time.Unix(600, 0)),
	NumUpdates:         100,
	NumScheduleChanges: 2,
}

const expectedTripsCsv = `trip_uid,trip_id,route_id,direction_id,start_time,vehicle_id,last_observed,marked_past,num_updates,num_schedule_changes
TripUID,TripID,RouteID,1,100,"Vehicle, 1",400,600,100,2
`

const expectedStopTimesCsv = `trip_uid,stop_sequence,stop_id,arrival_time,departure_time,last_observed,marked_past
TripUID,1,StopID1,,200,200,300
TripUID,2,StopID2,300,400,400,
TripUID,3,StopID3,500,,400,
`

func TestCsvExport(t *testing.T) {
	journal := Journal{Trips: []Trip{trip}}

	result, err := journal.ExportToCsv()
	if err != nil {
		t.Fatalf("ExportToCsv function failed: %s", err)
	}

	if got, want := string(result.TripsCsv), expectedTripsCsv; got != want {
		t.Errorf("Trips file actual:\n%s\n!= expected:\n%s\n", got, want)
	}

	if got, want := string(result.StopTimesCsv), expectedStopTimesCsv; got != want {
		t.Errorf("Stop times file actual:\n%s\n!= expected:\n%s\n", got, want)
	}
}

func TestCsvExportEmpty(t *testing.T) {
	result, err := New(nil).ExportToCsv()
	if err != nil {
		t.Fatalf("ExportToCsv function failed: %s", err)
	}
	if got, want := string(result.TripsCsv), "trip_uid,trip_id,route_id,direction_id,start_time,vehicle_id,last_observed,marked_past,num_updates,num_schedule_changes\n"; got != want {
		t.Errorf("Trips file actual:\n%s\n!= expected:\n%s\n", got, want)
	}
}

func ptr[T any](t T) *T {
	return &t
}
