package main

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/extensions/nyct"
	"github.com/jamespfennell/gtfsrt/merge"
	"github.com/jamespfennell/gtfsrt/stoptime"
	"github.com/jamespfennell/gtfsrt/text"
	"github.com/jamespfennell/gtfsrt/warnings"
)

func formatTrip(entity *gtfsrt.FeedEntity, indent int, printStopTimes bool) string {
	trip := entity.GetTripUpdate()
	var b strings.Builder
	tc := color.New(color.FgCyan)
	vc := color.New(color.FgMagenta)
	sc := color.New(color.FgGreen)
	newLine := fmt.Sprintf("\n%*s", indent, "")
	fmt.Fprintf(&b,
		"EntityID %s  TripID %s  RouteID %s  DirectionID %s  StartDate %s  StartTime %s  %s%s",
		tc.Sprint(entity.ID),
		tc.Sprint(unPtr(trip.Trip.TripID)),
		tc.Sprint(unPtr(trip.Trip.RouteID)),
		tc.Sprint(unPtrI(trip.Trip.DirectionID)),
		tc.Sprint(unPtr(trip.Trip.StartDate)),
		tc.Sprint(unPtr(trip.Trip.StartTime)),
		tc.Sprint(trip.Trip.ScheduleRelationship),
		newLine,
	)
	if trip.Vehicle != nil {
		fmt.Fprintf(&b, "Vehicle: ID %s%s", vc.Sprint(unPtr(trip.Vehicle.ID)), newLine)
	} else {
		fmt.Fprintf(&b, "Vehicle: <none>%s", newLine)
	}

	if printStopTimes {
		fmt.Fprintf(&b, "Stop times (%d):%s", len(trip.StopTimeUpdates), newLine)
		for i := range trip.StopTimeUpdates {
			stopTime := &trip.StopTimeUpdates[i]
			fmt.Fprintf(&b,
				"  StopSeq %s  StopID %s  Arrival %s  Departure %s  NyctTrack %s%s",
				sc.Sprint(unPtrI(stopTime.StopSequence)),
				sc.Sprint(unPtr(stopTime.StopID)),
				unPtrT(stopTime.GetArrival().Time, sc),
				unPtrT(stopTime.GetDeparture().Time, sc),
				sc.Sprint(unPtr(nyct.GetTrack(stopTime))),
				newLine,
			)
		}
	} else {
		fmt.Fprintf(&b, "Num stop times: %d (show with -v)%s", len(trip.StopTimeUpdates), newLine)
	}

	return b.String()
}

func formatVehicle(entity *gtfsrt.FeedEntity, indent int) string {
	vehicle := entity.GetVehicle()
	var b strings.Builder
	tc := color.New(color.FgCyan)
	vc := color.New(color.FgMagenta)
	newLine := fmt.Sprintf("\n%*s", indent, "")
	fmt.Fprintf(&b,
		"EntityID %s  VehicleID %s  TripID %s  Status %s  StopID %s%s",
		tc.Sprint(entity.ID),
		vc.Sprint(unPtr(vehicle.GetVehicle().ID)),
		tc.Sprint(unPtr(vehicle.GetTrip().TripID)),
		tc.Sprint(vehicle.GetCurrentStatus()),
		tc.Sprint(unPtr(vehicle.StopID)),
		newLine,
	)
	if p := vehicle.Position; p != nil {
		fmt.Fprintf(&b, "Position: %s%s", vc.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude), newLine)
	}
	return b.String()
}

func formatAlert(entity *gtfsrt.FeedEntity, indent int, defaultLang string) string {
	alert := entity.GetAlert()
	header := text.ResolveOr(alert.Header, defaultLang, defaultLang, "")
	if len(header) > 100 {
		header = header[:100] + "..."
	}
	var b strings.Builder
	tc := color.New(color.FgCyan)
	vc := color.New(color.FgMagenta)
	newLine := fmt.Sprintf("\n%*s", indent, "")
	fmt.Fprintf(&b,
		"AlertID %s  Cause %s  Effect %s  Active now %s  Header %s%s",
		tc.Sprint(entity.ID),
		tc.Sprint(alert.Cause),
		tc.Sprint(alert.Effect),
		tc.Sprint(alert.ActiveAt(time.Now())),
		vc.Sprint(header),
		newLine,
	)
	return b.String()
}

func formatPredictions(trip *gtfsrt.TripUpdate, predictions []stoptime.Prediction, indent int) string {
	var b strings.Builder
	tc := color.New(color.FgCyan)
	sc := color.New(color.FgGreen)
	ec := color.New(color.FgYellow)
	newLine := fmt.Sprintf("\n%*s", indent, "")
	fmt.Fprintf(&b, "TripID %s  Stops %d%s", tc.Sprint(trip.Trip.GetTripID()), len(predictions), newLine)
	for _, p := range predictions {
		c := sc
		if p.Explicit {
			c = ec
		}
		fmt.Fprintf(&b,
			"  StopSeq %s  StopID %s  %s  Arrival %s  Departure %s%s",
			c.Sprint(p.Sequence),
			c.Sprint(p.StopID),
			c.Sprint(p.Status),
			formatEvent(p.Arrival, c),
			formatEvent(p.Departure, c),
			newLine,
		)
	}
	return b.String()
}

func formatEvent(e stoptime.EventPrediction, c *color.Color) string {
	delay := "<none>"
	if e.Delay != nil {
		delay = e.Delay.String()
	}
	return fmt.Sprintf("%s (delay %s)", unPtrT(e.Time, c), c.Sprint(delay))
}

func formatWarning(w warnings.RealtimeWarning) string {
	c := color.New(color.FgYellow)
	if w.Severity() == warnings.Fatal {
		c = color.New(color.FgRed)
	}
	entityID := w.EntityID()
	if entityID == "" {
		entityID = "<message>"
	}
	return fmt.Sprintf("%s  %s  %s  %s", c.Sprint(w.Severity()), entityID, w.Path(), w.Error())
}

func formatResult(r merge.Result) string {
	return fmt.Sprintf("generation %d  added %d  updated %d  removed %d  unchanged %d  warnings %d",
		r.Generation, len(r.Added), len(r.Updated), len(r.Removed), len(r.Unchanged), len(r.Warnings))
}

func hashOf(e *gtfsrt.FeedEntity) [md5.Size]byte {
	h := md5.New()
	e.Hash(h)
	var d [md5.Size]byte
	copy(d[:], h.Sum(nil))
	return d
}

func unPtr(s *string) string {
	if s == nil {
		return "<none>"
	}
	return *s
}

func unPtrI(s *uint32) string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d", *s)
}

func unPtrT(t *time.Time, c *color.Color) string {
	if t == nil {
		return "<none>"
	}
	return c.Sprint(t.String())
}
