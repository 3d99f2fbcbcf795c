// Package nyct reads the New York City Transit subway extensions of GTFS Realtime.
//
// The extension fields are kept by the decoder as unknown fields and decoded here on demand, so
// feeds are parsed with the base schema and nothing NYCT-specific is lost.
package nyct

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/extensions"
	"github.com/jamespfennell/gtfsrt/wire"
)

type Direction int32

const (
	North Direction = 1
	East  Direction = 2
	South Direction = 3
	West  Direction = 4
)

func (d Direction) String() string {
	return Registry().Enum(DirectionEnum).Format(int32(d))
}

// TripDescriptor is the NYCT extension of a trip descriptor.
type TripDescriptor struct {
	TrainID    *string
	IsAssigned bool
	Direction  *Direction
}

// StopTimeUpdate is the NYCT extension of a stop time update.
type StopTimeUpdate struct {
	ScheduledTrack *string
	ActualTrack    *string
}

// Track returns the actual track if known and otherwise the scheduled track.
func (s *StopTimeUpdate) Track() *string {
	if s == nil {
		return nil
	}
	if s.ActualTrack != nil {
		return s.ActualTrack
	}
	return s.ScheduledTrack
}

type TripReplacementPeriod struct {
	RouteID *string
	// End of the replacement period. Trips of the route starting before it are in the feed.
	End *time.Time
}

// FeedHeader is the NYCT extension of a feed header.
type FeedHeader struct {
	SubwayVersion          string
	TripReplacementPeriods []TripReplacementPeriod
}

// ReadTripDescriptor returns the NYCT extension of the descriptor, or nil if it has none.
func ReadTripDescriptor(td *gtfsrt.TripDescriptor) (*TripDescriptor, error) {
	m, err := wire.DecodeExtension(td.Unknown, ExtensionNumber, Registry().MustMessage(TripDescriptorMessage))
	if err != nil || m == nil {
		return nil, err
	}
	return &TripDescriptor{
		TrainID:    wire.Opt[string](m, "train_id"),
		IsAssigned: wire.Value[bool](m, "is_assigned"),
		Direction:  (*Direction)(wire.Opt[int32](m, "direction")),
	}, nil
}

// WriteTripDescriptor sets the NYCT extension of the descriptor.
func WriteTripDescriptor(td *gtfsrt.TripDescriptor, ext TripDescriptor) error {
	m := wire.New(Registry().MustMessage(TripDescriptorMessage))
	wire.SetOpt(m, "train_id", ext.TrainID)
	if ext.IsAssigned {
		m.Set("is_assigned", true)
	}
	wire.SetOpt(m, "direction", (*int32)(ext.Direction))
	u, err := td.Unknown.SetExtension(ExtensionNumber, m)
	if err != nil {
		return err
	}
	td.Unknown = u
	return nil
}

// ReadStopTimeUpdate returns the NYCT extension of the update, or nil if it has none.
func ReadStopTimeUpdate(stu *gtfsrt.StopTimeUpdate) (*StopTimeUpdate, error) {
	m, err := wire.DecodeExtension(stu.Unknown, ExtensionNumber, Registry().MustMessage(StopTimeUpdateMessage))
	if err != nil || m == nil {
		return nil, err
	}
	return &StopTimeUpdate{
		ScheduledTrack: wire.Opt[string](m, "scheduled_track"),
		ActualTrack:    wire.Opt[string](m, "actual_track"),
	}, nil
}

// WriteStopTimeUpdate sets the NYCT extension of the update.
func WriteStopTimeUpdate(stu *gtfsrt.StopTimeUpdate, ext StopTimeUpdate) error {
	m := wire.New(Registry().MustMessage(StopTimeUpdateMessage))
	wire.SetOpt(m, "scheduled_track", ext.ScheduledTrack)
	wire.SetOpt(m, "actual_track", ext.ActualTrack)
	u, err := stu.Unknown.SetExtension(ExtensionNumber, m)
	if err != nil {
		return err
	}
	stu.Unknown = u
	return nil
}

// ReadFeedHeader returns the NYCT extension of the header, or nil if it has none.
func ReadFeedHeader(h *gtfsrt.FeedHeader) (*FeedHeader, error) {
	m, err := wire.DecodeExtension(h.Unknown, ExtensionNumber, Registry().MustMessage(FeedHeaderMessage))
	if err != nil || m == nil {
		return nil, err
	}
	header := &FeedHeader{SubwayVersion: wire.Value[string](m, "nyct_subway_version")}
	for _, period := range m.Children("trip_replacement_period") {
		p := TripReplacementPeriod{RouteID: wire.Opt[string](period, "route_id")}
		if r := period.Child("replacement_period"); r != nil {
			if end := wire.Opt[uint64](r, "end"); end != nil {
				t := time.Unix(int64(*end), 0).UTC()
				p.End = &t
			}
		}
		header.TripReplacementPeriods = append(header.TripReplacementPeriods, p)
	}
	return header, nil
}

// TripIDRegex matches NYCT trip ids, whose first group is the origin time in hundredths of a
// minute after midnight.
var TripIDRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{6})_([[:alnum:]]{1,2})..([SN])([[:alnum:]]*)$`)

// ExtensionOpts contains the options for the NYCT trips extension.
type ExtensionOpts struct {
	// Filter out trips which are scheduled to run in the past but have no assigned trip and haven't started.
	FilterStaleUnassignedTrips bool `yaml:"filterStaleUnassignedTrips"`

	// The M train reports its Bushwick stops with the platform of the opposite direction. By
	// default the platforms are swapped back; set this to keep the published stop ids.
	PreserveMTrainPlatformsInBushwick bool `yaml:"preserveMTrainPlatformsInBushwick"`
}

// Extension returns the NYCT trips extension. It fills in the standard fields NYCT encodes only
// in its extension: the vehicle of assigned trips, the direction id and the start time.
func Extension(opts ExtensionOpts) extensions.Extension {
	return extension{
		opts: opts,
	}
}

type extension struct {
	opts ExtensionOpts

	extensions.NoExtensionImpl
}

func (e extension) UpdateTrip(trip *gtfsrt.TripUpdate, feedCreatedAt time.Time) (extensions.UpdateTripResult, error) {
	if !e.opts.PreserveMTrainPlatformsInBushwick {
		fixMTrainPlatformsInBushwick(trip)
	}
	nyctTripDesc, err := ReadTripDescriptor(&trip.Trip)
	if err != nil {
		return extensions.UpdateTripResult{}, fmt.Errorf("failed to read NYCT trip descriptor: %w", err)
	}
	if nyctTripDesc == nil {
		return extensions.UpdateTripResult{}, nil
	}
	if vehicle := updateDescriptors(&trip.Trip, nyctTripDesc); vehicle != nil {
		trip.Vehicle = vehicle
	}
	isAssigned := nyctTripDesc.IsAssigned
	return extensions.UpdateTripResult{
		ShouldSkip: e.opts.FilterStaleUnassignedTrips && isStaleUnassignedTrip(isAssigned, trip.StopTimeUpdates, feedCreatedAt),
		IsAssigned: isAssigned,
	}, nil
}

func (e extension) UpdateVehicle(vehicle *gtfsrt.VehiclePosition) error {
	if vehicle.Trip == nil {
		return nil
	}
	nyctTripDesc, err := ReadTripDescriptor(vehicle.Trip)
	if err != nil {
		return fmt.Errorf("failed to read NYCT trip descriptor: %w", err)
	}
	if nyctTripDesc == nil {
		return nil
	}
	if v := updateDescriptors(vehicle.Trip, nyctTripDesc); v != nil {
		vehicle.Vehicle = v
	}
	return nil
}

// updateDescriptors fills the standard trip descriptor fields and returns the vehicle descriptor
// of an assigned trip.
func updateDescriptors(tripDesc *gtfsrt.TripDescriptor, nyctTripDesc *TripDescriptor) *gtfsrt.VehicleDescriptor {
	directionID := uint32(1)
	if nyctTripDesc.Direction == nil || *nyctTripDesc.Direction == North {
		directionID = 0
	}
	tripDesc.DirectionID = &directionID

	nyctTripIDMatch := TripIDRegex.FindStringSubmatch(tripDesc.GetTripID())
	if nyctTripIDMatch != nil {
		// We ignore the error as the regex guarantees it works
		hundrethsOfMins, _ := strconv.Atoi(nyctTripIDMatch[1])
		secondsAfterMidnight := (hundrethsOfMins * 6) / 10
		minutesAfterMidnight := secondsAfterMidnight / 60
		startTime := fmt.Sprintf("%02d:%02d:%02d", minutesAfterMidnight/60, minutesAfterMidnight%60, secondsAfterMidnight%60)
		tripDesc.StartTime = &startTime
	}

	if !nyctTripDesc.IsAssigned || nyctTripDesc.TrainID == nil {
		return nil
	}
	id := *nyctTripDesc.TrainID
	return &gtfsrt.VehicleDescriptor{ID: &id}
}

var bushwickMTrainStops = map[string]bool{
	"M11": true, "M12": true, "M13": true, "M14": true, "M16": true, "M18": true,
}

func fixMTrainPlatformsInBushwick(trip *gtfsrt.TripUpdate) {
	if trip.Trip.GetRouteID() != "M" {
		return
	}
	for i := range trip.StopTimeUpdates {
		stopID := trip.StopTimeUpdates[i].StopID
		if stopID == nil || len(*stopID) != 4 || !bushwickMTrainStops[(*stopID)[:3]] {
			continue
		}
		var fixed string
		switch (*stopID)[3] {
		case 'N':
			fixed = (*stopID)[:3] + "S"
		case 'S':
			fixed = (*stopID)[:3] + "N"
		default:
			continue
		}
		trip.StopTimeUpdates[i].StopID = &fixed
	}
}

func isStaleUnassignedTrip(isAssigned bool, stopTimes []gtfsrt.StopTimeUpdate, feedCreatedAt time.Time) bool {
	if isAssigned {
		return false
	}
	if len(stopTimes) == 0 {
		return true
	}
	stopTime := &stopTimes[0]
	firstTime := stopTime.GetDeparture().Time
	if firstTime == nil {
		firstTime = stopTime.GetArrival().Time
	}
	if firstTime == nil {
		return true
	}
	return firstTime.Before(feedCreatedAt)
}

// GetTrack returns the track of the stop time update, or nil if the update has no NYCT
// extension or the extension cannot be read.
func GetTrack(stopTimeUpdate *gtfsrt.StopTimeUpdate) *string {
	ext, err := ReadStopTimeUpdate(stopTimeUpdate)
	if err != nil {
		return nil
	}
	return ext.Track()
}
