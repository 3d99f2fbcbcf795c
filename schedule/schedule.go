// Package schedule reads the stop times of a GTFS static feed, to anchor realtime stop time
// updates to the scheduled stops of each trip.
package schedule

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jamespfennell/gtfsrt/csv"
	"github.com/jamespfennell/gtfsrt/stoptime"
	"github.com/rs/zerolog"
)

// ErrUnknownTrip is returned for trips that are not in the schedule.
var ErrUnknownTrip = errors.New("trip not in schedule")

type Stop struct {
	ID     string
	Name   string
	Parent *string
}

// StopTime is a row of stop_times.txt. Times are offsets from the start of the service day and
// may exceed 24 hours.
type StopTime struct {
	TripID    string
	StopID    string
	Sequence  uint32
	Arrival   *time.Duration
	Departure *time.Duration
}

type Static struct {
	Stops map[string]Stop

	trips map[string][]StopTime
}

type ParseStaticOptions struct {
	Logger *zerolog.Logger
}

func (opts ParseStaticOptions) logger() zerolog.Logger {
	if opts.Logger == nil {
		return zerolog.Nop()
	}
	return *opts.Logger
}

// ParseStatic reads stop_times.txt and, if present, stops.txt from a GTFS static zip archive.
// Rows with missing or malformed required columns are skipped and logged.
func ParseStatic(content []byte, opts ParseStaticOptions) (*Static, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open GTFS static archive: %w", err)
	}
	fileNameToFile := map[string]*zip.File{}
	for _, file := range reader.File {
		fileNameToFile[file.Name] = file
	}
	logger := opts.logger()
	result := &Static{Stops: map[string]Stop{}}

	if zipFile, ok := fileNameToFile["stops.txt"]; ok {
		file, err := openCsvFile(zipFile)
		if err != nil {
			return nil, err
		}
		result.Stops = parseStops(file, logger)
		if err := file.Close(); err != nil {
			return nil, err
		}
	}

	zipFile, ok := fileNameToFile["stop_times.txt"]
	if !ok {
		return nil, fmt.Errorf("no %q file in GTFS static feed", "stop_times.txt")
	}
	file, err := openCsvFile(zipFile)
	if err != nil {
		return nil, err
	}
	stopTimes, err := parseStopTimes(file, logger)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	result.trips = groupByTrip(stopTimes)
	return result, nil
}

// ParseStopTimes reads a stop_times.txt file on its own.
func ParseStopTimes(reader io.ReadCloser, opts ParseStaticOptions) (*Static, error) {
	file, err := csv.New("stop_times.txt", reader)
	if err != nil {
		return nil, err
	}
	stopTimes, err := parseStopTimes(file, opts.logger())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return &Static{Stops: map[string]Stop{}, trips: groupByTrip(stopTimes)}, nil
}

func openCsvFile(zipFile *zip.File) (*csv.File, error) {
	content, err := zipFile.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", zipFile.Name, err)
	}
	f, err := csv.New(zipFile.Name, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", zipFile.Name, err)
	}
	return f, nil
}

func parseStops(file *csv.File, logger zerolog.Logger) map[string]Stop {
	stops := map[string]Stop{}
	idColumn := file.RequiredColumn("stop_id")
	nameColumn := file.OptionalColumn("stop_name")
	parentColumn := file.OptionalColumn("parent_station")
	for file.NextRow() {
		stop := Stop{
			ID:   idColumn.Read(),
			Name: nameColumn.Read(),
		}
		if parent := parentColumn.Read(); parent != "" {
			stop.Parent = &parent
		}
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			logger.Warn().Int("row", file.RowNumber()).Strs("missing_keys", missingKeys).Msg("skipping stop")
			continue
		}
		stops[stop.ID] = stop
	}
	return stops
}

func parseStopTimes(file *csv.File, logger zerolog.Logger) ([]StopTime, error) {
	tripIDColumn := file.RequiredColumn("trip_id")
	stopIDColumn := file.RequiredColumn("stop_id")
	sequenceColumn := file.RequiredColumn("stop_sequence")
	arrivalColumn := file.OptionalColumn("arrival_time")
	departureColumn := file.OptionalColumn("departure_time")
	if missing := file.MissingRequiredColumns(); len(missing) > 0 {
		return nil, fmt.Errorf("%s is missing required columns %v", file.Name(), missing)
	}
	var stopTimes []StopTime
	for file.NextRow() {
		stopTime := StopTime{
			TripID:    tripIDColumn.Read(),
			StopID:    stopIDColumn.Read(),
			Sequence:  sequenceColumn.ReadUint32(),
			Arrival:   parseTimeOfDay(arrivalColumn.Read()),
			Departure: parseTimeOfDay(departureColumn.Read()),
		}
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			logger.Warn().Int("row", file.RowNumber()).Strs("missing_keys", missingKeys).Msg("skipping stop time")
			continue
		}
		// Only one of the two times is often given.
		if stopTime.Arrival == nil {
			stopTime.Arrival = stopTime.Departure
		}
		if stopTime.Departure == nil {
			stopTime.Departure = stopTime.Arrival
		}
		stopTimes = append(stopTimes, stopTime)
	}
	return stopTimes, nil
}

var timeOfDayRegex = regexp.MustCompile(`^\s*([0-9]{1,3}):([0-9]{2}):([0-9]{2})\s*$`)

func parseTimeOfDay(raw string) *time.Duration {
	match := timeOfDayRegex.FindStringSubmatch(raw)
	if match == nil {
		return nil
	}
	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	s, _ := strconv.Atoi(match[3])
	d := time.Duration((h*60+m)*60+s) * time.Second
	return &d
}

func groupByTrip(stopTimes []StopTime) map[string][]StopTime {
	trips := map[string][]StopTime{}
	for _, stopTime := range stopTimes {
		trips[stopTime.TripID] = append(trips[stopTime.TripID], stopTime)
	}
	for _, trip := range trips {
		sort.SliceStable(trip, func(i, j int) bool {
			return trip[i].Sequence < trip[j].Sequence
		})
	}
	return trips
}

// TripIDs returns the ids of the scheduled trips, sorted.
func (s *Static) TripIDs() []string {
	var ids []string
	for id := range s.trips {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopTimes returns the stop times of a trip in sequence order.
func (s *Static) StopTimes(tripID string) ([]StopTime, bool) {
	stopTimes, ok := s.trips[tripID]
	return stopTimes, ok
}

// StopsForTrip returns the stops of a trip without scheduled times. Use OnDate to also get
// the times.
func (s *Static) StopsForTrip(tripID string) ([]stoptime.ScheduledStop, error) {
	return s.scheduledStops(tripID, nil)
}

// OnDate returns a view of the schedule whose stops carry absolute times for the service day
// of the given date.
func (s *Static) OnDate(date time.Time) stoptime.Schedule {
	start := ServiceDayStart(date)
	return day{static: s, start: start}
}

type day struct {
	static *Static
	start  time.Time
}

func (d day) StopsForTrip(tripID string) ([]stoptime.ScheduledStop, error) {
	return d.static.scheduledStops(tripID, &d.start)
}

func (s *Static) scheduledStops(tripID string, start *time.Time) ([]stoptime.ScheduledStop, error) {
	stopTimes, ok := s.trips[tripID]
	if !ok {
		return nil, fmt.Errorf("trip %q: %w", tripID, ErrUnknownTrip)
	}
	stops := make([]stoptime.ScheduledStop, 0, len(stopTimes))
	for _, stopTime := range stopTimes {
		stop := stoptime.ScheduledStop{Sequence: stopTime.Sequence, StopID: stopTime.StopID}
		if start != nil {
			stop.Arrival = offset(*start, stopTime.Arrival)
			stop.Departure = offset(*start, stopTime.Departure)
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func offset(start time.Time, d *time.Duration) *time.Time {
	if d == nil {
		return nil
	}
	t := start.Add(*d)
	return &t
}

// ServiceDayStart returns the time that stop time offsets are measured from: noon minus twelve
// hours on the date, in the date's location. This differs from midnight on days when daylight
// saving time changes.
func ServiceDayStart(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, date.Location()).Add(-12 * time.Hour)
}
