package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/config"
	"github.com/jamespfennell/gtfsrt/extensions"
	"github.com/jamespfennell/gtfsrt/extensions/nyct"
	"github.com/jamespfennell/gtfsrt/extensions/nyctbustrips"
	"github.com/jamespfennell/gtfsrt/internal/logging"
	"github.com/jamespfennell/gtfsrt/journal"
	"github.com/jamespfennell/gtfsrt/merge"
	"github.com/jamespfennell/gtfsrt/schedule"
	"github.com/jamespfennell/gtfsrt/schema"
	"github.com/jamespfennell/gtfsrt/stoptime"
	"github.com/jamespfennell/gtfsrt/store"
	"github.com/jamespfennell/gtfsrt/text"
	"github.com/jamespfennell/gtfsrt/validate"
	"github.com/jamespfennell/gtfsrt/warnings"
	"github.com/jamespfennell/gtfsrt/wire"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "gtfsrt",
		Usage: "decode, validate and merge GTFS Realtime feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides the configured log level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "decode",
				Usage: "parse a GTFS Realtime message and print its entities",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "print additional data about each trip and vehicle",
					},
					&cli.StringFlag{
						Name:  "extension",
						Usage: "GTFS Realtime extension to use: nyct, nyctbustrips",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "name of a configured source whose extension and timezone are used",
					},
				},
				ArgsUsage: "path",
				Action:    decode,
			},
			{
				Name:      "validate",
				Usage:     "list the validation warnings of a GTFS Realtime message",
				ArgsUsage: "path",
				Action:    validateMessage,
			},
			{
				Name:      "roundtrip",
				Usage:     "parse and re-encode a GTFS Realtime message, checking nothing is lost",
				ArgsUsage: "path",
				Action:    roundtrip,
			},
			{
				Name:  "merge",
				Usage: "apply GTFS Realtime messages in order to the entity table of a source",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "name of the configured source",
						Required: true,
					},
				},
				ArgsUsage: "[path...]",
				Action:    mergeMessages,
			},
			{
				Name:      "predict",
				Usage:     "print the predicted stop times of every trip in a GTFS Realtime message",
				Flags:     scheduleFlags,
				ArgsUsage: "path",
				Action:    predict,
			},
			{
				Name:  "journal",
				Usage: "record the predictions of trips over a sequence of messages as CSV files",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "output directory",
						Value: ".",
					},
				}, scheduleFlags...),
				ArgsUsage: "[path...]",
				Action:    journalMessages,
			},
			{
				Name:  "translate",
				Usage: "print the alert texts of a GTFS Realtime message in one language",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "lang",
						Usage: "requested language",
					},
					&cli.StringFlag{
						Name:  "default-lang",
						Usage: "language of untagged translations",
					},
				},
				ArgsUsage: "path",
				Action:    translate,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// env is the configuration and logger shared by the commands.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

func setup(ctx *cli.Context) (*env, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if level := ctx.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logger, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closer: closer}, nil
}

func (e *env) Close() {
	if err := e.closer.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close log file:", err)
	}
}

// source returns the configured source named by the --source flag, or a zero source.
func (e *env) source(ctx *cli.Context) (config.Source, error) {
	name := ctx.String("source")
	if name == "" {
		return config.Source{}, nil
	}
	s, ok := e.cfg.Source(name)
	if !ok && len(e.cfg.Sources) == 0 {
		return config.Source{Name: name}, nil
	}
	if !ok {
		return config.Source{}, fmt.Errorf("no source named %q in the configuration", name)
	}
	return s, nil
}

func extensionFor(name string, s config.Source) (extensions.Extension, error) {
	switch name {
	case "":
		return extensions.NoExtension(), nil
	case "nyct":
		return nyct.Extension(s.NYCT), nil
	case "nyctbustrips":
		return nyctbustrips.Extension(), nil
	}
	return nil, fmt.Errorf("unknown extension %q", name)
}

func readArg(ctx *cli.Context) ([]byte, error) {
	args := ctx.Args()
	if args.Len() == 0 {
		return nil, fmt.Errorf("a path to the GTFS Realtime message was not provided")
	}
	path := args.First()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return b, nil
}

// parse parses the message and applies the extension of the source, or the one named by the
// --extension flag.
func (e *env) parse(ctx *cli.Context, b []byte, s config.Source) (*gtfsrt.Realtime, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	extName := s.Extension
	if ctx.IsSet("extension") {
		extName = ctx.String("extension")
	}
	ext, err := extensionFor(extName, s)
	if err != nil {
		return nil, err
	}
	realtime, err := gtfsrt.ParseRealtime(b, &gtfsrt.ParseRealtimeOptions{
		Timezone: loc,
		Logger:   &e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	skipped, err := extensions.Apply(realtime, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to apply extension %s: %w", extName, err)
	}
	if len(skipped) > 0 {
		e.logger.Debug().Strs("entity_ids", skipped).Msg("extension skipped trips")
	}
	return realtime, nil
}

func decode(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := e.source(ctx)
	if err != nil {
		return err
	}
	b, err := readArg(ctx)
	if err != nil {
		return err
	}
	realtime, err := e.parse(ctx, b, s)
	if err != nil {
		return err
	}
	header := realtime.Message.Header
	fmt.Printf("Version %s  Incrementality %s  Created at %s\n", header.Version, header.Incrementality, realtime.CreatedAt)
	var trips, vehicles, alerts []*gtfsrt.FeedEntity
	for i := range realtime.Message.Entities {
		entity := &realtime.Message.Entities[i]
		switch entity.Payload.(type) {
		case *gtfsrt.TripUpdate:
			trips = append(trips, entity)
		case *gtfsrt.VehiclePosition:
			vehicles = append(vehicles, entity)
		case *gtfsrt.Alert:
			alerts = append(alerts, entity)
		}
	}
	fmt.Printf("%d trips:\n", len(trips))
	for _, entity := range trips {
		fmt.Printf("- %s\n", formatTrip(entity, 2, ctx.Bool("verbose")))
	}
	fmt.Printf("%d vehicles:\n", len(vehicles))
	for _, entity := range vehicles {
		fmt.Printf("- %s\n", formatVehicle(entity, 2))
	}
	fmt.Printf("%d alerts:\n", len(alerts))
	for _, entity := range alerts {
		fmt.Printf("- %s\n", formatAlert(entity, 2, s.DefaultLanguage))
	}
	if len(realtime.Rejected) > 0 {
		fmt.Printf("%d rejected entities: %v\n", len(realtime.Rejected), realtime.Rejected)
	}
	return nil
}

func validateMessage(ctx *cli.Context) error {
	b, err := readArg(ctx)
	if err != nil {
		return err
	}
	m, err := wire.UnmarshalPartial(b, schema.GTFSRealtime().MustMessage(schema.FeedMessage))
	if err != nil {
		return err
	}
	report := validate.Validate(m)
	var fatal int
	for _, w := range report.Warnings {
		if w.Severity() == warnings.Fatal {
			fatal++
		}
		fmt.Println(formatWarning(w))
	}
	fmt.Printf("%d warnings, %d fatal\n", len(report.Warnings), fatal)
	if report.MessageRejected() {
		return fmt.Errorf("message rejected: %w", report.Fatal()[0])
	}
	return nil
}

func roundtrip(ctx *cli.Context) error {
	b, err := readArg(ctx)
	if err != nil {
		return err
	}
	first, err := gtfsrt.ParseRealtime(b, nil)
	if err != nil {
		return err
	}
	out, err := gtfsrt.Marshal(first.Message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	second, err := gtfsrt.ParseRealtime(out, nil)
	if err != nil {
		return fmt.Errorf("failed to parse re-encoded message: %w", err)
	}
	if len(first.Message.Entities) != len(second.Message.Entities) {
		return fmt.Errorf("entity count changed from %d to %d", len(first.Message.Entities), len(second.Message.Entities))
	}
	var changed []string
	for i := range first.Message.Entities {
		before, after := &first.Message.Entities[i], &second.Message.Entities[i]
		if hashOf(before) != hashOf(after) {
			changed = append(changed, before.ID)
		}
	}
	fmt.Printf("Input %d bytes, output %d bytes, byte-identical: %t\n", len(b), len(out), bytes.Equal(b, out))
	if len(changed) > 0 {
		return fmt.Errorf("entities changed by re-encoding: %v", changed)
	}
	fmt.Printf("All %d entities survived re-encoding\n", len(first.Message.Entities))
	return nil
}

func mergeMessages(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := e.source(ctx)
	if err != nil {
		return err
	}
	engine, err := merge.NewEngine(merge.WithLogger(e.logger))
	if err != nil {
		return err
	}

	var db *store.SQLite
	if e.cfg.Store.Path != "" {
		db, err = store.Open(ctx.Context, e.cfg.Store.Path, e.logger)
		if err != nil {
			return err
		}
		defer db.Close()
		snapshot, err := db.Load(ctx.Context, s.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			engine.Restore(snapshot)
			e.logger.Info().Str("source", s.Name).Uint64("generation", snapshot.Generation).Int("entities", snapshot.Len()).Msg("restored snapshot")
		}
	}

	paths := s.Files
	if ctx.Args().Len() > 0 {
		paths = ctx.Args().Slice()
	}
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		realtime, err := e.parse(ctx, b, s)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		result, err := engine.Apply(s.Name, realtime)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s: %s\n", path, formatResult(result))
	}

	snapshot := engine.Snapshot(s.Name)
	if snapshot == nil {
		return fmt.Errorf("no messages for source %s", s.Name)
	}
	fmt.Printf("Source %s at generation %d has %d entities\n", s.Name, snapshot.Generation, snapshot.Len())
	if db != nil {
		id, err := db.Save(ctx.Context, snapshot)
		if err != nil {
			return err
		}
		e.logger.Info().Str("snapshot_id", id).Msg("saved snapshot")
	}
	return nil
}

// scheduleFor loads the static schedule named by the --schedule flag or the source, if any, and
// returns the service date named by the --date flag.
func (e *env) scheduleFor(ctx *cli.Context, s config.Source) (*schedule.Static, time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, time.Time{}, err
	}
	date := time.Now().In(loc)
	if raw := ctx.String("date"); raw != "" {
		date, err = time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
		}
	}
	path := s.StaticGTFS
	if ctx.IsSet("schedule") {
		path = ctx.String("schedule")
	}
	if path == "" {
		return nil, date, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	static, err := schedule.ParseStatic(content, schedule.ParseStaticOptions{Logger: &e.logger})
	if err != nil {
		return nil, time.Time{}, err
	}
	return static, date, nil
}

// scheduledStops returns the scheduled stops of the trip, or nil if they are unknown and must
// be taken from the update itself.
func scheduledStops(static *schedule.Static, date time.Time, loc *time.Location, tu *gtfsrt.TripUpdate) ([]stoptime.ScheduledStop, error) {
	if static == nil {
		return nil, nil
	}
	if d, ok := tu.Trip.ParseStartDate(loc); ok {
		date = d
	}
	stops, err := static.OnDate(date).StopsForTrip(tu.Trip.GetTripID())
	if errors.Is(err, schedule.ErrUnknownTrip) {
		return nil, nil
	}
	return stops, err
}

var scheduleFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "schedule",
		Usage: "path to a GTFS static archive; without it only stops in the feed are predicted",
	},
	&cli.StringFlag{
		Name:  "date",
		Usage: "service date (YYYY-MM-DD) of trips without a start date; defaults to today",
	},
	&cli.StringFlag{
		Name:  "source",
		Usage: "name of a configured source whose extension, timezone and schedule are used",
	},
}

func predict(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := e.source(ctx)
	if err != nil {
		return err
	}
	static, date, err := e.scheduleFor(ctx, s)
	if err != nil {
		return err
	}
	loc, _ := s.Location()
	b, err := readArg(ctx)
	if err != nil {
		return err
	}
	realtime, err := e.parse(ctx, b, s)
	if err != nil {
		return err
	}
	for i := range realtime.Message.Entities {
		tu := realtime.Message.Entities[i].GetTripUpdate()
		if tu == nil {
			continue
		}
		stops, err := scheduledStops(static, date, loc, tu)
		if err != nil {
			return err
		}
		predictions, err := stoptime.Resolve(stops, tu)
		if err != nil {
			e.logger.Warn().Err(err).Str("trip_id", tu.Trip.GetTripID()).Msg("failed to resolve stop times")
			continue
		}
		fmt.Printf("- %s\n", formatPredictions(tu, predictions, 2))
	}
	return nil
}

func journalMessages(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := e.source(ctx)
	if err != nil {
		return err
	}
	static, date, err := e.scheduleFor(ctx, s)
	if err != nil {
		return err
	}
	loc, _ := s.Location()
	paths := s.Files
	if ctx.Args().Len() > 0 {
		paths = ctx.Args().Slice()
	}

	tracker := stoptime.NewTracker()
	j := journal.New(loc)
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		realtime, err := e.parse(ctx, b, s)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		active := map[string]bool{}
		for i := range realtime.Message.Entities {
			entity := &realtime.Message.Entities[i]
			tu := entity.GetTripUpdate()
			if tu == nil {
				continue
			}
			stops, err := scheduledStops(static, date, loc, tu)
			if err != nil {
				return err
			}
			state, err := tracker.Observe(entity.ID, stops, tu)
			if err != nil {
				e.logger.Warn().Err(err).Str("entity_id", entity.ID).Msg("failed to resolve stop times")
				continue
			}
			active[entity.ID] = true
			j.Observe(realtime.CreatedAt, entity.ID, tu, state.Predictions)
		}
		for _, trip := range j.Trips {
			if !active[trip.TripUID] {
				tracker.Forget(trip.TripUID)
			}
		}
		j.MarkPast(realtime.CreatedAt, active)
	}

	export, err := j.ExportToCsv()
	if err != nil {
		return err
	}
	dir := ctx.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, content := range map[string][]byte{
		"trips.csv":      export.TripsCsv,
		"stop_times.csv": export.StopTimesCsv,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("Wrote %d trips to %s\n", len(j.Trips), dir)
	return nil
}

func translate(ctx *cli.Context) error {
	b, err := readArg(ctx)
	if err != nil {
		return err
	}
	realtime, err := gtfsrt.ParseRealtime(b, nil)
	if err != nil {
		return err
	}
	lang, def := ctx.String("lang"), ctx.String("default-lang")
	for i := range realtime.Message.Entities {
		entity := &realtime.Message.Entities[i]
		alert := entity.GetAlert()
		if alert == nil {
			continue
		}
		header, err := text.Resolve(alert.Header, lang, def)
		if errors.Is(err, text.ErrNoTranslationAvailable) {
			header = "<no translation>"
		}
		fmt.Printf("%s: %s\n", entity.ID, header)
		if description := text.ResolveOr(alert.Description, lang, def, ""); description != "" {
			fmt.Printf("  %s\n", description)
		}
	}
	return nil
}
