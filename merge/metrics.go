package merge

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jamespfennell/gtfsrt/merge"

type instruments struct {
	// applies counts messages applied, by source and incrementality.
	applies metric.Int64Counter
	// changes counts entity changes, by source and change type.
	changes metric.Int64Counter
	// rejected counts entities dropped because of Fatal violations.
	rejected metric.Int64Counter
	// duration measures the time taken to apply a message.
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter, e *Engine) (*instruments, error) {
	var i instruments
	var err error
	i.applies, err = meter.Int64Counter(
		"gtfsrt.merge.applies",
		metric.WithDescription("Number of feed messages applied"),
	)
	if err != nil {
		return nil, err
	}
	i.changes, err = meter.Int64Counter(
		"gtfsrt.merge.entity_changes",
		metric.WithDescription("Number of entity changes by type"),
	)
	if err != nil {
		return nil, err
	}
	i.rejected, err = meter.Int64Counter(
		"gtfsrt.merge.entities_rejected",
		metric.WithDescription("Number of entities rejected by validation"),
	)
	if err != nil {
		return nil, err
	}
	i.duration, err = meter.Float64Histogram(
		"gtfsrt.merge.apply.duration",
		metric.WithDescription("Duration of applying a feed message"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}
	_, err = meter.Int64ObservableGauge(
		"gtfsrt.merge.entities",
		metric.WithDescription("Number of entities in the current snapshot of each source"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, source := range e.Sources() {
				o.Observe(int64(e.Snapshot(source).Len()), metric.WithAttributes(attribute.String("source", source)))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (i *instruments) record(ctx context.Context, source string, r *Result, incrementality string, rejected int, seconds float64) {
	sourceAttr := attribute.String("source", source)
	i.applies.Add(ctx, 1, metric.WithAttributes(sourceAttr, attribute.String("incrementality", incrementality)))
	for _, c := range []struct {
		change string
		n      int
	}{
		{"added", len(r.Added)},
		{"updated", len(r.Updated)},
		{"removed", len(r.Removed)},
		{"unchanged", len(r.Unchanged)},
	} {
		if c.n > 0 {
			i.changes.Add(ctx, int64(c.n), metric.WithAttributes(sourceAttr, attribute.String("change", c.change)))
		}
	}
	if rejected > 0 {
		i.rejected.Add(ctx, int64(rejected), metric.WithAttributes(sourceAttr))
	}
	i.duration.Record(ctx, seconds, metric.WithAttributes(sourceAttr))
}
