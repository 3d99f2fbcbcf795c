// Package merge maintains the entity table of each feed source as successive messages arrive.
//
// Writes to one source are serialized in the order Apply is called; reads never block and see
// the last complete snapshot. Sources are independent of each other.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/warnings"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoMessage is returned when Apply is called without a parsed message.
var ErrNoMessage = errors.New("no feed message")

// Result describes the changes made by one call to Apply. The id lists are sorted.
type Result struct {
	Generation uint64
	Added      []string
	Updated    []string
	Removed    []string
	Unchanged  []string
	// Warnings are the validation warnings of the applied message. For DIFFERENTIAL messages
	// they include a warning matching gtfsrt.ErrUnsupportedIncrementality.
	Warnings []warnings.RealtimeWarning
}

type Engine struct {
	logger      zerolog.Logger
	instruments *instruments

	mu      sync.Mutex
	sources map[string]*source
}

type source struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
}

type Option func(*options)

type options struct {
	logger zerolog.Logger
	meter  metric.Meter
}

// WithLogger sets the logger used to report rejected entities.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter sets the meter used to create the engine's instruments. By default the meter of the
// global OpenTelemetry meter provider is used.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

func NewEngine(opts ...Option) (*Engine, error) {
	o := options{
		logger: zerolog.Nop(),
		meter:  otel.Meter(meterName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Engine{
		logger:  o.logger.With().Str("component", "merge").Logger(),
		sources: map[string]*source{},
	}
	i, err := newInstruments(o.meter, e)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge metrics: %w", err)
	}
	e.instruments = i
	return e, nil
}

func (e *Engine) source(name string, create bool) *source {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sources[name]
	if !ok && create {
		s = &source{}
		s.snapshot.Store(emptySnapshot(name))
		e.sources[name] = s
	}
	return s
}

// Sources returns the names of the known sources, sorted.
func (e *Engine) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current snapshot of a source, or nil if nothing has been applied to it.
func (e *Engine) Snapshot(name string) *Snapshot {
	s := e.source(name, false)
	if s == nil {
		return nil
	}
	return s.snapshot.Load()
}

// Restore replaces the state of a source with a previously saved snapshot. Later calls to Apply
// continue from the snapshot's generation.
func (e *Engine) Restore(snapshot *Snapshot) {
	s := e.source(snapshot.Source, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := snapshot.clone()
	for _, entity := range restored.Entities() {
		restored.hashes[entity.ID] = hashEntity(&entity)
	}
	s.snapshot.Store(restored)
}

// Apply merges a parsed message into the entity table of a source.
//
// For FULL_DATASET messages the table is replaced by the message's entities. Entities rejected
// by validation keep their previous value rather than being removed. For DIFFERENTIAL messages
// each entity replaces the entity with the same id, and deleted entities are removed.
func (e *Engine) Apply(name string, rt *gtfsrt.Realtime) (Result, error) {
	if rt == nil || rt.Message == nil {
		return Result{}, fmt.Errorf("failed to apply message to source %s: %w", name, ErrNoMessage)
	}
	incrementality := rt.Message.Header.Incrementality
	if incrementality != gtfsrt.FullDataset && incrementality != gtfsrt.Differential {
		return Result{}, fmt.Errorf("failed to apply message to source %s: incrementality %s: %w",
			name, incrementality, gtfsrt.ErrUnsupportedIncrementality)
	}
	start := time.Now()

	s := e.source(name, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot.Load()
	var next *Snapshot
	var c changes
	if incrementality == gtfsrt.FullDataset {
		next, c = applyFullDataset(prev, rt)
	} else {
		next, c = applyDifferential(prev, rt)
	}
	next.Generation = prev.Generation + 1
	next.CreatedAt = rt.CreatedAt
	s.snapshot.Store(next)

	result := Result{
		Generation: next.Generation,
		Added:      c.sorted(c.added),
		Updated:    c.sorted(c.updated),
		Removed:    c.sorted(c.removed),
		Unchanged:  c.sorted(c.unchanged),
		Warnings:   rt.Warnings,
	}
	if incrementality == gtfsrt.Differential && !hasWarning(result.Warnings, gtfsrt.ErrUnsupportedIncrementality) {
		result.Warnings = append(result.Warnings, warnings.UnsupportedIncrementality{
			Location:       warnings.Location{At: "header.incrementality"},
			Incrementality: incrementality.String(),
		})
	}

	for _, id := range rt.Rejected {
		e.logger.Warn().Str("source", name).Str("entity_id", id).Msg("entity rejected, keeping previous value")
	}
	e.logger.Debug().
		Str("source", name).
		Uint64("generation", result.Generation).
		Int("added", len(result.Added)).
		Int("updated", len(result.Updated)).
		Int("removed", len(result.Removed)).
		Int("unchanged", len(result.Unchanged)).
		Msg("applied feed message")
	e.instruments.record(context.Background(), name, &result, incrementality.String(), len(rt.Rejected), time.Since(start).Seconds())
	return result, nil
}

func hasWarning(ws []warnings.RealtimeWarning, target error) bool {
	for _, w := range ws {
		if errors.Is(w, target) {
			return true
		}
	}
	return false
}

type changes struct {
	added, updated, removed, unchanged []string
}

func (changes) sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func (c *changes) put(prev, next *Snapshot, entity gtfsrt.FeedEntity) {
	d := hashEntity(&entity)
	old, existed := prev.hashes[entity.ID]
	switch {
	case !existed:
		c.added = append(c.added, entity.ID)
	case old == d:
		c.unchanged = append(c.unchanged, entity.ID)
	default:
		c.updated = append(c.updated, entity.ID)
	}
	next.put(entity, d)
}

func applyFullDataset(prev *Snapshot, rt *gtfsrt.Realtime) (*Snapshot, changes) {
	var c changes
	next := emptySnapshot(prev.Source)
	for _, entity := range rt.Message.Entities {
		// In a full dataset a deleted entity is simply absent.
		if entity.IsDeleted || entity.Payload == nil {
			continue
		}
		c.put(prev, next, entity)
	}
	for _, id := range rt.Rejected {
		if _, ok := next.hashes[id]; ok {
			continue
		}
		if entity, ok := prev.Entity(id); ok {
			next.put(entity, prev.hashes[id])
			c.unchanged = append(c.unchanged, id)
		}
	}
	for id := range prev.hashes {
		if _, ok := next.hashes[id]; !ok {
			c.removed = append(c.removed, id)
		}
	}
	return next, c
}

func applyDifferential(prev *Snapshot, rt *gtfsrt.Realtime) (*Snapshot, changes) {
	var c changes
	next := prev.clone()
	for _, entity := range rt.Message.Entities {
		if entity.IsDeleted {
			if next.remove(entity.ID) {
				c.removed = append(c.removed, entity.ID)
			}
			continue
		}
		if entity.Payload == nil {
			continue
		}
		c.put(prev, next, entity)
	}
	return next, c
}
