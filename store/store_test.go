package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/merge"
	"github.com/jamespfennell/gtfsrt/store"
	"github.com/jamespfennell/gtfsrt/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func ptr[T any](t T) *T {
	return &t
}

func open(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "gtfsrt.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(source string, generation uint64) *merge.Snapshot {
	var extension []byte
	extension = protowire.AppendTag(extension, 1001, protowire.BytesType)
	extension = protowire.AppendString(extension, "nyct")
	entities := []gtfsrt.FeedEntity{
		{
			ID: "t1",
			Payload: &gtfsrt.TripUpdate{
				Trip: gtfsrt.TripDescriptor{
					TripID:  ptr("trip1"),
					Unknown: wire.UnknownFields{{Number: 1001, Type: protowire.BytesType, Raw: extension}},
				},
				StopTimeUpdates: []gtfsrt.StopTimeUpdate{
					{StopSequence: ptr(uint32(1)), Arrival: &gtfsrt.StopTimeEvent{Delay: ptr(time.Minute)}},
				},
			},
		},
		{
			ID: "v1",
			Payload: &gtfsrt.VehiclePosition{
				Position: &gtfsrt.Position{Latitude: 40.7, Longitude: -74},
			},
		},
	}
	return merge.NewSnapshot(source, generation, time.Unix(1700000000, 0).UTC(), entities)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	saved := snapshot("subway", 12)

	id, err := s.Save(ctx, saved)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	loaded, err := s.Load(ctx, "subway")
	require.NoError(t, err)
	assert.Equal(t, "subway", loaded.Source)
	assert.Equal(t, uint64(12), loaded.Generation)
	assert.True(t, saved.CreatedAt.Equal(loaded.CreatedAt), "CreatedAt = %s, want %s", loaded.CreatedAt, saved.CreatedAt)
	if diff := cmp.Diff(saved.Entities(), loaded.Entities(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("loaded entities (-saved +loaded):\n%s", diff)
	}
}

func TestSaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	first, err := s.Save(ctx, snapshot("subway", 1))
	require.NoError(t, err)
	second, err := s.Save(ctx, merge.NewSnapshot("subway", 2, time.Time{}, nil))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	loaded, err := s.Load(ctx, "subway")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Generation)
	assert.Equal(t, 0, loaded.Len())
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	for _, source := range []string{"subway", "bus"} {
		_, err := s.Save(ctx, snapshot(source, 1))
		require.NoError(t, err)
	}
	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bus", "subway"}, sources)
}

func TestLoadMissing(t *testing.T) {
	s := open(t)
	_, err := s.Load(context.Background(), "ferry")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRestoreIntoEngine(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	_, err := s.Save(ctx, snapshot("subway", 5))
	require.NoError(t, err)
	loaded, err := s.Load(ctx, "subway")
	require.NoError(t, err)

	e, err := merge.NewEngine()
	require.NoError(t, err)
	e.Restore(loaded)

	// Reapplying the same entities leaves them unchanged.
	snap := snapshot("subway", 0)
	result, err := e.Apply("subway", &gtfsrt.Realtime{
		Message: &gtfsrt.FeedMessage{Header: gtfsrt.FeedHeader{Version: "2.0"}, Entities: snap.Entities()},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "v1"}, result.Unchanged)
	assert.Empty(t, result.Added)
	assert.Equal(t, uint64(6), result.Generation)
}
