package merge

import (
	"crypto/md5"
	"sort"
	"time"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/constants"
)

type digest [md5.Size]byte

func hashEntity(e *gtfsrt.FeedEntity) digest {
	h := md5.New()
	e.Hash(h)
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

// Snapshot is an immutable view of the entity table of one feed source. Snapshots are shared by
// concurrent readers, so the tables are only reachable through accessors that return copies.
type Snapshot struct {
	Source     string
	Generation uint64
	// CreatedAt is the header timestamp of the last message applied.
	CreatedAt time.Time

	tripUpdates map[string]gtfsrt.FeedEntity
	vehicles    map[string]gtfsrt.FeedEntity
	alerts      map[string]gtfsrt.FeedEntity
	hashes      map[string]digest
}

// NewSnapshot builds a snapshot from a list of entities. Deleted entities and entities without
// a payload are skipped; for repeated ids the last entity wins.
func NewSnapshot(source string, generation uint64, createdAt time.Time, entities []gtfsrt.FeedEntity) *Snapshot {
	s := emptySnapshot(source)
	s.Generation = generation
	s.CreatedAt = createdAt
	for _, e := range entities {
		if e.IsDeleted || e.Payload == nil {
			continue
		}
		s.put(e, hashEntity(&e))
	}
	return s
}

func emptySnapshot(source string) *Snapshot {
	return &Snapshot{
		Source:      source,
		tripUpdates: map[string]gtfsrt.FeedEntity{},
		vehicles:    map[string]gtfsrt.FeedEntity{},
		alerts:      map[string]gtfsrt.FeedEntity{},
		hashes:      map[string]digest{},
	}
}

func (s *Snapshot) table(kind constants.EntityKind) map[string]gtfsrt.FeedEntity {
	switch kind {
	case constants.TripUpdate:
		return s.tripUpdates
	case constants.Vehicle:
		return s.vehicles
	default:
		return s.alerts
	}
}

// Entity returns the entity with the given id, whatever its kind.
func (s *Snapshot) Entity(id string) (gtfsrt.FeedEntity, bool) {
	if s == nil {
		return gtfsrt.FeedEntity{}, false
	}
	for _, kind := range constants.EntityKinds {
		if e, ok := s.table(kind)[id]; ok {
			return e, true
		}
	}
	return gtfsrt.FeedEntity{}, false
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tripUpdates) + len(s.vehicles) + len(s.alerts)
}

// Entities returns every entity, ordered by kind and then by id.
func (s *Snapshot) Entities() []gtfsrt.FeedEntity {
	var out []gtfsrt.FeedEntity
	for _, kind := range constants.EntityKinds {
		out = append(out, s.EntitiesOf(kind)...)
	}
	return out
}

// EntitiesOf returns the entities of one kind, ordered by id. The slice is a copy.
func (s *Snapshot) EntitiesOf(kind constants.EntityKind) []gtfsrt.FeedEntity {
	if s == nil {
		return nil
	}
	table := s.table(kind)
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]gtfsrt.FeedEntity, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id])
	}
	return out
}

func (s *Snapshot) clone() *Snapshot {
	c := emptySnapshot(s.Source)
	c.Generation = s.Generation
	c.CreatedAt = s.CreatedAt
	for _, kind := range constants.EntityKinds {
		for id, e := range s.table(kind) {
			c.table(kind)[id] = e
		}
	}
	for id, d := range s.hashes {
		c.hashes[id] = d
	}
	return c
}

// put stores the entity, first removing any entity of another kind with the same id.
func (s *Snapshot) put(e gtfsrt.FeedEntity, d digest) {
	s.remove(e.ID)
	s.table(e.Payload.Kind())[e.ID] = e
	s.hashes[e.ID] = d
}

func (s *Snapshot) remove(id string) bool {
	if _, ok := s.hashes[id]; !ok {
		return false
	}
	for _, kind := range constants.EntityKinds {
		delete(s.table(kind), id)
	}
	delete(s.hashes, id)
	return true
}
