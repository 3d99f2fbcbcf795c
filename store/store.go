// Package store persists merge snapshots in SQLite so a process can resume where it left off.
//
// Each entity is stored as a single-entity encoded feed message, so unknown and extension
// fields survive a save and load.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/merge"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by Load when no snapshot has been saved for the source.
var ErrNotFound = errors.New("no saved snapshot")

type SQLite struct {
	conn    *sql.DB
	logger  zerolog.Logger
	writeMu sync.Mutex
}

// Open opens the database at path, creating the schema if needed. Use ":memory:" for a
// throwaway database.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has one writer; a single connection also keeps an in-memory database alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s := &SQLite{conn: conn, logger: logger.With().Str("component", "store").Logger()}
	s.logger.Debug().Str("path", path).Msg("opened snapshot store")
	return s, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Save replaces the stored snapshot of the snapshot's source. It returns the id of the new
// snapshot row.
func (s *SQLite) Save(ctx context.Context, snapshot *merge.Snapshot) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	header := gtfsrt.FeedHeader{Version: "2.0"}
	if !snapshot.CreatedAt.IsZero() {
		header.Timestamp = &snapshot.CreatedAt
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entities WHERE snapshot_id IN (SELECT snapshot_id FROM snapshots WHERE source = ?)",
		snapshot.Source,
	); err != nil {
		return "", fmt.Errorf("failed to delete previous entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE source = ?", snapshot.Source); err != nil {
		return "", fmt.Errorf("failed to delete previous snapshot: %w", err)
	}

	snapshotID := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (snapshot_id, source, generation, created_at_utc, saved_at_utc) VALUES (?, ?, ?, ?, ?)",
		snapshotID,
		snapshot.Source,
		int64(snapshot.Generation),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO entities (snapshot_id, entity_id, kind, message) VALUES (?, ?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("failed to prepare entity statement: %w", err)
	}
	defer stmt.Close()
	entities := snapshot.Entities()
	for i := range entities {
		entity := &entities[i]
		b, err := entity.Marshal(header)
		if err != nil {
			return "", fmt.Errorf("failed to encode entity %s: %w", entity.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, entity.ID, string(entity.Payload.Kind()), b); err != nil {
			return "", fmt.Errorf("failed to insert entity %s: %w", entity.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	s.logger.Debug().
		Str("source", snapshot.Source).
		Str("snapshot_id", snapshotID).
		Uint64("generation", snapshot.Generation).
		Int("entities", len(entities)).
		Msg("saved snapshot")
	return snapshotID, nil
}

// Load returns the stored snapshot of a source.
func (s *SQLite) Load(ctx context.Context, source string) (*merge.Snapshot, error) {
	var snapshotID, createdAt string
	var generation int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT snapshot_id, generation, created_at_utc FROM snapshots WHERE source = ?",
		source,
	).Scan(&snapshotID, &generation, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", source, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot of source %s: %w", source, err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot time %q: %w", createdAt, err)
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT entity_id, message FROM entities WHERE snapshot_id = ? ORDER BY entity_id",
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()
	var entities []gtfsrt.FeedEntity
	for rows.Next() {
		var id string
		var b []byte
		if err := rows.Scan(&id, &b); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		rt, err := gtfsrt.ParseRealtime(b, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
		}
		if len(rt.Message.Entities) != 1 {
			return nil, fmt.Errorf("entity %s decoded to %d entities", id, len(rt.Message.Entities))
		}
		entities = append(entities, rt.Message.Entities[0])
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	return merge.NewSnapshot(source, uint64(generation), created, entities), nil
}

// Sources returns the sources with a saved snapshot.
func (s *SQLite) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT source FROM snapshots ORDER BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()
	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}
