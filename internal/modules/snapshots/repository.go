// Package snapshots stores baseline allocations that later runs are traced against.
package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tender/internal/domain"
)

// ErrNotFound is returned when a baseline snapshot does not exist
var ErrNotFound = errors.New("baseline snapshot not found")

// Info describes a stored snapshot without its payload
type Info struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	CapturedAt time.Time `json:"captured_at"`
	Groups     int       `json:"group_count"`
	Units      int       `json:"unit_count"`
	Duplicates int       `json:"duplicate_count"`
}

// Repository handles baseline snapshot database operations
// Database: tender.db (baseline_snapshots table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Create stores a snapshot. Snapshots are immutable; storing an existing id fails.
func (r *Repository) Create(snapshot *domain.BaselineSnapshot, duplicates int) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}

	payload, err := msgpack.Marshal(snapshot.Groups())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", snapshot.ID(), err)
	}

	query := `
		INSERT INTO baseline_snapshots (id, label, captured_at, group_count, unit_count, duplicate_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		snapshot.ID(),
		snapshot.Label(),
		snapshot.CapturedAt().UnixMilli(),
		snapshot.Len(),
		snapshot.UnitCount(),
		duplicates,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snapshot.ID(), err)
	}

	r.log.Debug().
		Str("id", snapshot.ID()).
		Int("groups", snapshot.Len()).
		Int("bytes", len(payload)).
		Msg("Snapshot stored")

	return nil
}

// GetByID loads a snapshot with its groups
func (r *Repository) GetByID(id string) (*domain.BaselineSnapshot, error) {
	query := `
		SELECT id, label, captured_at, payload
		FROM baseline_snapshots
		WHERE id = ?
	`
	return r.load(r.db.QueryRow(query, id))
}

// Latest loads the most recently captured snapshot
func (r *Repository) Latest() (*domain.BaselineSnapshot, error) {
	query := `
		SELECT id, label, captured_at, payload
		FROM baseline_snapshots
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`
	return r.load(r.db.QueryRow(query))
}

// List returns snapshot metadata, newest first
func (r *Repository) List() ([]Info, error) {
	query := `
		SELECT id, label, captured_at, group_count, unit_count, duplicate_count
		FROM baseline_snapshots
		ORDER BY captured_at DESC, id DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		var (
			info       Info
			capturedAt int64
		)
		if err := rows.Scan(&info.ID, &info.Label, &capturedAt, &info.Groups, &info.Units, &info.Duplicates); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.CapturedAt = time.UnixMilli(capturedAt).UTC()
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return infos, nil
}

// Delete removes a snapshot
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM baseline_snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.log.Debug().Str("id", id).Msg("Snapshot deleted")
	return nil
}

func (r *Repository) load(row *sql.Row) (*domain.BaselineSnapshot, error) {
	var (
		id, label  string
		capturedAt int64
		payload    []byte
	)
	if err := row.Scan(&id, &label, &capturedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	var groups []domain.AllocationResult
	if err := msgpack.Unmarshal(payload, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}

	return domain.NewBaselineSnapshot(id, label, time.UnixMilli(capturedAt).UTC(), groups), nil
}
