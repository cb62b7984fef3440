package optimization

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRunNotFound is returned when a stored run does not exist
var ErrRunNotFound = errors.New("allocation run not found")

// DefaultListLimit bounds List when the caller passes a non-positive limit
const DefaultListLimit = 50

// Repository handles allocation run database operations
// Database: tender.db (allocation_runs table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "optimization").Logger(),
	}
}

// Save stores a completed run
func (r *Repository) Save(run *RunResult) error {
	payload, err := msgpack.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params of run %s: %w", run.ID, err)
	}

	var baselineID sql.NullString
	if run.BaselineID != "" {
		baselineID = sql.NullString{String: run.BaselineID, Valid: true}
	}

	query := `
		INSERT INTO allocation_runs (
			id, created_at, baseline_id, strategy, params, group_count, unit_count,
			diagnostic_count, overflow_groups, duration_ms, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		run.ID,
		run.CreatedAt.UnixMilli(),
		baselineID,
		string(run.Params.Strategy),
		string(params),
		run.Stats.Groups,
		run.Stats.Units,
		len(run.Diagnostics),
		run.Stats.OverflowGroups,
		run.Stats.DurationMs,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	r.log.Debug().
		Str("id", run.ID).
		Int("groups", run.Stats.Groups).
		Int("bytes", len(payload)).
		Msg("Run stored")

	return nil
}

// GetByID loads a complete run
func (r *Repository) GetByID(id string) (*RunResult, error) {
	var payload []byte
	err := r.db.QueryRow("SELECT payload FROM allocation_runs WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	var run RunResult
	if err := msgpack.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// List returns up to limit runs, newest first
func (r *Repository) List(limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, created_at, baseline_id, strategy, group_count, unit_count,
			diagnostic_count, overflow_groups, duration_ms
		FROM allocation_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	infos := make([]RunInfo, 0)
	for rows.Next() {
		var (
			info       RunInfo
			createdAt  int64
			baselineID sql.NullString
		)
		if err := rows.Scan(
			&info.ID,
			&createdAt,
			&baselineID,
			&info.Strategy,
			&info.GroupCount,
			&info.UnitCount,
			&info.DiagnosticCount,
			&info.OverflowGroups,
			&info.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.CreatedAt = time.UnixMilli(createdAt).UTC()
		info.BaselineID = baselineID.String
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return infos, nil
}

// DeleteOlderThan removes runs created before cutoff and returns how many went
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM allocation_runs WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned old runs")
	}
	return deleted, nil
}
