package allocation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/domain"
)

// ErrConstraintNotFound is returned when a stored constraint does not exist
var ErrConstraintNotFound = errors.New("constraint not found")

// StoredConstraint is a constraint plus its bookkeeping timestamps
type StoredConstraint struct {
	domain.Constraint
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository handles stored constraint database operations
// Database: tender.db (allocation_constraints table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new constraint repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// GetAll returns every stored constraint in descending priority, then id
func (r *Repository) GetAll() ([]StoredConstraint, error) {
	query := `
		SELECT id, kind, handler_id, value, priority, facility, scope, created_at, updated_at
		FROM allocation_constraints
		ORDER BY priority DESC, id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	constraints := make([]StoredConstraint, 0)
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constraints: %w", err)
	}

	return constraints, nil
}

// GetByHandler returns the stored constraints that target handlerID
func (r *Repository) GetByHandler(handlerID string) ([]StoredConstraint, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	var out []StoredConstraint
	for _, c := range all {
		if strings.EqualFold(c.HandlerID, handlerID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetByID returns one stored constraint
func (r *Repository) GetByID(id string) (*StoredConstraint, error) {
	query := `
		SELECT id, kind, handler_id, value, priority, facility, scope, created_at, updated_at
		FROM allocation_constraints
		WHERE id = ?
	`

	c, err := scanConstraint(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConstraintNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Active returns the stored constraints as plain domain constraints, ready for a run
func (r *Repository) Active() ([]domain.Constraint, error) {
	stored, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	constraints := make([]domain.Constraint, len(stored))
	for i, c := range stored {
		constraints[i] = c.Constraint
	}
	return constraints, nil
}

// Upsert validates and inserts or updates a constraint. A missing id is generated.
func (r *Repository) Upsert(c domain.Constraint) (*StoredConstraint, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate constraint: %w", err)
	}

	scope, err := json.Marshal(c.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constraint scope: %w", err)
	}

	now := time.Now().Unix()

	query := `
		INSERT INTO allocation_constraints (id, kind, handler_id, value, priority, facility, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			handler_id = excluded.handler_id,
			value = excluded.value,
			priority = excluded.priority,
			facility = excluded.facility,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, c.ID, string(c.Kind), c.HandlerID, c.Value, c.Priority, c.Facility, string(scope), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert constraint: %w", err)
	}

	r.log.Debug().
		Str("id", c.ID).
		Str("kind", string(c.Kind)).
		Str("handler", c.HandlerID).
		Float64("value", c.Value).
		Msg("Constraint upserted")

	return r.GetByID(c.ID)
}

// Delete removes a stored constraint
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM allocation_constraints WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete constraint: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Debug().
		Str("id", id).
		Int64("rows_affected", rowsAffected).
		Msg("Constraint deleted")

	if rowsAffected == 0 {
		return ErrConstraintNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConstraint(row rowScanner) (StoredConstraint, error) {
	var (
		c                            StoredConstraint
		kind, scope                  string
		createdAtUnix, updatedAtUnix sql.NullInt64
	)

	if err := row.Scan(
		&c.ID,
		&kind,
		&c.HandlerID,
		&c.Value,
		&c.Priority,
		&c.Facility,
		&scope,
		&createdAtUnix,
		&updatedAtUnix,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan constraint: %w", err)
	}

	c.Kind = domain.ConstraintKind(kind)
	if scope != "" {
		if err := json.Unmarshal([]byte(scope), &c.Scope); err != nil {
			return c, fmt.Errorf("failed to decode scope of constraint %s: %w", c.ID, err)
		}
	}

	// Convert Unix timestamps to time.Time
	if createdAtUnix.Valid {
		c.CreatedAt = time.Unix(createdAtUnix.Int64, 0).UTC()
	}
	if updatedAtUnix.Valid {
		c.UpdatedAt = time.Unix(updatedAtUnix.Int64, 0).UTC()
	}

	return c, nil
}
