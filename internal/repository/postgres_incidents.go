package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-followup/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// incidentsSchema incidents table; follow-up sequences live in JSONB columns
const incidentsSchema = `
CREATE TABLE IF NOT EXISTS incidents (
	incident_id                TEXT PRIMARY KEY,
	child_id                   TEXT NOT NULL,
	child_label                TEXT NOT NULL DEFAULT '',
	incident_type              TEXT NOT NULL,
	severity                   SMALLINT NOT NULL CHECK (severity BETWEEN 1 AND 10),
	remedy                     TEXT NOT NULL DEFAULT '',
	notes                      TEXT NOT NULL DEFAULT '',
	custom_label               TEXT NOT NULL DEFAULT '',
	logged_by                  TEXT NOT NULL DEFAULT '',
	follow_up_scheduled        BOOLEAN NOT NULL DEFAULT FALSE,
	follow_up_times            JSONB NOT NULL DEFAULT '[]',
	next_follow_up_index       INTEGER NOT NULL DEFAULT 0,
	follow_up_responses        JSONB NOT NULL DEFAULT '[]',
	follow_up_completed        BOOLEAN NOT NULL DEFAULT FALSE,
	next_follow_up_due         TIMESTAMPTZ,
	next_follow_up_description TEXT,
	last_follow_up_response    JSONB,
	last_follow_up_timestamp   TIMESTAMPTZ,
	follow_up_completed_at     TIMESTAMPTZ,
	completed_by               TEXT,
	version                    BIGINT NOT NULL DEFAULT 1,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_incidents_open_follow_up
	ON incidents (child_id, next_follow_up_due)
	WHERE follow_up_scheduled AND NOT follow_up_completed;
`

const incidentColumns = `
	incident_id,
	child_id,
	child_label,
	incident_type,
	severity,
	remedy,
	notes,
	custom_label,
	logged_by,
	follow_up_scheduled,
	follow_up_times,
	next_follow_up_index,
	follow_up_responses,
	follow_up_completed,
	next_follow_up_due,
	next_follow_up_description,
	last_follow_up_response,
	last_follow_up_timestamp,
	follow_up_completed_at,
	completed_by,
	version,
	created_at,
	updated_at`

// pq codes worth another attempt: serialization_failure, deadlock_detected
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

var errVersionMoved = errors.New("incident version moved")

// PostgresIncidentStore incidents table via lib/pq.
// Update locks the row with SELECT ... FOR UPDATE and writes back guarded by version.
type PostgresIncidentStore struct {
	db         *sql.DB
	logger     *zap.Logger
	maxRetries int
	retryWait  time.Duration
}

func NewPostgresIncidentStore(db *sql.DB, logger *zap.Logger, maxRetries int) *PostgresIncidentStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &PostgresIncidentStore{
		db:         db,
		logger:     logger,
		maxRetries: maxRetries,
		retryWait:  50 * time.Millisecond,
	}
}

// EnsureSchema creates the incidents table if missing
func (r *PostgresIncidentStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, incidentsSchema); err != nil {
		return fmt.Errorf("failed to ensure incidents schema: %w", err)
	}
	return nil
}

func (r *PostgresIncidentStore) Insert(ctx context.Context, inc *models.Incident) error {
	times, err := marshalArray(inc.FollowUpTimes)
	if err != nil {
		return err
	}
	responses, err := marshalArray(inc.FollowUpResponses)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO incidents (
			incident_id, child_id, child_label, incident_type, severity, remedy, notes,
			custom_label, logged_by, follow_up_scheduled, follow_up_times,
			next_follow_up_index, follow_up_responses, follow_up_completed,
			next_follow_up_due, next_follow_up_description, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		inc.ID,
		inc.ChildID,
		inc.ChildLabel,
		inc.Type,
		inc.Severity,
		inc.Remedy,
		inc.Notes,
		inc.CustomLabel,
		inc.LoggedBy,
		inc.FollowUpScheduled,
		times,
		inc.NextFollowUpIndex,
		responses,
		inc.FollowUpCompleted,
		inc.NextFollowUpDue,
		inc.NextFollowUpDescription,
		inc.CreatedAt,
		inc.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: duplicate incident_id %s", ErrInvalidIncident, inc.ID)
		}
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	inc.Version = 1
	return nil
}

func (r *PostgresIncidentStore) Get(ctx context.Context, incidentID string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1`
	inc, err := scanIncident(r.db.QueryRowContext(ctx, query, incidentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

func (r *PostgresIncidentStore) Update(ctx context.Context, incidentID string, fn Mutation) (*models.Incident, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		inc, err := r.updateOnce(ctx, incidentID, fn)
		if err == nil {
			return inc, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("Retrying incident update",
			zap.String("incident_id", incidentID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryWait * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("%w: incident_id=%s: %v", ErrConflict, incidentID, lastErr)
}

func (r *PostgresIncidentStore) updateOnce(ctx context.Context, incidentID string, fn Mutation) (*models.Incident, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1 FOR UPDATE`
	inc, err := scanIncident(tx.QueryRowContext(ctx, query, incidentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock incident: %w", err)
	}
	readVersion := inc.Version

	changed, err := fn(inc)
	if err != nil {
		return nil, err
	}
	if !changed {
		return inc, nil
	}

	responses, err := marshalArray(inc.FollowUpResponses)
	if err != nil {
		return nil, err
	}
	var last sql.NullString
	if inc.LastFollowUpResponse != nil {
		b, err := json.Marshal(inc.LastFollowUpResponse)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal last response: %w", err)
		}
		last = sql.NullString{String: string(b), Valid: true}
	}

	update := `
		UPDATE incidents SET
			next_follow_up_index = $2,
			follow_up_responses = $3,
			follow_up_completed = $4,
			next_follow_up_due = $5,
			next_follow_up_description = $6,
			last_follow_up_response = $7,
			last_follow_up_timestamp = $8,
			follow_up_completed_at = $9,
			completed_by = $10,
			updated_at = $11,
			version = version + 1
		WHERE incident_id = $1 AND version = $12
	`
	res, err := tx.ExecContext(ctx, update,
		inc.ID,
		inc.NextFollowUpIndex,
		responses,
		inc.FollowUpCompleted,
		inc.NextFollowUpDue,
		inc.NextFollowUpDescription,
		last,
		inc.LastFollowUpTimestamp,
		inc.FollowUpCompletedAt,
		inc.CompletedBy,
		inc.UpdatedAt,
		readVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update incident: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errVersionMoved
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit incident update: %w", err)
	}

	inc.Version = readVersion + 1
	return inc, nil
}

func (r *PostgresIncidentStore) ListOpen(ctx context.Context, childID string) ([]*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE follow_up_scheduled
		  AND NOT follow_up_completed
		  AND next_follow_up_index < jsonb_array_length(follow_up_times)
		  AND ($1 = '' OR child_id = $1)
		ORDER BY created_at ASC`
	return r.list(ctx, query, childID)
}

func (r *PostgresIncidentStore) ListByChild(ctx context.Context, childID string) ([]*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE child_id = $1 AND follow_up_scheduled
		ORDER BY created_at DESC`
	return r.list(ctx, query, childID)
}

func (r *PostgresIncidentStore) list(ctx context.Context, query string, args ...any) ([]*models.Incident, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var times, responses []byte
	var last []byte
	var due, lastTS, completedAt sql.NullTime
	var dueDesc, completedBy sql.NullString

	err := row.Scan(
		&inc.ID,
		&inc.ChildID,
		&inc.ChildLabel,
		&inc.Type,
		&inc.Severity,
		&inc.Remedy,
		&inc.Notes,
		&inc.CustomLabel,
		&inc.LoggedBy,
		&inc.FollowUpScheduled,
		&times,
		&inc.NextFollowUpIndex,
		&responses,
		&inc.FollowUpCompleted,
		&due,
		&dueDesc,
		&last,
		&lastTS,
		&completedAt,
		&completedBy,
		&inc.Version,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(times) > 0 {
		if err := json.Unmarshal(times, &inc.FollowUpTimes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal follow_up_times: %w", err)
		}
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &inc.FollowUpResponses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal follow_up_responses: %w", err)
		}
	}
	if len(last) > 0 {
		var resp models.Response
		if err := json.Unmarshal(last, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last_follow_up_response: %w", err)
		}
		inc.LastFollowUpResponse = &resp
	}
	if due.Valid {
		inc.NextFollowUpDue = &due.Time
	}
	if dueDesc.Valid {
		inc.NextFollowUpDescription = &dueDesc.String
	}
	if lastTS.Valid {
		inc.LastFollowUpTimestamp = &lastTS.Time
	}
	if completedAt.Valid {
		inc.FollowUpCompletedAt = &completedAt.Time
	}
	if completedBy.Valid {
		inc.CompletedBy = &completedBy.String
	}
	return &inc, nil
}

// marshalArray JSONB text, "[]" for nil slices
func marshalArray[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal jsonb array: %w", err)
	}
	return string(b), nil
}

func isRetryable(err error) bool {
	if errors.Is(err, errVersionMoved) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}
