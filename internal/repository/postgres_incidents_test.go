package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"wisefido-followup/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testColumns = []string{
	"incident_id", "child_id", "child_label", "incident_type", "severity", "remedy", "notes",
	"custom_label", "logged_by", "follow_up_scheduled", "follow_up_times", "next_follow_up_index",
	"follow_up_responses", "follow_up_completed", "next_follow_up_due", "next_follow_up_description",
	"last_follow_up_response", "last_follow_up_timestamp", "follow_up_completed_at", "completed_by",
	"version", "created_at", "updated_at",
}

func setupPostgresStore(t *testing.T) (*PostgresIncidentStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresIncidentStore(db, zap.NewNop(), 3)
	store.retryWait = time.Millisecond
	return store, mock
}

func openIncidentRow(t *testing.T, base time.Time, nextIndex int, version int64) []driver.Value {
	cps := threeCheckpoints(base)
	times, err := json.Marshal(cps)
	require.NoError(t, err)

	responses := []models.Response{}
	for i := 0; i < nextIndex; i++ {
		responses = append(responses, models.Response{
			Effectiveness:   models.EffectivenessImproved,
			Timestamp:       cps[i].Timestamp,
			ResponseIndex:   i,
			IntervalMinutes: cps[i].IntervalMinutes,
		})
	}
	respJSON, err := json.Marshal(responses)
	require.NoError(t, err)

	return []driver.Value{
		"inc-1", "child-1", "Sam", models.IncidentTypePainMedical, int64(9), "ibuprofen", "", "",
		"", true, string(times), int64(nextIndex),
		string(respJSON), false, cps[nextIndex].Timestamp, cps[nextIndex].Description,
		nil, nil, nil, nil,
		version, base, base,
	}
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM incidents WHERE incident_id = \$1`).
		WithArgs("inc-1").
		WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 1, 2)...))

	inc, err := store.Get(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, "child-1", inc.ChildID)
	assert.Equal(t, 9, inc.Severity)
	assert.Len(t, inc.FollowUpTimes, 3)
	assert.Len(t, inc.FollowUpResponses, 1)
	assert.Equal(t, 1, inc.NextFollowUpIndex)
	require.NotNil(t, inc.NextFollowUpDue)
	assert.True(t, inc.NextFollowUpDue.Equal(base.Add(120*time.Minute)))
	assert.Nil(t, inc.LastFollowUpResponse)
	assert.Nil(t, inc.CompletedBy)
	assert.Equal(t, int64(2), inc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectQuery(`FROM incidents WHERE incident_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(testColumns))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDuplicate(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectExec(`INSERT INTO incidents`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Insert(context.Background(), &models.Incident{ID: "inc-1", ChildID: "child-1", Severity: 3})
	assert.ErrorIs(t, err, ErrInvalidIncident)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertWritesEmptyArrays(t *testing.T) {
	store, mock := setupPostgresStore(t)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO incidents`).
		WithArgs("inc-1", "child-1", "", models.IncidentTypeMood, 3, "", "", "", "",
			false, "[]", 0, "[]", false, nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inc := &models.Incident{ID: "inc-1", ChildID: "child-1", Type: models.IncidentTypeMood, Severity: 3, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Insert(context.Background(), inc))
	assert.Equal(t, int64(1), inc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLocksAndGuardsVersion(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("inc-1").
		WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 0, 1)...))
	mock.ExpectExec(`UPDATE incidents SET`).
		WithArgs("inc-1", 1, sqlmock.AnyArg(), false, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inc, err := store.Update(context.Background(), "inc-1", func(inc *models.Incident) (bool, error) {
		inc.FollowUpResponses = append(inc.FollowUpResponses, models.Response{Effectiveness: models.EffectivenessImproved})
		inc.NextFollowUpIndex++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inc.Version)
	assert.Equal(t, 1, inc.NextFollowUpIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNoChangeRollsBack(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("inc-1").
		WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 1, 4)...))
	mock.ExpectRollback()

	inc, err := store.Update(context.Background(), "inc-1", func(*models.Incident) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), inc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRetriesSerializationFailure(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("inc-1").
		WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 0, 1)...))
	mock.ExpectExec(`UPDATE incidents SET`).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("inc-1").
		WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 0, 1)...))
	mock.ExpectExec(`UPDATE incidents SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	inc, err := store.Update(context.Background(), "inc-1", func(inc *models.Incident) (bool, error) {
		calls++
		inc.NextFollowUpIndex++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), inc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateVersionMovedExhaustsRetries(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("inc-1").
			WillReturnRows(sqlmock.NewRows(testColumns).AddRow(openIncidentRow(t, base, 0, 1)...))
		mock.ExpectExec(`UPDATE incidents SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
	}

	_, err := store.Update(context.Background(), "inc-1", func(inc *models.Incident) (bool, error) {
		inc.NextFollowUpIndex++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotFound(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(testColumns))
	mock.ExpectRollback()

	_, err := store.Update(context.Background(), "missing", func(*models.Incident) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOpen(t *testing.T) {
	store, mock := setupPostgresStore(t)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`NOT follow_up_completed`).
		WithArgs("child-1").
		WillReturnRows(sqlmock.NewRows(testColumns).
			AddRow(openIncidentRow(t, base, 0, 1)...).
			AddRow(openIncidentRow(t, base, 2, 3)...))

	incidents, err := store.ListOpen(context.Background(), "child-1")
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, 2, incidents[1].NextFollowUpIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS incidents`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
