package httpapi

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"wisefido-followup/internal/models"
	"wisefido-followup/internal/notifier"
	"wisefido-followup/internal/pending"
	"wisefido-followup/internal/repository"
	"wisefido-followup/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var handlerNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) *Router {
	clock := func() time.Time { return handlerNow }
	logger := zap.NewNop()
	repo := repository.NewFollowUpRepository(repository.NewMemoryIncidentStore(5), clock, logger)
	sched := notifier.NewScheduler(notifier.NoopSurface{}, clock, logger)
	svc := service.NewFollowUpService(repo, sched, pending.NewService(repo, time.Hour, logger), clock, logger)

	router := NewRouter(logger)
	router.RegisterFollowUpRoutes(NewFollowUpHandler(svc, logger))
	return router
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "caregiver-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createIncident(t *testing.T, router http.Handler) *models.Incident {
	rec, env := doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents", map[string]any{
		"child_id":           "child-1",
		"child_label":        "Sam",
		"type":               "pain_medical",
		"severity":           9,
		"remedy":             "ibuprofen",
		"schedule_follow_up": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultSuccess, env.Code)

	var res service.CreateResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.True(t, res.NotificationsDegraded)
	return res.Incident
}

func TestCreateAndGetIncident(t *testing.T) {
	router := setupRouter(t)
	inc := createIncident(t, router)

	assert.Len(t, inc.FollowUpTimes, 3)
	assert.Equal(t, "caregiver-7", inc.LoggedBy)

	rec, env := doJSON(t, router, http.MethodGet, "/followup/api/v1/incidents/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Incident
	require.NoError(t, json.Unmarshal(env.Result, &got))
	assert.Equal(t, inc.ID, got.ID)
	assert.Equal(t, 0, got.NextFollowUpIndex)
}

func TestCreateIncident_Validation(t *testing.T) {
	router := setupRouter(t)

	rec, env := doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents", map[string]any{"severity": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ResultError, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/followup/api/v1/incidents", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordResponse_Flow(t *testing.T) {
	router := setupRouter(t)
	inc := createIncident(t, router)
	path := "/followup/api/v1/incidents/" + inc.ID + "/responses"

	rec, env := doJSON(t, router, http.MethodPost, path, map[string]any{"effectiveness": "improved", "target_index": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	var res repository.RecordResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, repository.OutcomeRecorded, res.Outcome)
	assert.True(t, res.HasMore)
	assert.Equal(t, 1, res.Incident.NextFollowUpIndex)
	assert.Equal(t, "caregiver-7", res.Incident.FollowUpResponses[0].RespondedBy)

	// replay of the same checkpoint is a benign no-op
	rec, env = doJSON(t, router, http.MethodPost, path, map[string]any{"effectiveness": "improved", "target_index": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, repository.OutcomeStaleIndex, res.Outcome)

	// no target_index answers whatever is due
	rec, env = doJSON(t, router, http.MethodPost, path, map[string]any{"effectiveness": "no_change"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, repository.OutcomeRecorded, res.Outcome)
	assert.Equal(t, 2, res.Incident.NextFollowUpIndex)

	rec, _ = doJSON(t, router, http.MethodPost, path, map[string]any{"effectiveness": "great"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, path, map[string]any{"effectiveness": "improved", "target_index": -3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordResponse_NotFound(t *testing.T) {
	router := setupRouter(t)

	rec, env := doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents/missing/responses", map[string]any{"effectiveness": "resolved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ResultError, env.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/followup/api/v1/incidents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestComplete_ThenResponseIsAlreadyCompleted(t *testing.T) {
	router := setupRouter(t)
	inc := createIncident(t, router)

	rec, env := doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents/"+inc.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var done models.Incident
	require.NoError(t, json.Unmarshal(env.Result, &done))
	assert.True(t, done.FollowUpCompleted)
	require.NotNil(t, done.CompletedBy)
	assert.Equal(t, "caregiver-7", *done.CompletedBy)

	rec, env = doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents/"+inc.ID+"/responses", map[string]any{"effectiveness": "resolved", "target_index": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var res repository.RecordResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, repository.OutcomeAlreadyCompleted, res.Outcome)
}

func TestGetPending(t *testing.T) {
	router := setupRouter(t)
	createIncident(t, router)

	rec, env := doJSON(t, router, http.MethodGet, "/followup/api/v1/pending?child_id=child-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary pending.Summary
	require.NoError(t, json.Unmarshal(env.Result, &summary))
	assert.Equal(t, 1, summary.UpcomingCount)
	assert.Equal(t, 0, summary.OverdueCount)

	rec, _ = doJSON(t, router, http.MethodGet, "/followup/api/v1/pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	router := setupRouter(t)
	createIncident(t, router)

	req := httptest.NewRequest(http.MethodGet, "/followup/api/v1/export?child_id=child-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "followup-child-1.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestExport_QuotedChildIDKeepsHeaderValid(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/followup/api/v1/export?child_id="+url.QueryEscape(`a"b; x=y`), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	kind, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", kind)
	assert.Equal(t, `followup-a"b; x=y.xlsx`, params["filename"])
	assert.NotContains(t, params, "x")
}

func TestRouting(t *testing.T) {
	router := setupRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/followup/api/v1/incidents", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/followup/api/v1/incidents/abc/complete", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/followup/api/v1/incidents/abc/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/followup/api/v1/incidents/a/b/c", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, env.Code)
}
