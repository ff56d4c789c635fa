package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/engine"
	"github.com/oneprompteu/oneprompt/internal/handler"
	"github.com/oneprompteu/oneprompt/internal/model"
	"github.com/oneprompteu/oneprompt/internal/repository"
)

// MockService implements handler.ExecutionService without a real engine.
type MockService struct {
	CapturedReq engine.Request
	ReturnRes   engine.Result
	ReturnErr   error

	Runs    []model.Run
	RunByID *model.Run
}

func (m *MockService) Execute(ctx context.Context, req engine.Request) (engine.Result, error) {
	m.CapturedReq = req
	if m.ReturnErr != nil {
		return engine.Result{}, m.ReturnErr
	}
	return m.ReturnRes, nil
}

func (m *MockService) Libraries() engine.LibrariesReport {
	return engine.LibrariesReport{OK: true, HelperFunctions: []string{"fetch_artifact(path)"}}
}

func (m *MockService) ListRuns(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	return m.Runs, m.ReturnErr
}

func (m *MockService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if m.RunByID == nil {
		return nil, apperror.NotFound("run", id)
	}
	return m.RunByID, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	t.Run("successful execution", func(t *testing.T) {
		resultText := "42"
		mock := &MockService{
			ReturnRes: engine.Result{OK: true, Output: "hello\n", Result: &resultText},
		}
		h := handler.NewExecuteHandler(mock, testLogger())

		body := `{"code":"print('hello'); 42","timeout":5,"session_id":"s1","run_id":"r1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()

		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res engine.Result
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.OK)
		assert.Equal(t, "hello\n", res.Output)

		assert.Equal(t, "print('hello'); 42", mock.CapturedReq.Code)
		assert.Equal(t, 5, mock.CapturedReq.TimeoutSeconds)
		assert.Equal(t, "s1", mock.CapturedReq.SessionID)
		assert.Equal(t, "r1", mock.CapturedReq.RunID)
	})

	t.Run("sandbox failures are 200 with error payload", func(t *testing.T) {
		mock := &MockService{
			ReturnRes: engine.Result{
				OK: false,
				Error: &engine.ErrorRecord{
					Kind:       engine.KindValidation,
					Message:    "code failed security validation",
					Violations: []string{"blocked module: 'fs' is not permitted"},
				},
			},
		}
		h := handler.NewExecuteHandler(mock, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"code":"require('fs')"}`))
		rr := httptest.NewRecorder()

		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res engine.Result
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.False(t, res.OK)
		assert.Equal(t, engine.KindValidation, res.Error.Kind)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockService{}, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"code":`))
		rr := httptest.NewRecorder()

		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("service validation error is 400", func(t *testing.T) {
		mock := &MockService{ReturnErr: apperror.ValidationFailed("code", "code cannot be empty")}
		h := handler.NewExecuteHandler(mock, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"code":""}`))
		rr := httptest.NewRecorder()

		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var res handler.ErrorResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "validation_error", res.Error)
	})
}

func TestLibrariesHandler_HandleList(t *testing.T) {
	h := handler.NewLibrariesHandler(&MockService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/libraries", nil)
	rr := httptest.NewRecorder()

	h.HandleList(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var report engine.LibrariesReport
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&report))
	assert.True(t, report.OK)
	assert.NotEmpty(t, report.HelperFunctions)
}

func TestRunsHandler(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		mock := &MockService{Runs: []model.Run{{ID: "r1"}, {ID: "r2"}}}
		h := handler.NewRunsHandler(mock, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
		rr := httptest.NewRecorder()

		h.HandleList(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res struct {
			Runs  []model.Run `json:"runs"`
			Count int         `json:"count"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, 2, res.Count)
	})

	t.Run("get missing run is 404", func(t *testing.T) {
		h := handler.NewRunsHandler(&MockService{}, testLogger())

		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", "nope")
		req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()

		h.HandleGet(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
