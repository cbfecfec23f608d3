package workflowquery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qms-workers/internal/common/config"
	apperrors "qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/models"
	"qms-workers/internal/workflow"
)

// ==========================
// Mock Dispatcher
// ==========================

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req *workflow.Request) (*models.WorkflowResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowResult), args.Error(1)
}

func createTestHandler(t *testing.T, d Dispatcher) *Handler {
	t.Helper()
	h, err := NewHandler(&Config{Enabled: true, MaxJobsActive: 1, Timeout: 5 * time.Second}, d, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

// ==========================
// Configuration
// ==========================

func TestConfigFromWorker(t *testing.T) {
	cfg := ConfigFromWorker(config.WorkerConfig{Enabled: true, MaxJobsActive: 8, Timeout: 15000})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8, cfg.MaxJobsActive)
	assert.Equal(t, 15*time.Second, cfg.Timeout)

	cfg = ConfigFromWorker(config.WorkerConfig{})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewHandler_InvalidConfig(t *testing.T) {
	_, err := NewHandler(&Config{MaxJobsActive: 1}, &MockDispatcher{}, logger.NewNoOpLogger())
	assert.Error(t, err)
}

// ==========================
// Input Validation
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, &MockDispatcher{})

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		query   string
	}{
		{"valid", `{"query":"List DCRs","actor":"jane","requestId":"r-1"}`, false, "List DCRs"},
		{"extra process variables", `{"query":"List DCRs","processStage":"intake"}`, false, "List DCRs"},
		{"missing query", `{"actor":"jane"}`, true, ""},
		{"empty query", `{"query":""}`, true, ""},
		{"wrong type", `{"query":42}`, true, ""},
		{"not json", `query=List DCRs`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.ParseInput([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.query, input.Query)
		})
	}
}

// ==========================
// Execution
// ==========================

func TestHandler_Execute_PassesEnvelopeThrough(t *testing.T) {
	d := new(MockDispatcher)
	result := models.Succeeded(models.ActionListChangeRequestsPending,
		models.RecordList{Items: []models.Record{}, Count: 0}, "Found 0 DCRs awaiting approval")

	d.On("Dispatch", mock.Anything, &workflow.Request{
		Query: "Show me change requests awaiting approval",
		Actor: "jane",
	}).Return(result, nil)

	h := createTestHandler(t, d)
	out, err := h.Execute(context.Background(), &Input{
		Query:     "Show me change requests awaiting approval",
		Actor:     "jane",
		RequestID: "req-42",
	})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.ActionListChangeRequestsPending, out.Action)
	assert.Equal(t, "req-42", out.RequestID)
	d.AssertExpectations(t)
}

func TestHandler_Execute_FailedEnvelopeIsNotAnError(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(models.Failed(models.ActionUpdateChangeRequest, "Please include the change request id", "change request id is required"), nil)

	h := createTestHandler(t, d)
	out, err := h.Execute(context.Background(), &Input{Query: "Approve DCR"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "change request id is required", out.Error)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &vars))
	assert.Equal(t, false, vars["success"])
	assert.Equal(t, "update_change_request", vars["action"])
	assert.NotContains(t, vars, "requestId")
}

func TestHandler_Execute_DispatcherError(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	h := createTestHandler(t, d)
	_, err := h.Execute(context.Background(), &Input{Query: "List DCRs"})
	assert.EqualError(t, err, "boom")
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := createTestHandler(t, &MockDispatcher{})
	_, err := h.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
