package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"qms-workers/internal/models"
	"qms-workers/internal/routing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ==========================
// classify
// ==========================

func TestClassify(t *testing.T) {
	tests := []struct {
		query        string
		wantType     models.QueryType
		wantRule     string
		wantEntry    models.Action
		wantResolved bool
		wantStorage  bool
	}{
		{"Create change request for ISO 7.3.5", models.QueryTypeWorkflowWrite, "change_request_create", models.ActionCreateChangeRequest, true, true},
		{"Which CAPAs are overdue?", models.QueryTypeWorkflowRead, "overdue", models.ActionListCorrectiveActionsOverdue, true, true},
		{"Draft a response for CAPA-20251209-980E3239", models.QueryTypeHybrid, "draft_response", models.ActionDraftCorrectiveActionResponse, true, false},
		{"Tell me about capa handling", models.QueryTypeWorkflowRead, "workflow_mention", models.ActionNone, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := classify(routing.DefaultRules(), tt.query)
			assert.Equal(t, tt.wantType, got.QueryType)
			assert.Equal(t, tt.wantRule, got.Rule)
			assert.Equal(t, tt.wantEntry, got.Action.Action)
			assert.Equal(t, tt.wantResolved, got.Resolved)
			assert.Equal(t, tt.wantStorage, got.Storage)
			assert.Empty(t, got.Rules)
		})
	}
}

func TestClassifyCmd_PrintsJSON(t *testing.T) {
	out, err := run(t, "classify", "Which", "CAPAs", "are", "overdue?")
	require.NoError(t, err)

	var got Classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, models.QueryTypeWorkflowRead, got.QueryType)
	assert.Equal(t, "Which CAPAs are overdue?", got.Action.RawQuery)
}

func TestClassifyCmd_PrintsRules(t *testing.T) {
	out, err := run(t, "classify", "--rules", "Show", "open", "CAPAs")
	require.NoError(t, err)

	var got Classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, routing.NewClassifier(routing.DefaultRules()).Rules(), got.Rules)
	assert.Equal(t, "change_request_create", got.Rules[0])
	assert.Equal(t, "listing_with_status", got.Rule)
}

func TestClassifyCmd_RequiresQuery(t *testing.T) {
	_, err := run(t, "classify")
	assert.Error(t, err)
}

// ==========================
// registry
// ==========================

func TestRegistryValidate_Embedded(t *testing.T) {
	out, err := run(t, "registry", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 activities)")
}

func TestRegistryList(t *testing.T) {
	out, err := run(t, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "qms-workflow-query")
	assert.Contains(t, out, "qms-knowledge-query")
}

func TestRegistryValidate_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0.0","activities":[{"id":"x"}]}`), 0o600))

	_, err := run(t, "registry", "validate", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry validation failed")
}

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	_, err := run(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps must be positive")
}
