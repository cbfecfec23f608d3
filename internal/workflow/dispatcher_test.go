package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qms-workers/internal/common/config"
	apperrors "qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/knowledge"
	"qms-workers/internal/models"
	"qms-workers/internal/notify"
	"qms-workers/internal/routing"
	"qms-workers/internal/workflow/storage"
)

// ==========================================
// Fakes
// ==========================================

type call struct {
	method string
	args   []interface{}
}

type fakeChangeRequests struct {
	calls   []call
	created []storage.ChangeRequest
	record  models.Record
	rows    []models.Record
	err     error
}

func (f *fakeChangeRequests) track(method string, args ...interface{}) {
	f.calls = append(f.calls, call{method: method, args: args})
}

func (f *fakeChangeRequests) Create(_ context.Context, cr storage.ChangeRequest) error {
	f.track("Create", cr.ID)
	if f.err == nil {
		f.created = append(f.created, cr)
	}
	return f.err
}

func (f *fakeChangeRequests) UpdateStatus(_ context.Context, id, status string) error {
	f.track("UpdateStatus", id, status)
	return f.err
}

func (f *fakeChangeRequests) UpdateReason(_ context.Context, id, reason string) error {
	f.track("UpdateReason", id, reason)
	return f.err
}

func (f *fakeChangeRequests) Get(_ context.Context, id string) (models.Record, error) {
	f.track("Get", id)
	return f.record, f.err
}

func (f *fakeChangeRequests) ListPendingApproval(_ context.Context) ([]models.Record, error) {
	f.track("ListPendingApproval")
	return f.rows, f.err
}

func (f *fakeChangeRequests) List(_ context.Context) ([]models.Record, error) {
	f.track("List")
	return f.rows, f.err
}

type fakeCorrectiveActions struct {
	calls   []call
	created []storage.CorrectiveAction
	record  models.Record
	rows    []models.Record
	err     error
}

func (f *fakeCorrectiveActions) Create(_ context.Context, ca storage.CorrectiveAction) error {
	f.calls = append(f.calls, call{"Create", []interface{}{ca.ID}})
	if f.err == nil {
		f.created = append(f.created, ca)
	}
	return f.err
}

func (f *fakeCorrectiveActions) UpdateStatus(_ context.Context, id, status string) error {
	f.calls = append(f.calls, call{"UpdateStatus", []interface{}{id, status}})
	return f.err
}

func (f *fakeCorrectiveActions) UpdateAnalysis(_ context.Context, id string, a storage.Analysis) error {
	f.calls = append(f.calls, call{"UpdateAnalysis", []interface{}{id, a}})
	return f.err
}

func (f *fakeCorrectiveActions) Get(_ context.Context, id string) (models.Record, error) {
	f.calls = append(f.calls, call{"Get", []interface{}{id}})
	return f.record, f.err
}

func (f *fakeCorrectiveActions) ListOverdue(_ context.Context) ([]models.Record, error) {
	f.calls = append(f.calls, call{"ListOverdue", nil})
	return f.rows, f.err
}

func (f *fakeCorrectiveActions) ListOpen(_ context.Context) ([]models.Record, error) {
	f.calls = append(f.calls, call{"ListOpen", nil})
	return f.rows, f.err
}

func (f *fakeCorrectiveActions) List(_ context.Context) ([]models.Record, error) {
	f.calls = append(f.calls, call{"List", nil})
	return f.rows, f.err
}

type fakeKnowledge struct {
	answer *knowledge.Answer
	err    error
	calls  int
}

func (f *fakeKnowledge) Answer(_ context.Context, _ string) (*knowledge.Answer, error) {
	f.calls++
	return f.answer, f.err
}

type fakeNotifier struct {
	events []notify.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

type fixture struct {
	changes   *fakeChangeRequests
	capas     *fakeCorrectiveActions
	knowledge *fakeKnowledge
	notifier  *fakeNotifier
	dispatch  *Dispatcher
}

var fixedNow = time.Date(2025, 12, 9, 14, 30, 0, 0, time.UTC)

func testDefaults() config.RecordDefaults {
	return config.RecordDefaults{
		Requester:       "unknown",
		Department:      "Quality Assurance",
		ChangeType:      "correction",
		Reason:          "Extracted from user query",
		AffectedProcess: "General",
		Priority:        "Medium",
		Severity:        "Major",
		DueDays:         30,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		changes:  &fakeChangeRequests{},
		capas:    &fakeCorrectiveActions{},
		notifier: &fakeNotifier{},
		knowledge: &fakeKnowledge{answer: &knowledge.Answer{
			Text:      "Per QA-8.5, corrective actions need a documented root cause [1].",
			Citations: []models.Citation{{Title: "QA-8.5 CAPA Procedure", URL: "https://qms/docs/qa-8.5"}},
		}},
	}
	f.dispatch = New(Deps{
		Rules:             routing.DefaultRules(),
		ChangeRequests:    f.changes,
		CorrectiveActions: f.capas,
		Knowledge:         f.knowledge,
		Notifier:          f.notifier,
		Defaults:          testDefaults(),
		IDs:               &storage.IDGenerator{Now: func() time.Time { return fixedNow }},
		Now:               func() time.Time { return fixedNow },
		Logger:            logger.NewTestLogger(t),
	})
	return f
}

func (f *fixture) run(t *testing.T, query, actor string) *models.WorkflowResult {
	t.Helper()
	res, err := f.dispatch.Dispatch(context.Background(), &Request{Query: query, Actor: actor})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (f *fixture) storageCalls() int {
	return len(f.changes.calls) + len(f.capas.calls)
}

// ==========================================
// Contract
// ==========================================

func TestDispatch_NilRequest(t *testing.T) {
	f := newFixture(t)
	res, err := f.dispatch.Dispatch(context.Background(), nil)
	assert.Nil(t, res)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestDispatch_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "   ", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, "invalid input", res.Error)
	assert.Zero(t, f.storageCalls())
	assert.Zero(t, f.knowledge.calls)
}

func TestHandle_ReturnsEnvelope(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch.Handle(context.Background(), "Show me change requests awaiting approval", "jane")
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, models.ActionListChangeRequestsPending, res.Action)

	empty := f.dispatch.Handle(context.Background(), "", "jane")
	require.NotNil(t, empty)
	assert.False(t, empty.Success)
}

// ==========================================
// Writes
// ==========================================

func TestDispatch_CreateChangeRequest(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Create change request for urgent ISO 7.3.5 labeling fix, notify qa@acme.com", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionCreateChangeRequest, res.Action)
	assert.Empty(t, res.Error)

	created, ok := res.Result.(models.CreatedRecord)
	require.True(t, ok)
	assert.Regexp(t, `^DCR-20251209-[0-9A-F]{8}$`, created.ID)
	assert.Equal(t, storage.ChangeRequestStatusDraft, created.Status)
	assert.Equal(t, "Created DCR: "+created.ID+". Next: Add documents and route for approval.", res.Message)

	require.Len(t, f.changes.created, 1)
	cr := f.changes.created[0]
	assert.Equal(t, "jane", cr.Requester)
	assert.Equal(t, "Create change request for urgent ISO 7.3.5 labeling fix, notify qa@acme.com", cr.Description)
	assert.Equal(t, "High", cr.Priority)
	assert.Equal(t, "Quality Assurance", cr.Department)
	assert.Equal(t, fixedNow, cr.RequestDate)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, notify.EventCreated, ev.Type)
	assert.Equal(t, created.ID, ev.EntityID)
	assert.Equal(t, []string{"qa@acme.com"}, ev.Recipients)
}

func TestDispatch_CreateTwiceYieldsDistinctIDs(t *testing.T) {
	f := newFixture(t)
	query := "Create DCR for label update"

	first := f.run(t, query, "jane")
	second := f.run(t, query, "jane")

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.NotEqual(t, first.Result.(models.CreatedRecord).ID, second.Result.(models.CreatedRecord).ID)
	assert.Len(t, f.changes.created, 2)
}

func TestDispatch_CreateCorrectiveAction(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Open a CAPA for the critical sterilization deviation", "")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionCreateCorrectiveAction, res.Action)

	require.Len(t, f.capas.created, 1)
	ca := f.capas.created[0]
	assert.Regexp(t, `^CAPA-20251209-[0-9A-F]{8}$`, ca.ID)
	assert.Equal(t, "unknown", ca.ReportedBy)
	assert.Equal(t, "Critical", ca.Severity)
	assert.Equal(t, storage.CorrectiveActionStatusOpen, ca.Status)
	require.NotNil(t, ca.DueDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), *ca.DueDate)
	assert.Equal(t, "Created CAPA: "+ca.ID+". Next: Add root cause analysis and actions.", res.Message)
}

func TestDispatch_UpdateCorrectiveActionStatus(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Update CAPA-20251209-980E3239 status to closed", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionUpdateCorrectiveAction, res.Action)
	assert.Equal(t, models.UpdatedRecord{
		ID:         "CAPA-20251209-980E3239",
		EntityType: models.EntityCorrectiveAction,
		Status:     "Closed",
	}, res.Result)
	assert.Equal(t, "Updated CAPA CAPA-20251209-980E3239 status to 'Closed'", res.Message)

	require.Len(t, f.capas.calls, 1)
	assert.Equal(t, call{"UpdateStatus", []interface{}{"CAPA-20251209-980E3239", "Closed"}}, f.capas.calls[0])
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventUpdated, f.notifier.events[0].Type)
}

func TestDispatch_UpdateChangeRequestStatus(t *testing.T) {
	tests := []struct {
		query  string
		status string
	}{
		{"Approve DCR-20251209-b5dd089e", "Approved"},
		{"Reject DCR-20251209-B5DD089E, missing risk file", "Rejected"},
		{"Update DCR-20251209-B5DD089E", "In Review"},
		{"dcr status approved for dcr-20251209-b5dd089e", "Approved"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f := newFixture(t)
			res := f.run(t, tt.query, "jane")

			require.True(t, res.Success, res.Error)
			require.Len(t, f.changes.calls, 1)
			assert.Equal(t, call{"UpdateStatus", []interface{}{"DCR-20251209-B5DD089E", tt.status}}, f.changes.calls[0])
		})
	}
}

func TestDispatch_MissingIdentifierSkipsStorage(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Approve DCR", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionUpdateChangeRequest, res.Action)
	assert.Equal(t, "change request id is required", res.Error)
	assert.Contains(t, res.Message, "DCR-")
	assert.Zero(t, f.storageCalls())
	assert.Empty(t, f.notifier.events)
}

func TestDispatch_RecordNotFound(t *testing.T) {
	f := newFixture(t)
	f.capas.err = apperrors.NewRecordNotFoundError("corrective action", "CAPA-20251209-980E3239")

	res := f.run(t, "Close CAPA-20251209-980E3239", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, "corrective action CAPA-20251209-980E3239 not found", res.Error)
	assert.Empty(t, f.notifier.events)
}

func TestDispatch_StorageFailureIsSanitized(t *testing.T) {
	f := newFixture(t)
	f.changes.err = errors.New(`pq: password authentication failed for user "qms_admin"`)

	res := f.run(t, "Create DCR for label update", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionCreateChangeRequest, res.Action)
	assert.Equal(t, "storage operation failed", res.Error)
	assert.NotContains(t, res.Message, "qms_admin")
	assert.NotContains(t, res.Error, "pq:")
	assert.Empty(t, f.notifier.events)
}

func TestDispatch_NotificationFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = apperrors.NewNotificationSendFailedError("email", errors.New("throttled"))

	res := f.run(t, "Create DCR for label update", "jane")
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
}

// ==========================================
// Reads
// ==========================================

func TestDispatch_ListPendingChangeRequests(t *testing.T) {
	f := newFixture(t)
	f.changes.rows = []models.Record{
		{"dcr_id": "DCR-20251209-B5DD089E", "status": "In Review"},
		{"dcr_id": "DCR-20251208-00AA11BB", "status": "Draft"},
	}

	res := f.run(t, "Show me change requests awaiting approval", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionListChangeRequestsPending, res.Action)
	assert.Equal(t, models.RecordList{Items: f.changes.rows, Count: 2}, res.Result)
	assert.Equal(t, "Found 2 DCRs awaiting approval", res.Message)
	assert.Equal(t, []call{{method: "ListPendingApproval"}}, f.changes.calls)
	assert.Empty(t, f.notifier.events)
}

func TestDispatch_ListOverdueEmpty(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Which CAPAs are overdue?", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionListCorrectiveActionsOverdue, res.Action)
	assert.Equal(t, models.RecordList{Items: []models.Record{}, Count: 0}, res.Result)
	assert.Equal(t, "Found 0 overdue CAPA items", res.Message)
}

func TestDispatch_ChangeRequestStatusUppercasesID(t *testing.T) {
	f := newFixture(t)
	f.changes.record = models.Record{"dcr_id": "DCR-20251209-B5DD089E", "status": "In Review"}

	res := f.run(t, "Get status of dcr-20251209-b5dd089e", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionGetChangeRequestStatus, res.Action)
	assert.Equal(t, "DCR DCR-20251209-B5DD089E status: In Review", res.Message)
	assert.Equal(t, []call{{"Get", []interface{}{"DCR-20251209-B5DD089E"}}}, f.changes.calls)
}

func TestDispatch_CorrectiveActionStatus(t *testing.T) {
	f := newFixture(t)
	f.capas.record = models.Record{
		"case":      models.Record{"capa_id": "CAPA-20251209-980E3239", "status": "In Progress"},
		"actions":   []models.Record{{"action_id": 1}, {"action_id": 2}},
		"approvals": []models.Record{},
	}

	res := f.run(t, "Get status of CAPA-20251209-980E3239", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "CAPA CAPA-20251209-980E3239: In Progress (2 actions)", res.Message)
}

func TestDispatch_StatusNotFoundIsEmptyResult(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Get status of CAPA-20251209-980E3239", "jane")

	require.True(t, res.Success)
	assert.Equal(t, models.Record{}, res.Result)
	assert.Equal(t, "CAPA CAPA-20251209-980E3239 not found", res.Message)
}

func TestDispatch_ReadStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.capas.err = errors.New("dial tcp 10.0.0.7:5432: connect: connection refused")

	res := f.run(t, "Show open CAPAs", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionListCorrectiveActionsOpen, res.Action)
	assert.Equal(t, "storage operation failed", res.Error)
	assert.NotContains(t, res.Message, "10.0.0.7")
}

func TestDispatch_AmbiguousRead(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Tell me about capa handling", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionNone, res.Action)
	assert.Equal(t, "could not determine specific action", res.Error)
	assert.Zero(t, f.storageCalls())
}

// ==========================================
// Knowledge
// ==========================================

func TestDispatch_KnowledgeQuery(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "What is the procedure for document control?", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionAnswerKnowledgeQuery, res.Action)
	ans, ok := res.Result.(models.KnowledgeAnswer)
	require.True(t, ok)
	assert.Equal(t, f.knowledge.answer.Text, ans.Answer)
	assert.Len(t, ans.Citations, 1)
	assert.Zero(t, f.storageCalls())
}

func TestDispatch_GreetingFallsBackToKnowledge(t *testing.T) {
	f := newFixture(t)
	f.knowledge.answer = &knowledge.Answer{Text: knowledge.NotFoundAnswer}

	res := f.run(t, "hello there", "jane")

	require.True(t, res.Success)
	ans := res.Result.(models.KnowledgeAnswer)
	assert.Equal(t, knowledge.NotFoundAnswer, ans.Answer)
	assert.NotNil(t, ans.Citations)
	assert.Empty(t, ans.Citations)
	assert.Equal(t, "No matching documentation found", res.Message)
}

func TestDispatch_KnowledgeFailure(t *testing.T) {
	f := newFixture(t)
	f.knowledge.err = apperrors.NewKnowledgeRetrievalFailedError(errors.New("es: 503 from node-2"))

	res := f.run(t, "What is the procedure for document control?", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, "knowledge retrieval failed", res.Error)
	assert.NotContains(t, res.Message, "node-2")
}

func TestDispatch_KnowledgeNotConfigured(t *testing.T) {
	d := New(Deps{Rules: routing.DefaultRules(), Logger: logger.NewTestLogger(t)})
	res, err := d.Dispatch(context.Background(), &Request{Query: "hello there"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.ActionAnswerKnowledgeQuery, res.Action)
}

// ==========================================
// Hybrid
// ==========================================

func TestDispatch_HybridUpdatesExistingCorrectiveAction(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Draft a response for capa-20251209-980e3239", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionDraftCorrectiveActionResponse, res.Action)
	assert.Equal(t, 1, f.knowledge.calls)

	require.Len(t, f.capas.calls, 1)
	assert.Equal(t, call{"UpdateAnalysis", []interface{}{
		"CAPA-20251209-980E3239",
		storage.Analysis{CorrectiveAction: f.knowledge.answer.Text},
	}}, f.capas.calls[0])

	outcome, ok := res.Result.(models.DraftOutcome)
	require.True(t, ok)
	assert.Equal(t, f.knowledge.answer.Text, outcome.Answer)
	assert.Equal(t, models.UpdatedRecord{
		ID:         "CAPA-20251209-980E3239",
		EntityType: models.EntityCorrectiveAction,
		Field:      "corrective_action",
	}, outcome.Record)
	assert.Equal(t, "Drafted response into CAPA CAPA-20251209-980E3239", res.Message)
}

func TestDispatch_HybridCreatesChangeRequest(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "Draft a DCR response about labeling", "jane")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.ActionDraftChangeRequestResponse, res.Action)
	require.Len(t, f.changes.created, 1)
	assert.Equal(t, f.knowledge.answer.Text, f.changes.created[0].Reason)
	assert.Equal(t, "Draft a DCR response about labeling", f.changes.created[0].Description)

	outcome := res.Result.(models.DraftOutcome)
	created, ok := outcome.Record.(models.CreatedRecord)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(created.ID, "DCR-20251209-"))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventCreated, f.notifier.events[0].Type)
}

func TestDispatch_HybridSkipsWriteWhenUngrounded(t *testing.T) {
	f := newFixture(t)
	f.knowledge.answer = &knowledge.Answer{Text: knowledge.NotFoundAnswer, Citations: []models.Citation{}}

	res := f.run(t, "Draft a response for CAPA-20251209-980E3239", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, models.ActionDraftCorrectiveActionResponse, res.Action)
	assert.Zero(t, f.storageCalls())
}

func TestDispatch_HybridSkipsWriteWhenRetrievalFails(t *testing.T) {
	f := newFixture(t)
	f.knowledge.err = errors.New("context deadline exceeded")

	res := f.run(t, "Draft a response for CAPA-20251209-980E3239", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, "answer generation failed", res.Error)
	assert.Zero(t, f.storageCalls())
}

func TestDispatch_HybridStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.capas.err = errors.New("relation \"capa_cases\" does not exist")

	res := f.run(t, "Draft a response for CAPA-20251209-980E3239", "jane")

	assert.False(t, res.Success)
	assert.Equal(t, "storage operation failed", res.Error)
	assert.Equal(t, 1, f.knowledge.calls)
	assert.Empty(t, f.notifier.events)
}
