// Package workflow turns a free-text request into exactly one workflow
// operation and reports the outcome as a WorkflowResult envelope.
//
// Dispatch classifies the request, resolves the concrete action and runs it
// against the change request and corrective action stores, the knowledge
// agent, or both for hybrid requests. Collaborator failures never escape as
// errors: they are logged in full and surface as a failed envelope with a
// sanitized message.
package workflow

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"qms-workers/internal/common/config"
	"qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/common/observability"
	"qms-workers/internal/knowledge"
	"qms-workers/internal/models"
	"qms-workers/internal/notify"
	"qms-workers/internal/routing"
	"qms-workers/internal/workflow/storage"
)

// ChangeRequestStore is the change request repository.
type ChangeRequestStore interface {
	Create(ctx context.Context, cr storage.ChangeRequest) error
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateReason(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (models.Record, error)
	ListPendingApproval(ctx context.Context) ([]models.Record, error)
	List(ctx context.Context) ([]models.Record, error)
}

// CorrectiveActionStore is the corrective action repository.
type CorrectiveActionStore interface {
	Create(ctx context.Context, ca storage.CorrectiveAction) error
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateAnalysis(ctx context.Context, id string, a storage.Analysis) error
	Get(ctx context.Context, id string) (models.Record, error)
	ListOverdue(ctx context.Context) ([]models.Record, error)
	ListOpen(ctx context.Context) ([]models.Record, error)
	List(ctx context.Context) ([]models.Record, error)
}

// Knowledge answers a question from the document index.
type Knowledge interface {
	Answer(ctx context.Context, question string) (*knowledge.Answer, error)
}

// Notifier receives an event after every successful write.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// Request is one caller query. Actor identifies the authenticated caller and
// becomes the requester of created records.
type Request struct {
	Query string `json:"query"`
	Actor string `json:"actor"`
}

// Deps are the dispatcher collaborators. Knowledge, Notifier and
// Observability are optional.
type Deps struct {
	Rules             routing.Rules
	ChangeRequests    ChangeRequestStore
	CorrectiveActions CorrectiveActionStore
	Knowledge         Knowledge
	Notifier          Notifier
	Defaults          config.RecordDefaults
	IDs               *storage.IDGenerator
	Now               func() time.Time
	Observability     *observability.Observability
	Logger            logger.Logger
}

// Dispatcher holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	classifier *routing.Classifier
	resolver   *routing.Resolver
	rules      routing.Rules
	changes    ChangeRequestStore
	capas      CorrectiveActionStore
	knowledge  Knowledge
	notifier   Notifier
	defaults   config.RecordDefaults
	ids        *storage.IDGenerator
	now        func() time.Time
	obs        *observability.Observability
	logger     logger.Logger
}

func New(deps Deps) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	ids := deps.IDs
	if ids == nil {
		ids = storage.NewIDGenerator()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		classifier: routing.NewClassifier(deps.Rules),
		resolver:   routing.NewResolver(deps.Rules),
		rules:      deps.Rules,
		changes:    deps.ChangeRequests,
		capas:      deps.CorrectiveActions,
		knowledge:  deps.Knowledge,
		notifier:   deps.Notifier,
		defaults:   deps.Defaults,
		ids:        ids,
		now:        now,
		obs:        deps.Observability,
		logger:     log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Dispatch runs req and always returns an envelope. The error is non-nil
// only when req itself is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*models.WorkflowResult, error) {
	if req == nil {
		return nil, errors.NewInvalidInputError("request is required")
	}

	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return d.fail(models.ActionNone, "Please provide a request to process",
			errors.NewInvalidInputError("query is empty")), nil
	}

	queryType, rule := d.classifier.Explain(query)
	desc := d.resolver.Resolve(query)

	ctx, span := d.obs.StartSpan(ctx, "workflow.dispatch",
		attribute.String("qms.query_type", queryType.String()),
		attribute.String("qms.action", string(desc.Action)),
	)
	defer span.End()

	d.logger.Info("request routed", map[string]interface{}{
		"queryType": queryType,
		"rule":      rule,
		"action":    desc.Action,
		"entityId":  desc.EntityID,
		"query":     logger.Truncate(query, 200),
	})

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = d.defaults.Requester
	}
	if actor == "" {
		actor = "unknown"
	}

	var result *models.WorkflowResult
	switch queryType {
	case models.QueryTypeKnowledgeBase:
		result = d.answer(ctx, query)
	case models.QueryTypeWorkflowRead:
		result = d.read(ctx, desc)
	case models.QueryTypeWorkflowWrite:
		result = d.write(ctx, desc, actor)
	case models.QueryTypeHybrid:
		result = d.hybrid(ctx, desc, actor)
	default:
		result = d.fail(desc.Action, "Could not determine what to do with this request",
			errors.NewClassificationAmbiguousError("unknown query type "+queryType.String()))
	}

	metrics.RequestsTotal.WithLabelValues(queryType.String(), string(result.Action),
		strconv.FormatBool(result.Success)).Inc()
	metrics.DispatchDuration.WithLabelValues(queryType.String()).Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.Bool("qms.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}

	d.logger.Info("request dispatched", map[string]interface{}{
		"queryType": queryType,
		"action":    result.Action,
		"success":   result.Success,
		"duration":  time.Since(start).String(),
	})
	return result, nil
}

// Handle dispatches query on behalf of actor.
func (d *Dispatcher) Handle(ctx context.Context, query, actor string) *models.WorkflowResult {
	result, _ := d.Dispatch(ctx, &Request{Query: query, Actor: actor})
	return result
}

// answer serves a knowledge query.
func (d *Dispatcher) answer(ctx context.Context, query string) *models.WorkflowResult {
	action := models.ActionAnswerKnowledgeQuery
	ans, err := d.ask(ctx, query)
	if err != nil {
		return d.knowledgeFailure(action, err)
	}

	citations := ans.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	message := "Answered from the QMS knowledge base"
	if len(citations) == 0 {
		message = "No matching documentation found"
	}
	return models.Succeeded(action, models.KnowledgeAnswer{
		Answer:    ans.Text,
		Citations: citations,
	}, message)
}

func (d *Dispatcher) ask(ctx context.Context, query string) (*knowledge.Answer, error) {
	if d.knowledge == nil {
		return nil, errors.NewExternalServiceError("knowledge", stderrors.New("knowledge agent is not configured"))
	}
	ans, err := d.knowledge.Answer(ctx, query)
	if err != nil {
		return nil, err
	}
	if ans == nil {
		return nil, errors.NewReasoningFailedError(stderrors.New("empty answer"))
	}
	return ans, nil
}

// fail builds a failure envelope from a StandardError. Only its caller-safe
// Message reaches the envelope.
func (d *Dispatcher) fail(action models.Action, message string, stdErr *errors.StandardError) *models.WorkflowResult {
	d.logger.Warn("request failed", map[string]interface{}{
		"action":  action,
		"code":    stdErr.Code,
		"details": stdErr.Details,
	})
	return models.Failed(action, message, stdErr.Message)
}

// storageFailure converts a repository error. Missing records keep their
// message; anything else is logged in full and replaced.
func (d *Dispatcher) storageFailure(action models.Action, operation string, err error) *models.WorkflowResult {
	if stdErr, ok := errors.As(err); ok && stdErr.Code == errors.ErrCodeRecordNotFound {
		return d.fail(action, "The referenced record does not exist", stdErr)
	}
	metrics.StorageFailures.WithLabelValues(operation).Inc()
	d.logger.Error("storage operation failed", map[string]interface{}{
		"operation": operation,
		"action":    action,
		"error":     err,
	})
	return d.fail(action, "The workflow store could not complete the request",
		errors.NewStorageFailureError(operation, err))
}

func (d *Dispatcher) knowledgeFailure(action models.Action, err error) *models.WorkflowResult {
	d.logger.Error("knowledge request failed", map[string]interface{}{
		"action": action,
		"error":  err,
	})
	stdErr, ok := errors.As(err)
	if !ok {
		stdErr = errors.NewReasoningFailedError(err)
	}
	return d.fail(action, "The knowledge base could not answer the request", stdErr)
}

func (d *Dispatcher) unresolved(desc models.ActionDescriptor, queryType models.QueryType) *models.WorkflowResult {
	if !desc.Resolved() {
		return d.fail(models.ActionNone, "Could not determine the specific workflow action. Please mention the DCR or CAPA and what to do with it.",
			errors.NewClassificationAmbiguousError("no action matched for "+queryType.String()))
	}
	return d.fail(desc.Action, "The requested action does not match the request intent",
		errors.NewInvalidActionError(string(desc.Action), queryType.String()))
}

func (d *Dispatcher) publish(ctx context.Context, ev notify.Event) {
	if d.notifier == nil {
		return
	}
	ev.OccurredAt = d.now().UTC()
	if err := d.notifier.Notify(ctx, ev); err != nil {
		d.logger.Warn("notification failed", map[string]interface{}{
			"entityId": ev.EntityID,
			"error":    err,
		})
	}
}
