package workflowquery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"qms-workers/internal/common/camunda"
	"qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/common/validation"
	"qms-workers/internal/models"
	"qms-workers/internal/workflow"
	"qms-workers/pkg/registry"
)

const (
	TaskType = "qms-workflow-query"
)

var (
	ErrInvalidInput = stderrors.New("INVALID_INPUT")
)

// Dispatcher runs one workflow request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *workflow.Request) (*models.WorkflowResult, error)
}

type Handler struct {
	config     *Config
	dispatcher Dispatcher
	validator  *validation.Validator
	errors     *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, dispatcher Dispatcher, log logger.Logger) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	schema, err := registry.InputSchema(TaskType)
	if err != nil {
		return nil, err
	}
	validator, err := validation.NewValidator(schema)
	if err != nil {
		return nil, err
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		dispatcher: dispatcher,
		validator:  validator,
		errors:     errors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

// Handle completes the job with the workflow envelope, including failed
// envelopes. Only malformed job variables raise an incident.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput([]byte(job.Variables))
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.ErrCodeInvalidInput)).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// parseInput validates the job variables against the registered schema.
func (h *Handler) parseInput(raw []byte) (*Input, error) {
	result, err := h.validator.ValidateJSON(raw)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidInputError(result.Summary())
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: input cannot be nil", ErrInvalidInput)
	}

	res, err := h.dispatcher.Dispatch(ctx, &workflow.Request{Query: input.Query, Actor: input.Actor})
	if err != nil {
		return nil, err
	}

	h.logger.Info("request handled", map[string]interface{}{
		"requestId": input.RequestID,
		"action":    res.Action,
		"success":   res.Success,
	})
	return outputFrom(res, input.RequestID), nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}

	err = camunda.Retry(ctx, nil, "complete-job", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// ParseInput exposes schema validation for callers outside the job loop.
func (h *Handler) ParseInput(raw []byte) (*Input, error) {
	return h.parseInput(raw)
}
