package knowledgequery

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"qms-workers/internal/common/camunda"
	"qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/common/validation"
	"qms-workers/internal/knowledge"
	"qms-workers/internal/models"
	"qms-workers/pkg/registry"
)

const (
	TaskType = "qms-knowledge-query"
)

var (
	ErrEmptyAnswer = stderrors.New("EMPTY_ANSWER")
)

// Knowledge answers a question from the document index.
type Knowledge interface {
	Answer(ctx context.Context, question string) (*knowledge.Answer, error)
}

type Handler struct {
	config    *Config
	knowledge Knowledge
	validator *validation.Validator
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, k Knowledge, log logger.Logger) (*Handler, error) {
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
		config:    config,
		knowledge: k,
		validator: validator,
		errors:    errors.NewErrorHandler(log),
		logger:    log,
	}, nil
}

// Handle answers the question in the job variables. Retrieval and model
// failures fail the job with retries; schema violations throw INVALID_INPUT.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput([]byte(job.Variables))
	if err == nil {
		var output *Output
		output, err = h.execute(ctx, input)
		if err == nil {
			h.completeJob(ctx, client, job, output)
			return
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

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
	if input == nil || strings.TrimSpace(input.Question) == "" {
		return nil, errors.NewInvalidInputError("question is required")
	}

	ans, err := h.knowledge.Answer(ctx, input.Question)
	if err != nil {
		return nil, err
	}
	if ans == nil {
		return nil, errors.NewReasoningFailedError(ErrEmptyAnswer)
	}

	citations := ans.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return &Output{
		Answer:    ans.Text,
		Citations: citations,
		Grounded:  ans.Grounded(),
	}, nil
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
