package camunda

import (
	"context"
	"time"

	"qms-workers/internal/common/config"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is the handler signature every task package exposes.
type JobHandler func(client worker.JobClient, job entities.Job)

// Worker is an open job subscription for one task type.
type Worker struct {
	worker   worker.JobWorker
	taskType string
	log      logger.Logger
}

// Job outcomes reported to observability.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeThrown     = "bpmn_error"
	OutcomeIncomplete = "incomplete"
)

// outcomeClient remembers which terminal command the handler issued.
type outcomeClient struct {
	worker.JobClient
	outcome string
}

func (c *outcomeClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.outcome = OutcomeCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *outcomeClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.outcome = OutcomeFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *outcomeClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.outcome = OutcomeThrown
	return c.JobClient.NewThrowErrorCommand()
}

// Instrument wraps a handler with the worker_jobs_* metrics and records the
// job outcome and duration on obs.
func Instrument(taskType string, handler JobHandler, obs *observability.Observability) JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		recorder := &outcomeClient{JobClient: client, outcome: OutcomeIncomplete}
		defer func() {
			elapsed := time.Since(start)
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())

			ctx := context.Background()
			obs.RecordJobProcessed(ctx, taskType, recorder.outcome)
			obs.RecordJobDuration(ctx, taskType, elapsed, recorder.outcome)
		}()
		handler(recorder, job)
	}
}

// StartWorker opens a job worker unless the config disables it. It returns
// nil for disabled workers.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler JobHandler, obs *observability.Observability, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(Instrument(taskType, handler, obs))).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})

	return &Worker{worker: jobWorker, taskType: taskType, log: log}
}

// Close stops polling and waits for in-flight jobs.
func (w *Worker) Close() {
	if w == nil {
		return
	}
	w.log.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
