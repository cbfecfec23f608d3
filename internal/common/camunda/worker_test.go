package camunda

import (
	"context"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"qms-workers/internal/common/observability"
)

// ==========================
// Fake Job Client
// ==========================

type fakeJobClient struct {
	worker.JobClient
}

func (fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 { return nil }
func (fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1         { return nil }
func (fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1   { return nil }

func processedByStatus(t *testing.T, reader *metric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "jobs.processed" {
				continue
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

// ==========================
// Instrument
// ==========================

func TestInstrument_RecordsJobOutcome(t *testing.T) {
	tests := []struct {
		name    string
		handler JobHandler
		want    string
	}{
		{
			name:    "completed",
			handler: func(c worker.JobClient, _ entities.Job) { c.NewCompleteJobCommand() },
			want:    OutcomeCompleted,
		},
		{
			name:    "failed",
			handler: func(c worker.JobClient, _ entities.Job) { c.NewFailJobCommand() },
			want:    OutcomeFailed,
		},
		{
			name:    "bpmn error",
			handler: func(c worker.JobClient, _ entities.Job) { c.NewThrowErrorCommand() },
			want:    OutcomeThrown,
		},
		{
			name:    "no terminal command",
			handler: func(worker.JobClient, entities.Job) {},
			want:    OutcomeIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			reader := metric.NewManualReader()
			obs, err := observability.New(ctx, observability.Config{ServiceName: "test", MetricReader: reader})
			require.NoError(t, err)
			defer obs.Shutdown(ctx)

			Instrument("qms-workflow-query", tt.handler, obs)(fakeJobClient{}, entities.Job{})

			assert.Equal(t, map[string]int64{tt.want: 1}, processedByStatus(t, reader))
		})
	}
}

func TestInstrument_NilObservability(t *testing.T) {
	called := false
	handler := func(c worker.JobClient, _ entities.Job) {
		called = true
		c.NewCompleteJobCommand()
	}

	assert.NotPanics(t, func() {
		Instrument("qms-knowledge-query", handler, nil)(fakeJobClient{}, entities.Job{})
	})
	assert.True(t, called)
}
