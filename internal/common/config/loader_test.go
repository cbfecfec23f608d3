package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: qms
    user: qms
  elasticsearch:
    url: http://localhost:9200
  redis:
    address: localhost:6379
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Database.Elasticsearch.GetAddresses())
	assert.Equal(t, "qms_workflows", cfg.Warehouse.Schema)
	assert.Equal(t, 20, cfg.Warehouse.ResultLimit)
	assert.Equal(t, "qms_documents", cfg.Knowledge.Index)
	assert.Equal(t, 5, cfg.Knowledge.PageSize)
	assert.InDelta(t, 0.3, cfg.Knowledge.OpenAI.Temperature, 0.0001)
	assert.Equal(t, "Quality Assurance", cfg.Defaults.Department)
	assert.Equal(t, "Medium", cfg.Defaults.Priority)
	assert.Equal(t, "Major", cfg.Defaults.Severity)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.InDelta(t, 0.1, cfg.Observability.SampleRatio, 0.0001)
	assert.Empty(t, cfg.Observability.OTLPEndpoint)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("QMS_TEST_REDIS_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
    password: ${QMS_TEST_REDIS_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Redis.Password)
}

func TestLoadFromFile_RoutingOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
routing:
  knowledge_keywords: [procedure, manual]
workers:
  qms-workflow-query:
    enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"procedure", "manual"}, cfg.Routing.KnowledgeKeywords)
	assert.Empty(t, cfg.Routing.ListingVerbs)

	wcfg := GetWorkerConfig(cfg, "qms-workflow-query")
	assert.Equal(t, 5, wcfg.MaxJobsActive)
	assert.Equal(t, 30000, wcfg.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing postgres host",
			body: "database:\n  elasticsearch:\n    url: http://es:9200\n  redis:\n    address: r:6379\n",
			want: "database.postgres.host is required",
		},
		{
			name: "sns enabled without topic",
			body: minimalConfig + "notifications:\n  sns:\n    enabled: true\n",
			want: "notifications.sns.topic_arn is required",
		},
		{
			name: "sample ratio out of range",
			body: minimalConfig + "observability:\n  sample_ratio: 1.5\n",
			want: "observability.sample_ratio must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QMS_EVENTS_TOPIC_ARN", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPostgresConfig_URLs(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "qms", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=qms sslmode=disable", p.GetDSN())
	assert.Equal(t, "postgres://u:p@db:5432/qms?sslmode=disable", p.GetURL())
}
