package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Warehouse     WarehouseConfig         `mapstructure:"warehouse"`
	Knowledge     KnowledgeConfig         `mapstructure:"knowledge"`
	Routing       RoutingConfig           `mapstructure:"routing"`
	Defaults      RecordDefaults          `mapstructure:"defaults"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the key/value connection string used by lib/pq.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// GetURL returns the URL form required by the migration driver.
func (p PostgresConfig) GetURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetAddresses merges the single URL field into the address list.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WarehouseConfig locates the workflow tables.
type WarehouseConfig struct {
	Schema         string `mapstructure:"schema"`
	ResultLimit    int    `mapstructure:"result_limit"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// KnowledgeConfig configures document retrieval and answer generation.
type KnowledgeConfig struct {
	Index           string       `mapstructure:"index"`
	PageSize        int          `mapstructure:"page_size"`
	CacheTTLSeconds int          `mapstructure:"cache_ttl_seconds"`
	CachePrefix     string       `mapstructure:"cache_prefix"`
	OpenAI          OpenAIConfig `mapstructure:"openai"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
}

// RoutingConfig overrides individual keyword tables. Empty lists keep the
// built-in table.
type RoutingConfig struct {
	KnowledgeKeywords      []string `mapstructure:"knowledge_keywords"`
	ChangeRequestCreate    []string `mapstructure:"change_request_create"`
	ChangeRequestUpdate    []string `mapstructure:"change_request_update"`
	CorrectiveActionCreate []string `mapstructure:"corrective_action_create"`
	CorrectiveActionUpdate []string `mapstructure:"corrective_action_update"`
	StatusTerms            []string `mapstructure:"status_terms"`
	ListingVerbs           []string `mapstructure:"listing_verbs"`
	OverdueTerms           []string `mapstructure:"overdue_terms"`
	ApprovalTerms          []string `mapstructure:"approval_terms"`
	DraftTerms             []string `mapstructure:"draft_terms"`
}

// RecordDefaults fills fields the request text does not specify.
type RecordDefaults struct {
	Requester       string `mapstructure:"requester"`
	Department      string `mapstructure:"department"`
	ChangeType      string `mapstructure:"change_type"`
	Reason          string `mapstructure:"reason"`
	AffectedProcess string `mapstructure:"affected_process"`
	Priority        string `mapstructure:"priority"`
	Severity        string `mapstructure:"severity"`
	DueDays         int    `mapstructure:"due_days"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// NotificationConfig configures the best-effort notification side channel.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SES struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// ObservabilityConfig points tracing at an OTLP collector. An empty endpoint
// keeps spans in process.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
