package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Pipeline *pipelineConfig
	Audit    *auditConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"workflow"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	LogLevel        string `envconfig:"WORKFLOW_ENGINE_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"WORKFLOW_ENGINE_MIGRATIONS_FOLDER" default:""`
	MetricsAddress  string `envconfig:"WORKFLOW_ENGINE_METRICS_ADDRESS" default:":8080"`
	ExportFolder    string `envconfig:"WORKFLOW_ENGINE_EXPORT_FOLDER" default:""`
}

type pipelineConfig struct {
	StatusTable string `envconfig:"WORKFLOW_ENGINE_STATUS_TABLE" default:"workflow_status"`
	HeaderTable string `envconfig:"WORKFLOW_ENGINE_HEADER_TABLE" default:"file_headers"`

	IngestionQueue           string `envconfig:"WORKFLOW_ENGINE_INGESTION_QUEUE" default:"ingestion"`
	RuleRequestQueue         string `envconfig:"WORKFLOW_ENGINE_RULE_REQUEST_QUEUE" default:"rule_requests"`
	RuleResponseQueue        string `envconfig:"WORKFLOW_ENGINE_RULE_RESPONSE_QUEUE" default:"rule_responses"`
	DataQualityRequestQueue  string `envconfig:"WORKFLOW_ENGINE_DQ_REQUEST_QUEUE" default:"dq_requests"`
	DataQualityResponseQueue string `envconfig:"WORKFLOW_ENGINE_DQ_RESPONSE_QUEUE" default:"dq_responses"`
	RemediationQueue         string `envconfig:"WORKFLOW_ENGINE_REMEDIATION_QUEUE" default:"remediation_responses"`

	DataQualityEnabled bool          `envconfig:"WORKFLOW_ENGINE_DQ_ENABLED" default:"true"`
	SchedulerInterval  time.Duration `envconfig:"WORKFLOW_ENGINE_SCHEDULER_INTERVAL" default:"1m"`
}

type auditConfig struct {
	MaxMessageBytes int    `envconfig:"WORKFLOW_ENGINE_AUDIT_MAX_BYTES" default:"262144"`
	Topic           string `envconfig:"WORKFLOW_ENGINE_AUDIT_TOPIC" default:"dataforge.workflow.audit"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config populated with defaults only. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("workflow_engine_defaults", cfg); err != nil {
		panic(err)
	}
	return cfg
}
