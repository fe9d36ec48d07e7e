package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for an assetflow process.
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	AWS        AWSConfig
	Storage    StorageConfig
	Discovery  DiscoveryConfig
	Transfer   TransferConfig
	Submission SubmissionConfig
	Kafka      KafkaConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"assetflow"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"10485760"`
}

type AWSConfig struct {
	Region string `env:"AWS_REGION" envDefault:"us-west-2"`
}

// StorageConfig selects the object-store backend. Credentials are normally
// left empty so the ambient identity (or delegated role credentials) is used.
type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"s3"`
	Endpoint  string `env:"STORAGE_ENDPOINT"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"true"`
	PathStyle bool   `env:"STORAGE_PATH_STYLE" envDefault:"false"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
}

type DiscoveryConfig struct {
	AssumeRoleARN string `env:"ASSUME_ROLE_ARN"`
	ChunkSize     int    `env:"DISCOVERY_CHUNK_SIZE" envDefault:"2800"`
}

type TransferConfig struct {
	Bucket          string `env:"BUCKET"`
	ExternalRoleARN string `env:"EXTERNAL_ROLE_ARN"`
	ScratchDir      string `env:"TRANSFER_SCRATCH_DIR"`
	Concurrency     int    `env:"TRANSFER_CONCURRENCY" envDefault:"1"`
}

type SubmissionConfig struct {
	SecretID    string        `env:"COGNITO_APP_SECRET"`
	IngestorURL string        `env:"STAC_INGESTOR_API_URL"`
	LedgerURL   string        `env:"LEDGER_API_URL"`
	HTTPTimeout time.Duration `env:"SUBMISSION_HTTP_TIMEOUT" envDefault:"30s"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic            string        `env:"KAFKA_PIPELINE_TOPIC" envDefault:"assetflow.pipeline"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=assetflow"`
}

// Load parses the process environment into Config.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}
	// The ledger historically shared the ingestor's base URL.
	if cfg.Submission.LedgerURL == "" {
		cfg.Submission.LedgerURL = cfg.Submission.IngestorURL
	}
	return cfg, nil
}
