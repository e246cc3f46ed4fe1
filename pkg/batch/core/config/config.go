// Package config holds the application configuration and its loader.
package config

// EmbeddedConfig is the raw YAML configuration compiled into the binary.
type EmbeddedConfig []byte

// BatchConfig configures the batch engine.
type BatchConfig struct {
	// JobName is the name of the sales sync job.
	JobName string `yaml:"job_name"`
	// ChunkSize is the number of records committed per load-step transaction.
	ChunkSize int `yaml:"chunk_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `yaml:"level"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig names the connections used by the engine.
type InfrastructureConfig struct {
	// JobRepositoryDBRef is the database connection holding job metadata.
	// The value "inmemory" selects the in-memory repository.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
	// WorkloadDBRef is the database connection receiving sales records.
	WorkloadDBRef string `yaml:"workload_db_ref"`
	// AutoMigrate applies schema migrations at startup.
	AutoMigrate bool `yaml:"auto_migrate"`
	// StopPollSeconds is how often an active run checks for a stop requested by another process.
	StopPollSeconds int `yaml:"stop_poll_seconds"`
	// StaleRunSeconds is how long a run may go without repository activity
	// before `stop` marks it STOPPED instead of asking its process.
	StaleRunSeconds int `yaml:"stale_run_seconds"`
}

// MetricsConfig selects the metric backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend string `yaml:"backend"`
	// Exporter is "otlp-http" or "otlp-grpc"; used by the otel backend.
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	// IntervalSeconds is the otel export interval.
	IntervalSeconds int `yaml:"interval_seconds"`
	// AsyncBufferSize is the queue length of the asynchronous recorder. 0 records synchronously.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "otlp-http" or "otlp-grpc".
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// TelemetryConfig groups metrics and tracing.
type TelemetryConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// AMQPConfig configures job completion notifications. An empty URL disables them.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// NotificationConfig groups notification channels.
type NotificationConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

// ServerConfig configures the HTTP submission API.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// ExportConfig configures the Parquet export of the sales table.
type ExportConfig struct {
	// Bucket receives the export. Empty means storage.bucket.
	Bucket string `yaml:"bucket"`
	// OutputPrefix is the key prefix; objects land under <prefix>/dt=YYYY-MM-DD/.
	OutputPrefix string `yaml:"output_prefix"`
	// Compression is SNAPPY, GZIP or NONE.
	Compression string `yaml:"compression"`
	// BufferSize bounds the rows queued between the database cursor and the Parquet encoder.
	BufferSize int `yaml:"buffer_size"`
}

// SalesyncConfig is everything under the "salesync" top-level key.
type SalesyncConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Notification   NotificationConfig   `yaml:"notification"`
	Server         ServerConfig         `yaml:"server"`
	Export         ExportConfig         `yaml:"export"`
	// Storage is decoded by the storage adapters with mapstructure.
	Storage map[string]interface{} `yaml:"storage"`
	// AdapterConfigs holds named database connections, decoded with mapstructure.
	AdapterConfigs map[string]interface{} `yaml:"database"`
}

// Config is the root of the application configuration.
type Config struct {
	Salesync SalesyncConfig `yaml:"salesync"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Salesync: SalesyncConfig{
			Batch: BatchConfig{
				JobName:   "sync-sales-job",
				ChunkSize: 10,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Infrastructure: InfrastructureConfig{
				JobRepositoryDBRef: "metadata",
				WorkloadDBRef:      "workload",
				AutoMigrate:        true,
				StopPollSeconds:    2,
				StaleRunSeconds:    600,
			},
			Telemetry: TelemetryConfig{
				ServiceName: "salesync",
				Metrics:     MetricsConfig{Backend: "prometheus", Exporter: "otlp-http", IntervalSeconds: 15, AsyncBufferSize: 100},
				Tracing:     TracingConfig{Exporter: "otlp-http"},
			},
			Notification: NotificationConfig{
				AMQP: AMQPConfig{Exchange: "salesync", RoutingKey: "job.completed"},
			},
			Server:         ServerConfig{Address: ":8080"},
			Export:         ExportConfig{OutputPrefix: "exports/sales_info", Compression: "SNAPPY", BufferSize: 1000},
			Storage:        map[string]interface{}{},
			AdapterConfigs: map[string]interface{}{},
		},
	}
}
