package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	Expander       EnvironmentExpander
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// LoadConfig builds the configuration in four layers: defaults, the .env file,
// the embedded YAML with ${VAR} expansion, and finally SALESYNC_* environment
// variables derived from the yaml tags (e.g. SALESYNC_BATCH_CHUNK_SIZE).
func LoadConfig(envFilePath string, embedded EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath == "" {
		envFilePath = ".env"
	}
	if err := godotenv.Load(envFilePath); err != nil {
		logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
	}

	cfg := NewConfig()

	raw := []byte(embedded)
	if expander != nil {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err)
		}
		raw = expanded
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	b := c.Salesync.Batch
	if b.ChunkSize <= 0 {
		return exception.NewBatchErrorf(moduleName, "batch.chunk_size must be positive, got %d", b.ChunkSize)
	}
	if strings.TrimSpace(b.JobName) == "" {
		return exception.NewBatchError(moduleName, "batch.job_name must not be empty", nil)
	}
	switch c.Salesync.Telemetry.Metrics.Backend {
	case "prometheus", "otel", "none", "":
	default:
		return exception.NewBatchErrorf(moduleName, "unknown telemetry.metrics.backend %q", c.Salesync.Telemetry.Metrics.Backend)
	}
	return nil
}

// NewConfigProvider loads the configuration and applies the log level.
func NewConfigProvider(p ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(p.EnvFilePath, p.EmbeddedConfig, p.Expander)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Salesync.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Salesync.System.Logging.Level)
	return cfg, nil
}

// loadStructFromEnv overrides struct fields from environment variables named
// after the upper-cased yaml tag path. Map fields are left to ${VAR} expansion.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + tag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}
		envValue, ok := os.LookupEnv(envVarName)
		if !ok {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}
