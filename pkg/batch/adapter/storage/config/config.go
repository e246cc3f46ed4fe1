// Package config holds the object storage settings decoded from the "storage" section.
package config

// SelectionConfig configures which object of a bucket the fetch step picks.
type SelectionConfig struct {
	// Prefix filters object keys.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	// Order is "first" (lexicographically smallest key) or "newest" (latest modification time).
	Order string `yaml:"order" mapstructure:"order"`
}

// LocalConfig configures the directory-tree store; each bucket is a subdirectory of BaseDir.
type LocalConfig struct {
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
}

// S3Config configures any S3-compatible endpoint.
type S3Config struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Region   string `yaml:"region" mapstructure:"region"`
	// AccessKey and SecretKey fall back to the AWS_* environment variables when empty.
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// GCSConfig configures Google Cloud Storage.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	// Endpoint overrides the API endpoint, e.g. for an emulator. Authentication is skipped when set.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// StorageConfig is the whole storage section.
type StorageConfig struct {
	// Type selects the adapter: "local", "s3" or "gcs".
	Type string `yaml:"type" mapstructure:"type"`
	// Bucket is the default bucket of the sync job.
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	// DownloadDir receives fetched objects.
	DownloadDir string          `yaml:"download_dir" mapstructure:"download_dir"`
	Selection   SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Local       LocalConfig     `yaml:"local" mapstructure:"local"`
	S3          S3Config        `yaml:"s3" mapstructure:"s3"`
	GCS         GCSConfig       `yaml:"gcs" mapstructure:"gcs"`
}
