// Package config loads the sagecache configuration from YAML or TOML files,
// with .env support and ${VAR} expansion.
package config

import "git.home.luguber.info/inful/sagecache/internal/artifact"

// Config is the complete application configuration.
type Config struct {
	// DBPath is the SQLite evaluation cache.
	DBPath string `yaml:"db_path" toml:"db_path"`
	// FileBasePath is where the filesystem artifact store keeps result files.
	FileBasePath string          `yaml:"file_base_path" toml:"file_base_path"`
	Backends     []BackendConfig `yaml:"backends" toml:"backends"`
	Content      ContentConfig   `yaml:"content" toml:"content"`
	Evaluate     EvaluateConfig  `yaml:"evaluate" toml:"evaluate"`
	Artifacts    ArtifactsConfig `yaml:"artifacts" toml:"artifacts"`
	Logging      LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Notify       NotifyConfig    `yaml:"notify" toml:"notify"`
	Watch        WatchConfig     `yaml:"watch" toml:"watch"`
}

// BackendConfig selects the remote execution service for one platform tag.
type BackendConfig struct {
	Platform   string      `yaml:"platform" toml:"platform"`
	Kind       BackendKind `yaml:"kind" toml:"kind"`
	URL        string      `yaml:"url" toml:"url"`
	Token      string      `yaml:"token,omitempty" toml:"token,omitempty"`
	KernelName string      `yaml:"kernel_name,omitempty" toml:"kernel_name,omitempty"`
	Timeout    Duration    `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// ContentConfig locates the documents to build.
type ContentConfig struct {
	Dir        string   `yaml:"dir" toml:"dir"`
	Output     string   `yaml:"output" toml:"output"`
	Extensions []string `yaml:"extensions" toml:"extensions"`
}

// EvaluateConfig tunes evaluation passes.
type EvaluateConfig struct {
	// MaxWorkers bounds concurrent source groups; 0 runs one worker per group.
	MaxWorkers int `yaml:"max_workers" toml:"max_workers"`
}

// ArtifactsConfig selects where result files are stored.
type ArtifactsConfig struct {
	Driver artifact.Driver `yaml:"driver" toml:"driver"`
	S3     S3Config        `yaml:"s3" toml:"s3"`
}

// S3Config configures the S3 artifact driver.
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" toml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" toml:"secret_access_key,omitempty"`
	PathStyle       bool   `yaml:"path_style,omitempty" toml:"path_style,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" toml:"level"`
	Format LogFormat `yaml:"format" toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}

// NotifyConfig configures NATS event publishing. An empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url" toml:"nats_url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// WatchConfig configures continuous rebuilds.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
	// Interval re-runs evaluation periodically; 0 disables the schedule.
	Interval Duration `yaml:"interval" toml:"interval"`
}

// ArtifactOptions translates the artifact section into store options.
func (c *Config) ArtifactOptions() artifact.Options {
	return artifact.Options{
		Driver:   c.Artifacts.Driver,
		BasePath: c.FileBasePath,
		S3: artifact.S3Config{
			Bucket:          c.Artifacts.S3.Bucket,
			Region:          c.Artifacts.S3.Region,
			Endpoint:        c.Artifacts.S3.Endpoint,
			Prefix:          c.Artifacts.S3.Prefix,
			AccessKeyID:     c.Artifacts.S3.AccessKeyID,
			SecretAccessKey: c.Artifacts.S3.SecretAccessKey,
			PathStyle:       c.Artifacts.S3.PathStyle,
		},
	}
}

// Backend returns the backend serving platform.
func (c *Config) Backend(platform string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Platform == platform {
			return b, true
		}
	}
	return BackendConfig{}, false
}
