package config

import (
	"time"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/kernel"
)

// Defaults used when a setting is omitted.
const (
	DefaultDBPath       = ".sagecache/content.db"
	DefaultFileBasePath = ".sagecache/files"
	DefaultContentDir   = "content"
	DefaultOutputDir    = "_build"
	DefaultSageCellURL  = "https://sagecell.sagemath.org/"
	DefaultMetricsAddr  = ":9464"
	DefaultSubject      = "sagecache"
	DefaultDebounce     = 500 * time.Millisecond
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.FileBasePath == "" {
		cfg.FileBasePath = DefaultFileBasePath
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = []BackendConfig{{Platform: "sage", Kind: BackendSageCell, URL: DefaultSageCellURL}}
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Timeout <= 0 {
			b.Timeout = Duration(kernel.DefaultTimeout)
		}
	}

	if cfg.Content.Dir == "" {
		cfg.Content.Dir = DefaultContentDir
	}
	if cfg.Content.Output == "" {
		cfg.Content.Output = DefaultOutputDir
	}
	if len(cfg.Content.Extensions) == 0 {
		cfg.Content.Extensions = []string{".md"}
	}
	if cfg.Evaluate.MaxWorkers < 0 {
		cfg.Evaluate.MaxWorkers = 0
	}

	if cfg.Artifacts.Driver == "" {
		cfg.Artifacts.Driver = artifact.DriverFilesystem
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsAddr
	}
	if cfg.Notify.NATSURL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = Duration(DefaultDebounce)
	}
}
