package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// Init writes an example configuration to path. An existing file is only
// replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Default()
	example.Backends = append(example.Backends, BackendConfig{
		Platform:   "ipython",
		Kind:       BackendJupyter,
		URL:        "http://localhost:8888/",
		Token:      "${JUPYTER_TOKEN}",
		KernelName: "python3",
		Timeout:    example.Backends[0].Timeout,
	})
	example.Metrics.Listen = DefaultMetricsAddr

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.InternalError("marshal example configuration").WithCause(err).Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.FileSystemError("create configuration directory").WithCause(err).Build()
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileSystemError("write configuration").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}
