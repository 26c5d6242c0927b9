package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// EnvFiles are loaded before the configuration is read. Variables already set
// in the environment win.
var EnvFiles = []string{".env", ".env.local"}

// Load reads, expands, defaults and validates the configuration at path. An
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.ConfigError("configuration file not found").
					WithContext("path", path).
					Build()
			}
			return nil, errors.FileSystemError("read configuration").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		if err := decode(path, []byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if stderrors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return errors.ConfigError("unsupported configuration format").
			WithContext("path", path).
			Build()
	}
	if err != nil {
		return errors.ConfigError("parse configuration").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}

func loadEnvFiles() {
	for _, f := range EnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("Failed to load env file", logfields.Path(f), logfields.Error(err))
			continue
		}
		slog.Debug("Loaded environment file", logfields.Path(f))
	}
}
