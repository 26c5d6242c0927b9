package config

import (
	"fmt"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// normalize case-folds enumerations in place.
func normalize(cfg *Config) error {
	for i := range cfg.Backends {
		kind, err := backendKinds.Parse(string(cfg.Backends[i].Kind))
		if err != nil {
			return invalid(fmt.Sprintf("backends[%d].kind", i), err)
		}
		cfg.Backends[i].Kind = kind
	}
	driver, err := artifactDrivers.Parse(string(cfg.Artifacts.Driver))
	if err != nil {
		return invalid("artifacts.driver", err)
	}
	cfg.Artifacts.Driver = driver
	level, err := logLevels.Parse(string(cfg.Logging.Level))
	if err != nil {
		return invalid("logging.level", err)
	}
	cfg.Logging.Level = level
	format, err := logFormats.Parse(string(cfg.Logging.Format))
	if err != nil {
		return invalid("logging.format", err)
	}
	cfg.Logging.Format = format
	return nil
}

// Validate checks a loaded configuration for settings that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return invalid("db_path", fmt.Errorf("must not be empty"))
	}
	seen := map[string]bool{}
	for i, b := range c.Backends {
		field := fmt.Sprintf("backends[%d]", i)
		if b.Platform == "" {
			return invalid(field+".platform", fmt.Errorf("must not be empty"))
		}
		if seen[b.Platform] {
			return invalid(field+".platform", fmt.Errorf("duplicate platform %q", b.Platform))
		}
		seen[b.Platform] = true
		u, err := url.Parse(b.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid(field+".url", fmt.Errorf("%q is not an http(s) URL", b.URL))
		}
		if b.Timeout < 0 {
			return invalid(field+".timeout", fmt.Errorf("must not be negative"))
		}
	}
	if len(c.Content.Extensions) == 0 {
		return invalid("content.extensions", fmt.Errorf("at least one extension is required"))
	}
	for _, ext := range c.Content.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return invalid("content.extensions", fmt.Errorf("%q must start with a dot", ext))
		}
	}
	switch c.Artifacts.Driver {
	case artifact.DriverFilesystem:
		if c.FileBasePath == "" {
			return invalid("file_base_path", fmt.Errorf("required by the fs artifact driver"))
		}
	case artifact.DriverS3:
		if c.Artifacts.S3.Bucket == "" {
			return invalid("artifacts.s3.bucket", fmt.Errorf("required by the s3 artifact driver"))
		}
	}
	if c.Watch.Interval < 0 {
		return invalid("watch.interval", fmt.Errorf("must not be negative"))
	}
	return nil
}

func invalid(field string, cause error) error {
	return errors.ConfigError("invalid " + field).
		WithCause(cause).
		WithContext("field", field).
		Build()
}
