package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/foundation/normalization"
	"git.home.luguber.info/inful/sagecache/internal/kernel"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var logFormats = normalization.NewNormalizer(map[string]LogFormat{
	"text": LogFormatText,
	"json": LogFormatJSON,
}, LogFormatText)

// BackendKind names the protocol a backend speaks.
type BackendKind string

const (
	BackendSageCell BackendKind = kernel.KindSageCell
	BackendJupyter  BackendKind = kernel.KindJupyter
)

var backendKinds = normalization.NewNormalizer(map[string]BackendKind{
	"sagecell":  BackendSageCell,
	"sage-cell": BackendSageCell,
	"jupyter":   BackendJupyter,
}, BackendSageCell)

var artifactDrivers = normalization.NewNormalizer(map[string]artifact.Driver{
	"fs":         artifact.DriverFilesystem,
	"filesystem": artifact.DriverFilesystem,
	"s3":         artifact.DriverS3,
}, artifact.DriverFilesystem)

// Duration is a time.Duration written as "10s" or "1m30s" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText parses a Go duration string. TOML decoding uses it.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
