// Package kernel is the execution client: it opens a session on a remote
// kernel (Sage Cell Server or a Jupyter server), submits code and collects
// the ordered messages of the shell and broadcast channels, then classifies
// them into results.
package kernel

import (
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// Backend kinds.
const (
	KindSageCell = "sagecell"
	KindJupyter  = "jupyter"
)

// Config describes one execution backend.
type Config struct {
	Platform   string
	Kind       string
	URL        string
	Token      string
	KernelName string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// defaultKernelNames maps platforms onto Jupyter kernel spec names.
var defaultKernelNames = map[string]string{
	"ipython":  "python3",
	"ihaskell": "haskell",
	"sage":     "sagemath",
}

// Factory builds a fresh client per session.
type Factory struct {
	cfg Config
}

// NewFactory validates cfg and returns a factory for its backend.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.URL == "" {
		return nil, errors.ConfigError("backend url is required").WithContext("platform", cfg.Platform).Build()
	}
	switch cfg.Kind {
	case KindSageCell, KindJupyter:
	case "":
		cfg.Kind = KindSageCell
	default:
		return nil, errors.ConfigError("unknown backend kind " + cfg.Kind).
			WithContext("platform", cfg.Platform).Build()
	}
	if !strings.HasSuffix(cfg.URL, "/") {
		cfg.URL += "/"
	}
	if cfg.KernelName == "" {
		cfg.KernelName = defaultKernelNames[cfg.Platform]
		if cfg.KernelName == "" {
			cfg.KernelName = "python3"
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: max(cfg.Timeout, DefaultTimeout)}
	}
	return &Factory{cfg: cfg}, nil
}

// Platform returns the platform the factory serves.
func (f *Factory) Platform() string { return f.cfg.Platform }

// New returns an unconnected client.
func (f *Factory) New() *Client {
	header := http.Header{}
	if f.cfg.Token != "" {
		header.Set("Authorization", "token "+f.cfg.Token)
	}
	var b backend
	switch f.cfg.Kind {
	case KindJupyter:
		b = &jupyter{baseURL: f.cfg.URL, kernelName: f.cfg.KernelName, http: f.cfg.HTTPClient, header: header}
	default:
		b = &sageCell{baseURL: f.cfg.URL, http: f.cfg.HTTPClient, header: header}
	}
	return newClient(b, f.cfg.Platform, f.cfg.Timeout)
}
