// Package backend turns allocated endpoints into concrete launch
// specifications for a pluggable serving framework. Spec building is pure:
// deterministic for identical inputs, no I/O.
package backend

import (
	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/pkg/models"
)

// SpecOptions carries the per-process values the orchestrator assigns.
type SpecOptions struct {
	// EventPort is the KV event publishing port for this endpoint's leader.
	// Zero means event publishing is disabled for the mode.
	EventPort int

	// SystemPort is the per-process runtime control port.
	SystemPort int
}

// Backend builds launch specifications for one serving framework.
type Backend interface {
	Name() string

	// BuildLaunchSpec produces the launch spec for one rank of one endpoint.
	// Environment precedence is base, then global overrides, then per-mode
	// overrides, later layers winning.
	BuildLaunchSpec(ep models.Endpoint, rank int, rc *runtime.Context, opts SpecOptions) (models.LaunchSpec, error)
}

type factory func(cfg *config.Config) Backend

var backends = map[string]factory{
	"sglang": newSGLang,
	"vllm":   newStub("vllm"),
	"trtllm": newStub("trtllm"),
}

// New returns the configured backend, or UnsupportedBackendError for names
// with only a stub. Unknown names also fail fast.
func New(cfg *config.Config) (Backend, error) {
	f, ok := backends[cfg.Backend.Type]
	if !ok {
		return nil, &UnsupportedBackendError{Name: cfg.Backend.Type}
	}
	b := f(cfg)
	if _, stub := b.(*stubBackend); stub {
		return nil, &UnsupportedBackendError{Name: cfg.Backend.Type}
	}
	return b, nil
}

// stubBackend is an explicit placeholder for backends that are recognized but
// not implemented. It never silently no-ops.
type stubBackend struct {
	name string
}

func newStub(name string) factory {
	return func(*config.Config) Backend { return &stubBackend{name: name} }
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) BuildLaunchSpec(models.Endpoint, int, *runtime.Context, SpecOptions) (models.LaunchSpec, error) {
	return models.LaunchSpec{}, &UnsupportedBackendError{Name: s.name}
}
