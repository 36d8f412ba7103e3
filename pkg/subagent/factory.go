package subagent

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/agent"
	"github.com/Athemis/squidbot/pkg/memory"
	"github.com/Athemis/squidbot/pkg/providers"
	"github.com/Athemis/squidbot/pkg/store"
	"github.com/Athemis/squidbot/pkg/tools"
)

const defaultWorkerPrompt = "You are a background worker. Complete the given task " +
	"and reply with a single final answer. Be concise."

// FactoryConfig holds factory construction parameters.
type FactoryConfig struct {
	// Pool is the default backend pool for workers whose profile does
	// not override it.
	Pool *providers.Pool
	// Registry is the parent tool catalog workers draw from.
	Registry *tools.Registry
	// Profiles are the named configurations spawnable by the model.
	Profiles []Profile
	// MaxRounds bounds each worker's tool rounds.
	MaxRounds int
	Logger    zerolog.Logger
}

// Factory builds isolated agent loops for background tasks.
type Factory struct {
	pool      *providers.Pool
	registry  *tools.Registry
	profiles  map[string]Profile
	maxRounds int
	logger    zerolog.Logger
}

// NewFactory creates a factory.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("backend pool is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}

	profiles := make(map[string]Profile, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		if _, exists := profiles[p.Name]; exists {
			return nil, fmt.Errorf("duplicate profile: %s", p.Name)
		}
		profiles[p.Name] = p
	}

	return &Factory{
		pool:      cfg.Pool,
		registry:  cfg.Registry,
		profiles:  profiles,
		maxRounds: cfg.MaxRounds,
		logger:    cfg.Logger.With().Str("component", "subagent").Logger(),
	}, nil
}

// HasProfile reports whether a profile name is known.
func (f *Factory) HasProfile(name string) bool {
	_, ok := f.profiles[name]
	return ok
}

// Build creates a fully isolated agent loop: fresh in-memory history, a
// filtered copy of the parent's tools, and the profile's pool if it has
// one. Delegating tools are excluded no matter what the allow-list says,
// which is what keeps delegation depth at one.
func (f *Factory) Build(profileName string, allowed []string) (*agent.Loop, error) {
	var profile Profile
	if profileName != "" {
		p, ok := f.profiles[profileName]
		if !ok {
			return nil, fmt.Errorf("unknown profile: %s", profileName)
		}
		profile = p
	}

	if len(allowed) == 0 {
		allowed = profile.Tools
	}

	registry, err := f.filterTools(allowed)
	if err != nil {
		return nil, err
	}

	pool := f.pool
	if profile.Pool != nil {
		pool = profile.Pool
	}

	systemPrompt := profile.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultWorkerPrompt
	}

	assembler, err := memory.New(memory.Config{
		Store:  store.NewMemoryStore(),
		Window: 50,
		Logger: f.logger,
	})
	if err != nil {
		return nil, err
	}

	return agent.New(agent.Config{
		Pool:         pool,
		Assembler:    assembler,
		Registry:     registry,
		SystemPrompt: systemPrompt,
		MaxRounds:    f.maxRounds,
		Logger:       f.logger,
	})
}

// filterTools copies the parent catalog, keeping only allowed names (all
// names when the list is empty) and dropping every delegating tool.
func (f *Factory) filterTools(allowed []string) (*tools.Registry, error) {
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[name] = true
	}

	filtered := tools.NewRegistry(f.logger)
	for _, tool := range f.registry.Tools() {
		if d, ok := tool.(tools.Delegator); ok && d.Delegates() {
			continue
		}
		if len(allowed) > 0 && !allowSet[tool.Name()] {
			continue
		}
		if err := filtered.Register(tool); err != nil {
			return nil, err
		}
	}
	return filtered, nil
}
