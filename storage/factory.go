package storage

import (
	"fmt"
	"sync"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/logger"
)

// Deps carries the collaborators a provider may need.
type Deps struct {
	Log   *logger.Logger
	Clock clock.Clock
}

// Factory creates a Storage from provider-specific configuration. Each
// provider type-asserts providerCfg to its own config type.
type Factory func(providerCfg any, deps Deps) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a storage backend factory for the given provider
// name. Provider packages call this from init.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New creates the Storage selected by cfg.Provider.
func New(cfg Config, providerCfg any, deps Deps) (Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.WithComponent("storage")
	deps.Clock = clock.OrReal(deps.Clock)

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported provider %q (not registered)", cfg.Provider)
	}

	deps.Log.Info("initializing storage", logger.Fields("provider", cfg.Provider))
	return f(providerCfg, deps)
}
