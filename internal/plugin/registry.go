package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/format"
)

// Registry maps middleware names to plugins.
type Registry struct {
	plugins map[string]Plugin
	mu      sync.RWMutex
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Default returns a registry holding the built-in plugins.
func Default() *Registry {
	r := NewRegistry()
	for _, p := range Builtins() {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a plugin to the registry.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin name must not be empty")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins[name] = p

	log.Debug().Str("plugin", name).Msg("plugin registered")
	return nil
}

// Unregister removes a plugin from the registry. Chains already built from
// it keep working.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		return fmt.Errorf("plugin %q not found", name)
	}
	delete(r.plugins, name)

	log.Debug().Str("plugin", name).Msg("plugin unregistered")
	return nil
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// PluginInfo is a summary of a registered plugin.
type PluginInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List returns all registered plugins sorted by name.
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, PluginInfo{
			Name:        p.Name(),
			Description: p.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Build turns a scope's middleware config into a chain. Unknown names and
// rejected params are reported as *chain.InvalidChainError with the index
// of the offending entry.
func (r *Registry) Build(cfgs []config.MiddlewareConfig, formats *format.Catalog) ([]Middleware, error) {
	out := make([]Middleware, 0, len(cfgs))
	for i, mc := range cfgs {
		p, ok := r.Lookup(mc.Name)
		if !ok {
			return nil, &chain.InvalidChainError{Index: i, Reason: fmt.Sprintf("unknown middleware %q", mc.Name)}
		}
		mw, err := p.New(mc.Params, formats)
		if err != nil {
			return nil, &chain.InvalidChainError{Index: i, Reason: err.Error()}
		}
		if mw == nil {
			return nil, &chain.InvalidChainError{Index: i, Reason: fmt.Sprintf("plugin %s returned no middleware", mc.Name)}
		}
		out = append(out, mw)
	}
	return out, nil
}
