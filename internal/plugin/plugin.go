// Package plugin holds the named middleware that config-declared scope
// chains are built from.
package plugin

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/format"
)

// Env is the init value every middleware of a scope receives.
type Env struct {
	Scope string
	// Tags are the scope's default tags, used by the tag plugin.
	Tags []string
}

// Middleware is a chain link over style requests.
type Middleware = chain.Middleware[string, *Env]

// Plugin builds middleware from config parameters.
type Plugin interface {
	// Name returns the unique name config refers to the plugin by.
	Name() string

	// Description is shown by `resolvr middleware`.
	Description() string

	// New validates params and returns the middleware. Format names in
	// params are resolved against formats.
	New(params map[string]any, formats *format.Catalog) (Middleware, error)
}

// Factory is the function form of Plugin.New.
type Factory func(params map[string]any, formats *format.Catalog) (Middleware, error)

type funcPlugin struct {
	name, desc string
	factory    Factory
}

// New returns a Plugin backed by factory.
func New(name, description string, factory Factory) Plugin {
	return &funcPlugin{name: name, desc: description, factory: factory}
}

func (p *funcPlugin) Name() string        { return p.name }
func (p *funcPlugin) Description() string { return p.desc }

func (p *funcPlugin) New(params map[string]any, formats *format.Catalog) (Middleware, error) {
	return p.factory(params, formats)
}

// decode fills out from params, rejecting unknown keys.
func decode(plugin string, params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("plugin %s: %w", plugin, err)
	}
	return nil
}

func lookupFormat(plugin string, formats *format.Catalog, name string) (*format.Handler, error) {
	if name == "" {
		return nil, fmt.Errorf("plugin %s: format is required", plugin)
	}
	h, ok := formats.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("plugin %s: unknown format %q", plugin, name)
	}
	return h, nil
}
