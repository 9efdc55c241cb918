package plugin

import (
	"fmt"
	"slices"
	"strings"

	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/format"
)

// Builtins returns the plugins every registry created by Default holds.
func Builtins() []Plugin {
	return []Plugin{
		New("match", "answer format for one exact request", newMatch),
		New("prefix", "answer format for requests starting with prefix", newPrefix),
		New("lookup", "answer the catalog format named by the request", newLookup),
		New("rewrite", "forward request from as request to", newRewrite),
		New("fanout", "resolve several requests and combine the formats", newFanout),
		New("tag", "bind tags into the handler the rest of the chain answers", newTag),
		New("block", "answer no handler for the listed requests", newBlock),
		New("default", "answer format for every request", newDefault),
	}
}

// enhance lifts a resolver-building func into a Middleware that ignores
// the scope env.
func enhance(fn func(next chain.Resolver[string]) chain.Resolver[string]) Middleware {
	return func(*Env) chain.Enhancer[string] { return fn }
}

func newMatch(params map[string]any, formats *format.Catalog) (Middleware, error) {
	var p struct {
		Request string `mapstructure:"request"`
		Format  string `mapstructure:"format"`
	}
	if err := decode("match", params, &p); err != nil {
		return nil, err
	}
	if p.Request == "" {
		return nil, fmt.Errorf("plugin match: request is required")
	}
	h, err := lookupFormat("match", formats, p.Format)
	if err != nil {
		return nil, err
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			if req == p.Request {
				return h, nil
			}
			return next(req)
		}
	}), nil
}

func newPrefix(params map[string]any, formats *format.Catalog) (Middleware, error) {
	var p struct {
		Prefix string `mapstructure:"prefix"`
		Format string `mapstructure:"format"`
	}
	if err := decode("prefix", params, &p); err != nil {
		return nil, err
	}
	if p.Prefix == "" {
		return nil, fmt.Errorf("plugin prefix: prefix is required")
	}
	h, err := lookupFormat("prefix", formats, p.Format)
	if err != nil {
		return nil, err
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			if strings.HasPrefix(req, p.Prefix) {
				return h, nil
			}
			return next(req)
		}
	}), nil
}

// newLookup resolves at request time so formats added to the catalog later
// are found.
func newLookup(params map[string]any, formats *format.Catalog) (Middleware, error) {
	var p struct {
		Prefix string `mapstructure:"prefix"`
	}
	if err := decode("lookup", params, &p); err != nil {
		return nil, err
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			name, ok := strings.CutPrefix(req, p.Prefix)
			if ok {
				if h, found := formats.Lookup(name); found {
					return h, nil
				}
			}
			return next(req)
		}
	}), nil
}

func newRewrite(params map[string]any, _ *format.Catalog) (Middleware, error) {
	var p struct {
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	}
	if err := decode("rewrite", params, &p); err != nil {
		return nil, err
	}
	if p.From == "" || p.To == "" {
		return nil, fmt.Errorf("plugin rewrite: from and to are required")
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			if req == p.From {
				return next(p.To)
			}
			return next(req)
		}
	}), nil
}

// newFanout resolves every request in Requests through the rest of the chain
// and answers their combination. The scope must forward modified requests for
// the fanned-out requests to reach the rest of the chain.
func newFanout(params map[string]any, _ *format.Catalog) (Middleware, error) {
	var p struct {
		Request  string   `mapstructure:"request"`
		Requests []string `mapstructure:"requests"`
	}
	if err := decode("fanout", params, &p); err != nil {
		return nil, err
	}
	if p.Request == "" || len(p.Requests) == 0 {
		return nil, fmt.Errorf("plugin fanout: request and requests are required")
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			if req != p.Request {
				return next(req)
			}
			var hs []*format.Handler
			for _, r := range p.Requests {
				res, err := next(r)
				if err != nil {
					return nil, err
				}
				if h, ok := res.(*format.Handler); ok {
					hs = append(hs, h)
				}
			}
			if len(hs) == 0 {
				return chain.Absent, nil
			}
			return format.Combine(hs...), nil
		}
	}), nil
}

func newTag(params map[string]any, _ *format.Catalog) (Middleware, error) {
	var p struct {
		Request string   `mapstructure:"request"`
		Tags    []string `mapstructure:"tags"`
	}
	if err := decode("tag", params, &p); err != nil {
		return nil, err
	}
	return func(env *Env) chain.Enhancer[string] {
		tags := p.Tags
		if len(tags) == 0 && env != nil {
			tags = env.Tags
		}
		return func(next chain.Resolver[string]) chain.Resolver[string] {
			return func(req string) (chain.Result, error) {
				if p.Request != "" && req != p.Request {
					return next(req)
				}
				res, err := next(req)
				if err != nil || chain.IsNoHandler(res) || len(tags) == 0 {
					return res, err
				}
				return chain.Bind(res, func(pr format.Props) format.Props {
					pr.Tags = append(slices.Clip(pr.Tags), tags...)
					return pr
				}), nil
			}
		}
	}, nil
}

func newBlock(params map[string]any, _ *format.Catalog) (Middleware, error) {
	var p struct {
		Requests []string `mapstructure:"requests"`
	}
	if err := decode("block", params, &p); err != nil {
		return nil, err
	}
	return enhance(func(next chain.Resolver[string]) chain.Resolver[string] {
		return func(req string) (chain.Result, error) {
			if slices.Contains(p.Requests, req) {
				return chain.Absent, nil
			}
			return next(req)
		}
	}), nil
}

func newDefault(params map[string]any, formats *format.Catalog) (Middleware, error) {
	var p struct {
		Format string `mapstructure:"format"`
	}
	if err := decode("default", params, &p); err != nil {
		return nil, err
	}
	h, err := lookupFormat("default", formats, p.Format)
	if err != nil {
		return nil, err
	}
	return enhance(func(chain.Resolver[string]) chain.Resolver[string] {
		return func(string) (chain.Result, error) { return h, nil }
	}), nil
}
