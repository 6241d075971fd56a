package app

import (
	"context"
	"fmt"
)

// Registry holds one engine per billing family, in configured order.
type Registry struct {
	engines []*Engine
	byName  map[string]*Engine
}

// NewRegistry creates a registry. Family names must be unique (case-insensitive).
func NewRegistry(engines ...*Engine) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		name := normalizeName(e.Family().Name)
		if name == "" {
			return nil, fmt.Errorf("billing family without a name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate billing family %q", e.Family().Name)
		}
		r.byName[name] = e
		r.engines = append(r.engines, e)
	}
	return r, nil
}

// Engine returns the engine for a family name.
func (r *Registry) Engine(family string) (*Engine, bool) {
	e, ok := r.byName[normalizeName(family)]
	return e, ok
}

// Families returns the registered families in order.
func (r *Registry) Families() []Family {
	out := make([]Family, len(r.engines))
	for i, e := range r.engines {
		out[i] = e.Family()
	}
	return out
}

// RunAll runs RunDaily on every family in order.
func (r *Registry) RunAll(ctx context.Context, trigger string) []RunSummary {
	out := make([]RunSummary, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e.RunDaily(ctx, trigger))
	}
	return out
}

var _ DailyRunner = (*Registry)(nil)
