package processor

import (
	"strings"

	"github.com/ncubeanalytics/ingest/internal/config"
)

// scopedBindings is one level of the precedence chain: a method-bound
// map plus at most one default (method-less) handle.
type scopedBindings struct {
	byMethod map[string]*Handle
	def      *Handle
}

// Registry hosts every loaded plug-in handle and resolves, for a given
// (schema-id, method) pair, which one applies with precedence
// schema-specific method-bound > schema-specific default > global
// method-bound > global default.
type Registry struct {
	handles   map[string]*Handle // keyed by callable_path; shared across bindings that reference the same plug-in
	global    scopedBindings
	perSchema map[string]scopedBindings
	pool      *blockingPool
}

// Build loads every plug-in referenced by defaultBindings (the schema
// table's default, i.e. "global" bindings) and by schemaBindings (keyed
// by schema_id). workers sizes the dedicated blocking-call pool.
func Build(defaultBindings []config.ProcessorBinding, schemaBindings map[string][]config.ProcessorBinding, workers int) (*Registry, error) {
	r := &Registry{
		handles:   make(map[string]*Handle),
		perSchema: make(map[string]scopedBindings, len(schemaBindings)),
		pool:      newBlockingPool(workers),
	}

	global, err := r.buildScoped(defaultBindings)
	if err != nil {
		return nil, err
	}
	r.global = global

	for schemaID, bindings := range schemaBindings {
		scoped, err := r.buildScoped(bindings)
		if err != nil {
			return nil, err
		}
		r.perSchema[schemaID] = scoped
	}

	return r, nil
}

func (r *Registry) buildScoped(bindings []config.ProcessorBinding) (scopedBindings, error) {
	scoped := scopedBindings{byMethod: make(map[string]*Handle, len(bindings))}

	for _, b := range bindings {
		h, err := r.handleFor(b)
		if err != nil {
			return scopedBindings{}, err
		}

		if len(b.Methods) == 0 {
			scoped.def = h
			continue
		}
		for _, m := range b.Methods {
			scoped.byMethod[strings.ToUpper(m)] = h
		}
	}

	return scoped, nil
}

func (r *Registry) handleFor(b config.ProcessorBinding) (*Handle, error) {
	if h, ok := r.handles[b.CallablePath]; ok {
		return h, nil
	}
	h, err := loadHandle(b.CallablePath, b.ProcessIsBlocking, b.HeadIsBlocking, r.pool)
	if err != nil {
		return nil, err
	}
	r.handles[b.CallablePath] = h
	return h, nil
}

// Resolve returns the handle bound to (schemaID, method) per the
// precedence order, or false if nothing applies.
func (r *Registry) Resolve(schemaID, method string) (*Handle, bool) {
	method = strings.ToUpper(method)

	if scoped, ok := r.perSchema[schemaID]; ok {
		if h, ok := scoped.byMethod[method]; ok {
			return h, true
		}
		if scoped.def != nil {
			return scoped.def, true
		}
	}

	if h, ok := r.global.byMethod[method]; ok {
		return h, true
	}
	if r.global.def != nil {
		return r.global.def, true
	}

	return nil, false
}

// Close stops the blocking-call pool. Call during shutdown.
func (r *Registry) Close() {
	r.pool.Close()
}
