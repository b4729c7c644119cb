// Package schema resolves the default schema config and its per-schema
// overrides into an immutable lookup table built once at startup.
package schema

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ncubeanalytics/ingest/internal/apperror"
	"github.com/ncubeanalytics/ingest/internal/config"
)

// Table is the resolved, immutable schema configuration: one default plus
// zero or more per-schema overrides, each already normalized and
// validated against the producer pool.
type Table struct {
	entries       map[string]*config.SchemaConfig
	defaultConfig *config.SchemaConfig
}

// Get returns the override registered for schemaID, if any. It never
// falls back to the default; callers that want default-or-override
// behavior should use Resolve.
func (t *Table) Get(schemaID string) (*config.SchemaConfig, bool) {
	c, ok := t.entries[schemaID]
	return c, ok
}

// Default returns the table's default schema config.
func (t *Table) Default() *config.SchemaConfig {
	return t.defaultConfig
}

// Resolve returns the SchemaConfig to apply for schemaID: its override if
// one is registered, otherwise the default.
func (t *Table) Resolve(schemaID string) *config.SchemaConfig {
	if c, ok := t.entries[schemaID]; ok {
		return c
	}
	return t.defaultConfig
}

// Resolve builds a Table from the default schema config and its
// overrides. producerNames is the set of names the producer pool
// actually constructed; every producer_name referenced here must be a
// member of it.
//
// Every absent field in an override inherits from the default. Allowed
// methods are validated as HTTP method tokens, uppercased, sorted, and
// de-duplicated. A duplicate schema_id across overrides is fatal, as is
// a duplicate default or duplicate method under two processor bindings
// of the same schema.
func Resolve(defaultCfg config.SchemaConfig, overrides []config.SchemaConfigEntry, producerNames []string) (*Table, error) {
	producers := make(map[string]bool, len(producerNames))
	for _, n := range producerNames {
		producers[n] = true
	}

	normalizedDefault, err := normalizeSchemaConfig("default", defaultCfg, producers)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*config.SchemaConfig, len(overrides))
	for _, entry := range overrides {
		if _, exists := entries[entry.SchemaID]; exists {
			return nil, apperror.ErrConfigDuplicateSchema.WithDetails("schema_id", entry.SchemaID)
		}

		merged := mergeSchemaConfig(*normalizedDefault, entry.SchemaConfig)
		normalized, err := normalizeSchemaConfig(entry.SchemaID, merged, producers)
		if err != nil {
			return nil, err
		}
		entries[entry.SchemaID] = normalized
	}

	return &Table{entries: entries, defaultConfig: normalizedDefault}, nil
}

// mergeSchemaConfig overlays override's explicitly-set fields onto def.
// Processors are never merged field-by-field: an override's own binding
// list fully replaces the default's for that schema, since processor
// precedence between schema-specific and global bindings is resolved
// later by the processor registry, which holds both lists separately.
func mergeSchemaConfig(def, override config.SchemaConfig) config.SchemaConfig {
	merged := def
	merged.Processors = override.Processors

	if override.DestinationTopic != "" {
		merged.DestinationTopic = override.DestinationTopic
	}
	if override.ProducerName != "" {
		merged.ProducerName = override.ProducerName
	}
	if len(override.AllowedMethods) > 0 {
		merged.AllowedMethods = override.AllowedMethods
	}
	if override.ResponseStatus != 0 {
		merged.ResponseStatus = override.ResponseStatus
	}
	if override.ContentTypeFromHeader != nil {
		merged.ContentTypeFromHeader = override.ContentTypeFromHeader
	}
	if override.ContentType != "" {
		merged.ContentType = override.ContentType
	}
	if override.ForwardURL {
		merged.ForwardURL = true
	}
	if override.ForwardMethod {
		merged.ForwardMethod = true
	}
	if override.ForwardHTTPHeaders {
		merged.ForwardHTTPHeaders = true
	}
	if override.ForwardIngestVersion != nil {
		merged.ForwardIngestVersion = override.ForwardIngestVersion
	}
	if override.MaxEventSizeBytes != 0 {
		merged.MaxEventSizeBytes = override.MaxEventSizeBytes
	}
	return merged
}

// normalizeSchemaConfig fills in field-level defaults, validates the
// producer reference and method list, and checks this schema's own
// processor bindings for overlap. label identifies the schema in error
// details ("default" or the schema_id).
func normalizeSchemaConfig(label string, c config.SchemaConfig, producers map[string]bool) (*config.SchemaConfig, error) {
	normalized := c

	if normalized.ProducerName == "" {
		normalized.ProducerName = "main"
	}
	if !producers[normalized.ProducerName] {
		return nil, apperror.ErrConfigUnknownProducer.
			WithDetails("schema", label).
			WithDetails("producer_name", normalized.ProducerName)
	}

	if len(normalized.AllowedMethods) == 0 {
		normalized.AllowedMethods = []string{"POST"}
	}
	methods, err := normalizeMethods(normalized.AllowedMethods)
	if err != nil {
		return nil, apperror.ErrConfigInvalid.
			WithDetails("schema", label).
			WithDetails("cause", err.Error())
	}
	normalized.AllowedMethods = methods

	if normalized.ResponseStatus == 0 {
		normalized.ResponseStatus = http.StatusOK
	}
	if normalized.ContentTypeFromHeader == nil {
		enabled := true
		normalized.ContentTypeFromHeader = &enabled
	}
	if normalized.ForwardIngestVersion == nil {
		enabled := true
		normalized.ForwardIngestVersion = &enabled
	}

	if err := validateBindings(label, normalized.Processors); err != nil {
		return nil, err
	}

	return &normalized, nil
}

// normalizeMethods uppercases, validates, de-duplicates, and sorts a
// method list.
func normalizeMethods(methods []string) ([]string, error) {
	seen := make(map[string]bool, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		upper := strings.ToUpper(m)
		if !config.ValidMethod(upper) {
			return nil, &invalidMethodError{method: m}
		}
		if seen[upper] {
			continue
		}
		seen[upper] = true
		out = append(out, upper)
	}
	sort.Strings(out)
	return out, nil
}

type invalidMethodError struct {
	method string
}

func (e *invalidMethodError) Error() string {
	return "invalid HTTP method token: " + e.method
}

// validateBindings checks that a schema's own processor bindings don't
// overlap: at most one binding with no Methods (the schema-default
// binding), and no method claimed by two bindings.
func validateBindings(label string, bindings []config.ProcessorBinding) error {
	seenDefault := false
	seenMethods := make(map[string]bool)

	for _, b := range bindings {
		if len(b.Methods) == 0 {
			if seenDefault {
				return apperror.ErrConfigDuplicateProcessorBinding.
					WithDetails("schema", label).
					WithDetails("callable_path", b.CallablePath)
			}
			seenDefault = true
			continue
		}

		for _, m := range b.Methods {
			upper := strings.ToUpper(m)
			if seenMethods[upper] {
				return apperror.ErrConfigDuplicateProcessorBinding.
					WithDetails("schema", label).
					WithDetails("method", upper).
					WithDetails("callable_path", b.CallablePath)
			}
			seenMethods[upper] = true
		}
	}

	return nil
}
