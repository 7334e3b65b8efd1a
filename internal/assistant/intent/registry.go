package intent

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/catalog.yaml catalog/catalog.schema.json
var catalogFS embed.FS

// catalogDocument is the top-level shape of an intent catalog file.
type catalogDocument struct {
	Version int          `yaml:"version"`
	Intents []Definition `yaml:"intents"`
}

// CatalogVersion is the only catalog document version this build understands.
const CatalogVersion = 1

// Registry is the static, read-only catalog of governed intents. It is built
// once at startup; lookups are safe for concurrent use.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry builds a Registry from already-parsed definitions, rejecting
// duplicates and structurally invalid entries.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for i := range defs {
		d := defs[i]
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("intent catalog: intents[%d] (%q): %w", i, d.ID, err)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("intent catalog: duplicate intent id %q", d.ID)
		}
		r.defs[d.ID] = &d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// LoadCatalog parses and schema-validates a YAML catalog document, returning
// its definitions. Schema violations and version mismatches fail loading with
// a descriptive error; nothing is partially loaded.
func LoadCatalog(data []byte) ([]Definition, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("intent catalog: parse: %w", err)
	}
	if doc.Version != CatalogVersion {
		return nil, fmt.Errorf("intent catalog: version must be %d, got %d", CatalogVersion, doc.Version)
	}
	return doc.Intents, nil
}

// DefaultRegistry builds the Registry from the embedded default catalog.
func DefaultRegistry() (*Registry, error) {
	data, err := catalogFS.ReadFile("catalog/catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("intent catalog: read embedded catalog: %w", err)
	}
	defs, err := LoadCatalog(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(defs)
}

// Get returns the definition for id, reporting whether it exists.
func (r *Registry) Get(id string) (*Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// List returns all definitions in catalog order.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// IDs returns all intent ids in catalog order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// validateAgainstSchema checks the raw YAML document against the embedded
// JSON schema. The YAML is round-tripped through encoding/json so the schema
// library sees canonical JSON types.
func validateAgainstSchema(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("intent catalog: parse: %w", err)
	}

	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("intent catalog: canonicalize: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("intent catalog: canonicalize: %w", err)
	}

	schemaBytes, err := catalogFS.ReadFile("catalog/catalog.schema.json")
	if err != nil {
		return fmt.Errorf("intent catalog: read schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("intent catalog: load schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		return fmt.Errorf("intent catalog: compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("intent catalog: schema validation: %w", err)
	}
	return nil
}
