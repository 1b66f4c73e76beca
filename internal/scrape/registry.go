package scrape

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed config/endpoints.yaml
var endpointsYAML embed.FS

// ListingEndpoint is one category-specific listing API on the registry site.
type ListingEndpoint struct {
	Category    string `yaml:"category"`
	Path        string `yaml:"path"`
	Description string `yaml:"description"`
}

// Registry holds the known listing endpoints, loaded from the embedded
// endpoints.yaml.
type Registry struct {
	Endpoints []ListingEndpoint `yaml:"endpoints"`
}

func LoadRegistry() (*Registry, error) {
	data, err := endpointsYAML.ReadFile("config/endpoints.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded endpoints: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing endpoints.yaml: %w", err)
	}
	if len(reg.Endpoints) == 0 {
		return nil, fmt.Errorf("endpoints.yaml defines no endpoints")
	}
	return &reg, nil
}

// Categories returns all known category keys, sorted.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.Endpoints))
	for _, e := range r.Endpoints {
		out = append(out, e.Category)
	}
	sort.Strings(out)
	return out
}

// Endpoint looks up the listing path for a category.
func (r *Registry) Endpoint(category string) (ListingEndpoint, bool) {
	for _, e := range r.Endpoints {
		if e.Category == category {
			return e, true
		}
	}
	return ListingEndpoint{}, false
}
