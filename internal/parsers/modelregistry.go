package parsers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// modelEntry is one model's row in the registry file. Only name and kebab
// are required; the remaining token forms derive from kebab when omitted.
type modelEntry struct {
	Name           string `yaml:"name"`
	Kebab          string `yaml:"kebab"`
	SpacePlus      string `yaml:"space_plus"`
	Passthrough    string `yaml:"passthrough"`
	Underscore     string `yaml:"underscore"`
	Series         string `yaml:"series"`
	DealerSocketID int    `yaml:"dealer_socket_id"`
}

type modelFile struct {
	Models []modelEntry `yaml:"models"`
}

// ModelRegistry maps supported model names to the token forms URL templates
// substitute. Unknown models fail URL building with UnsupportedModelError.
type ModelRegistry struct {
	tokens map[string]map[string]string
}

// DefaultModelRegistry returns the compiled-in registry covering the models
// scraped today. A models.yaml file extends or overrides these entries.
func DefaultModelRegistry() *ModelRegistry {
	r := &ModelRegistry{tokens: make(map[string]map[string]string)}
	for _, entry := range []modelEntry{
		{Name: "Land Cruiser", Kebab: "land-cruiser", SpacePlus: "Land+Cruiser", Passthrough: "Land%20Cruiser", DealerSocketID: 31377},
		{Name: "4Runner", Kebab: "4runner", SpacePlus: "4Runner", Passthrough: "4Runner", DealerSocketID: 31340},
		{Name: "Tacoma", Kebab: "tacoma", SpacePlus: "Tacoma", Passthrough: "Tacoma", DealerSocketID: 31359},
		{Name: "Tundra", Kebab: "tundra", SpacePlus: "Tundra", Passthrough: "Tundra", DealerSocketID: 31363},
	} {
		r.add(entry)
	}
	return r
}

// LoadModelRegistry reads a models.yaml file and merges it over the
// defaults. A missing path returns the defaults unchanged so a bare
// deployment still scrapes the standard models.
func LoadModelRegistry(path string) (*ModelRegistry, error) {
	r := DefaultModelRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read model registry %s: %w", path, err)
	}

	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model registry %s: %w", path, err)
	}

	for _, entry := range file.Models {
		if entry.Name == "" {
			continue
		}
		r.add(entry)
	}
	return r, nil
}

func (r *ModelRegistry) add(entry modelEntry) {
	kebab := entry.Kebab
	if kebab == "" {
		kebab = slugify(entry.Name)
	}
	underscore := entry.Underscore
	if underscore == "" {
		underscore = strings.ReplaceAll(kebab, "-", "_")
	}
	series := entry.Series
	if series == "" {
		series = strings.ReplaceAll(kebab, "-", "")
	}
	plus := entry.SpacePlus
	if plus == "" {
		plus = strings.ReplaceAll(entry.Name, " ", "+")
	}
	encoded := entry.Passthrough
	if encoded == "" {
		encoded = strings.ReplaceAll(entry.Name, " ", "%20")
	}

	tokens := map[string]string{
		"model_slug":         kebab,
		"model_plus":         plus,
		"model_name_plus":    plus,
		"model_name_encoded": encoded,
		"model_encoded":      encoded,
		"model_underscore":   underscore,
		"model_series":       series,
	}
	if entry.DealerSocketID > 0 {
		tokens["model_id"] = fmt.Sprintf("%d", entry.DealerSocketID)
	}
	r.tokens[entry.Name] = tokens
}

// Lookup returns the token map for a model, or false when unsupported.
func (r *ModelRegistry) Lookup(model string) (map[string]string, bool) {
	tokens, ok := r.tokens[model]
	return tokens, ok
}

// Slug returns the kebab form for a model, falling back to a lowercased
// hyphenation for models outside the registry. Used by the SmartPath
// fallback URL generator.
func (r *ModelRegistry) Slug(model string) string {
	if tokens, ok := r.tokens[model]; ok {
		if slug := tokens["model_slug"]; slug != "" {
			return slug
		}
	}
	return slugify(model)
}

// Models lists the registered model names in stable order.
func (r *ModelRegistry) Models() []string {
	names := make([]string, 0, len(r.tokens))
	for name := range r.tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// slugify converts a display name to its kebab URL form.
func slugify(value string) string {
	var b strings.Builder
	lastHyphen := true
	for _, ch := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			lastHyphen = false
		case ch == ' ' || ch == '-' || ch == '_':
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
