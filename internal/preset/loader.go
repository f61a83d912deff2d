package preset

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads, defaults, and validates a preset/schedule document.
// A missing path is not an error: the engine then runs with the built-in
// Default preset.
func Load(path string) (Document, error) {
	var doc Document
	if path == "" {
		return doc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read presets: %w", err)
	}
	return Parse(b)
}

// Parse decodes a preset document from YAML bytes.
func Parse(b []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse presets: %w", err)
	}
	for i := range doc.Presets {
		if err := defaults.Set(&doc.Presets[i]); err != nil {
			return doc, fmt.Errorf("apply preset defaults: %w", err)
		}
	}
	if err := validate.Struct(&doc); err != nil {
		return doc, fmt.Errorf("validate presets: %w", err)
	}

	// every schedule must reference a declared preset
	names := make(map[string]bool, len(doc.Presets))
	for _, p := range doc.Presets {
		if names[p.Name] {
			return doc, fmt.Errorf("duplicate preset %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, s := range doc.Schedules {
		if !names[s.Preset] {
			return doc, fmt.Errorf("schedule references unknown preset %q", s.Preset)
		}
	}
	return doc, nil
}
