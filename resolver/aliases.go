package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// builtinAliases maps everyday shorthand to canonical comuna names as
// they appear in the MINSAL feed. The values are matched through the
// normalizer, so accents and casing in this table do not matter.
var builtinAliases = map[string]string{
	"stgo":            "Santiago",
	"santiago centro": "Santiago",
	"vina":            "Viña del Mar",
	"viña":            "Viña del Mar",
	"valpo":           "Valparaíso",
	"conce":           "Concepción",
	"pto montt":       "Puerto Montt",
	"pto varas":       "Puerto Varas",
	"antofa":          "Antofagasta",
}

// BuiltinAliases returns a copy of the built-in shorthand table.
func BuiltinAliases() map[string]string {
	out := make(map[string]string, len(builtinAliases))
	for k, v := range builtinAliases {
		out[k] = v
	}
	return out
}

// LoadAliases merges an optional YAML alias file over the built-in
// table. The file is a flat mapping of shorthand to canonical name:
//
//	stgo: Santiago
//	la calera: Calera
//
// An empty path returns just the built-ins.
func LoadAliases(path string) (map[string]string, error) {
	merged := BuiltinAliases()
	if path == "" {
		return merged, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading aliases file: %w", err)
	}

	extra := make(map[string]string)
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("parsing aliases file %s: %w", path, err)
	}

	for alias, canonical := range extra {
		if alias == "" || canonical == "" {
			continue
		}
		merged[alias] = canonical
	}
	return merged, nil
}
