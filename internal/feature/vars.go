// Package feature builds the per-region feature table: join, rate
// derivation, collinearity flagging, and standardization.
package feature

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RateSpec derives a normalized rate column from two raw count columns:
// name = count / per * scale.
type RateSpec struct {
	Name  string  `yaml:"name"`
	Count string  `yaml:"count"`
	Per   string  `yaml:"per"`
	Scale float64 `yaml:"scale"`
}

// VarSpec declares the variables of a run: rate derivations applied to the
// joined table, and the subset of columns retained for clustering. An empty
// Keep list retains every numeric column, raw and derived.
type VarSpec struct {
	Rates []RateSpec `yaml:"rates"`
	Keep  []string   `yaml:"keep"`
}

// LoadVarSpec reads a variable definition file. Unknown YAML fields are
// rejected so a typo cannot silently drop a derivation.
func LoadVarSpec(path string) (*VarSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: open vars file %s", path)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var spec VarSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, eris.Wrapf(err, "feature: parse vars file %s", path)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that derivations are well-formed before any data work.
func (s *VarSpec) Validate() error {
	seen := make(map[string]bool, len(s.Rates))
	for i, r := range s.Rates {
		if r.Name == "" {
			return eris.Errorf("feature: rate %d has no name", i)
		}
		if seen[r.Name] {
			return eris.Errorf("feature: duplicate rate name %q", r.Name)
		}
		seen[r.Name] = true
		if r.Count == "" || r.Per == "" {
			return eris.Errorf("feature: rate %q needs both count and per columns", r.Name)
		}
		if r.Scale <= 0 {
			return eris.Errorf("feature: rate %q scale must be positive (got %g)", r.Name, r.Scale)
		}
	}
	return nil
}
