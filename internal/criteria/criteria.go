// Package criteria models the versioned rule set a role is screened against.
// Versions are append-only: editing criteria creates a new version so past
// evaluation results stay reproducible against the version that produced
// them.
package criteria

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Criterion is a single named requirement with a human-readable description.
type Criterion struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
}

// GatingParam is a criterion whose Met status alone causes rejection,
// independent of must-have outcomes. Disabled params are carried in the
// version but never judged.
type GatingParam struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// Definition is the operator-authored criteria document, loaded from YAML.
type Definition struct {
	MustHaves    []Criterion   `yaml:"must_haves" json:"must_haves"`
	GatingParams []GatingParam `yaml:"gating_params" json:"gating_params"`
	NiceToHaves  []Criterion   `yaml:"nice_to_haves" json:"nice_to_haves"`
}

// Version is one immutable snapshot of a role's criteria.
type Version struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Number    int       `json:"number"`
	CreatedAt time.Time `json:"created_at"`
	Definition
}

// LoadDefinition reads and validates a criteria YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading criteria file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing criteria file %s: %w", path, err)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("criteria file %s: %w", path, err)
	}

	return &def, nil
}

// Validate checks that the definition is usable for a run: at least one
// must-have, and every criterion ID non-empty and unique across all three
// collections. A run against an invalid definition would corrupt every
// result, so this is fatal before any candidate is processed.
func (d *Definition) Validate() error {
	if len(d.MustHaves) == 0 {
		return fmt.Errorf("at least one must-have criterion is required")
	}

	seen := make(map[string]bool)
	check := func(id, kind string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("%s criterion with empty id", kind)
		}
		if seen[id] {
			return fmt.Errorf("duplicate criterion id %q", id)
		}
		seen[id] = true
		return nil
	}

	for _, c := range d.MustHaves {
		if err := check(c.ID, "must-have"); err != nil {
			return err
		}
	}
	for _, g := range d.GatingParams {
		if err := check(g.ID, "gating"); err != nil {
			return err
		}
	}
	for _, c := range d.NiceToHaves {
		if err := check(c.ID, "nice-to-have"); err != nil {
			return err
		}
	}

	return nil
}

// Lookup returns the description for a criterion ID from any collection.
func (d *Definition) Lookup(id string) (string, bool) {
	for _, c := range d.MustHaves {
		if c.ID == id {
			return c.Description, true
		}
	}
	for _, g := range d.GatingParams {
		if g.ID == id {
			return g.Description, true
		}
	}
	for _, c := range d.NiceToHaves {
		if c.ID == id {
			return c.Description, true
		}
	}
	return "", false
}

// EnabledGating returns only the gating parameters that should be judged.
func (d *Definition) EnabledGating() []GatingParam {
	var enabled []GatingParam
	for _, g := range d.GatingParams {
		if g.Enabled {
			enabled = append(enabled, g)
		}
	}
	return enabled
}
