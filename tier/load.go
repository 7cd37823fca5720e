package tier

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a tier table:
//
//	tiers:
//	  - tier: base
//	    minimum_amount: 0.01
//	    depth_multiplier: 1
//	    description: Standard settlement
type File struct {
	Tiers []Config `yaml:"tiers"`
}

// LoadPolicy decodes a YAML tier table and builds a Policy from it.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode tier table: %v", ErrInvalidConfig, err)
	}
	return NewPolicy(f.Tiers...)
}

// LoadPolicyFile reads a YAML tier table from path.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tier: open %s: %w", path, err)
	}
	defer f.Close()

	return LoadPolicy(f)
}

// MarshalYAML renders the policy as a tier table.
func (p *Policy) MarshalYAML() (any, error) {
	return File{Tiers: p.Configs()}, nil
}
