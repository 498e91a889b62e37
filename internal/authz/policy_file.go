package authz

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned for policy documents naming unknown actions or capacities.
var ErrInvalidPolicy = errors.New("invalid policy")

// PolicyFile is the YAML form of a permission matrix. Rules listed here
// replace the default rule for the same action; other actions keep their
// defaults.
//
//	rules:
//	  "transition:PROPOSAL_STAGE": [facilitator, circle_lead]
//	  objection.raise: [circle_member]
type PolicyFile struct {
	Rules map[Action][]Capacity `yaml:"rules"`
}

// Validate checks every action and capacity in the document.
func (f *PolicyFile) Validate() error {
	var errs []error
	for _, action := range slices.Sorted(maps.Keys(f.Rules)) {
		if !action.IsValid() {
			errs = append(errs, fmt.Errorf("%w: unknown action %q", ErrInvalidPolicy, action))
			continue
		}
		for _, c := range f.Rules[action] {
			if !c.IsValid() {
				errs = append(errs, fmt.Errorf("%w: unknown capacity %q for %s", ErrInvalidPolicy, c, action))
			}
		}
	}
	return errors.Join(errs...)
}

// ParsePolicy decodes a YAML policy document and merges it over the defaults.
func ParsePolicy(r io.Reader) (*Policy, error) {
	var f PolicyFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	p := DefaultPolicy()
	for action, caps := range f.Rules {
		p.rules[action] = slices.Clone(caps)
	}
	return p, nil
}

// LoadPolicy reads a policy file. An empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicy(bytes.NewReader(data))
}

// Marshal renders the effective policy as YAML.
func (p *Policy) Marshal() ([]byte, error) {
	f := PolicyFile{Rules: make(map[Action][]Capacity, len(p.rules))}
	for action, caps := range p.rules {
		f.Rules[action] = slices.Clone(caps)
	}
	return yaml.Marshal(&f)
}
