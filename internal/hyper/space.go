package hyper

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// Param is one named dimension of a Space with its candidate values.
type Param struct {
	Name   string
	Values []any
}

// Space is an ordered list of parameters to search over.
//
// Declaration order matters: the last parameter varies fastest during
// grid enumeration.
type Space []Param

// NewSpace builds a validated space.
func NewSpace(params ...Param) (Space, error) {
	s := Space(params)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the space has parameters, that names are unique, and
// that every candidate list is non-empty.
func (s Space) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no parameters", errdefs.ErrEmptySpace)
	}
	seen := make(map[string]struct{}, len(s))
	for _, p := range s {
		if p.Name == "" {
			return fmt.Errorf("%w: parameter with empty name", errdefs.ErrInvalidConfiguration)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate parameter %q", errdefs.ErrInvalidConfiguration, p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: parameter %q has no candidates", errdefs.ErrEmptySpace, p.Name)
		}
	}
	return nil
}

// Names returns parameter names in declaration order.
func (s Space) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the parameter with the given name.
func (s Space) Lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// First returns the set holding every parameter at its first candidate.
// The space must be valid.
func (s Space) First() Set {
	entries := make([]Entry, len(s))
	for i, p := range s {
		entries[i] = Entry{Name: p.Name, Value: p.Values[0]}
	}
	return Set{entries: entries}
}

// UnmarshalYAML decodes a YAML mapping of name -> list (or scalar) keeping
// the mapping's key order.
//
//	lr: [0.01, 0.001]
//	batch_size: [64]
//	optimizer: adam
func (s *Space) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: hyperparameter space must be a mapping", errdefs.ErrInvalidConfiguration, node.Line)
	}

	space := make(Space, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var values []any
		switch val.Kind {
		case yaml.SequenceNode:
			if err := val.Decode(&values); err != nil {
				return fmt.Errorf("parameter %s: %w", key.Value, err)
			}
		case yaml.ScalarNode:
			var v any
			if err := val.Decode(&v); err != nil {
				return fmt.Errorf("parameter %s: %w", key.Value, err)
			}
			values = []any{v}
		default:
			return fmt.Errorf("%w: line %d: parameter %s must be a list or a scalar",
				errdefs.ErrInvalidConfiguration, val.Line, key.Value)
		}
		space = append(space, Param{Name: key.Value, Values: values})
	}

	*s = space
	return nil
}

// MarshalYAML encodes the space as an ordered mapping.
func (s Space) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range s {
		var val yaml.Node
		if err := val.Encode(p.Values); err != nil {
			return nil, err
		}
		val.Style = yaml.FlowStyle
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p.Name}, &val)
	}
	return node, nil
}
