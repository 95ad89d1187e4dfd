package hyper

import (
	"iter"
)

// GridSearch enumerates the Cartesian product of a Space.
type GridSearch struct {
	space Space
}

// NewGridSearch validates space and returns a grid over it.
func NewGridSearch(space Space) (*GridSearch, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	cp := make(Space, len(space))
	for i, p := range space {
		cp[i] = Param{Name: p.Name, Values: append([]any(nil), p.Values...)}
	}
	return &GridSearch{space: cp}, nil
}

// Space returns the searched space.
func (g *GridSearch) Space() Space {
	return g.space
}

// Len returns the number of sets Enumerate yields.
func (g *GridSearch) Len() int {
	n := 1
	for _, p := range g.space {
		n *= len(p.Values)
	}
	return n
}

// Enumerate lazily yields every combination. The last declared parameter
// varies fastest, and every call yields the same sequence.
//
// For {a:[1,2], b:[10,20]} the order is
// {a:1,b:10}, {a:1,b:20}, {a:2,b:10}, {a:2,b:20}.
func (g *GridSearch) Enumerate() iter.Seq[Set] {
	return func(yield func(Set) bool) {
		idx := make([]int, len(g.space))
		for {
			entries := make([]Entry, len(g.space))
			for i, p := range g.space {
				entries[i] = Entry{Name: p.Name, Value: p.Values[idx[i]]}
			}
			if !yield(Set{entries: entries}) {
				return
			}

			// Odometer increment from the last parameter.
			d := len(idx) - 1
			for ; d >= 0; d-- {
				idx[d]++
				if idx[d] < len(g.space[d].Values) {
					break
				}
				idx[d] = 0
			}
			if d < 0 {
				return
			}
		}
	}
}
