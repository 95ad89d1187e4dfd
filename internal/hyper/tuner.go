package hyper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// Objective scores one hyperparameter set. Higher is better.
type Objective func(ctx context.Context, set Set) (float64, error)

// Trial is one evaluated set.
type Trial struct {
	Index int
	Set   Set
	Score float64
}

// Tuner drives an objective over a space and returns the best trial.
//
// Ties keep the first trial encountered. NaN scores never beat a number.
// An objective error aborts the search and is returned wrapped with the
// offending set.
type Tuner interface {
	Tune(ctx context.Context, objective Objective) (Trial, error)
}

// better reports whether score a beats the current best b.
func better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return math.IsNaN(b) || a > b
}

// CellError reports the set whose evaluation failed.
type CellError struct {
	Index int
	Set   Set
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("trial %d %s: %v", e.Index, e.Set, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// GridTuner evaluates every set of a GridSearch in order.
type GridTuner struct {
	Grid *GridSearch
}

// Tune implements Tuner. The context is checked between sets.
func (g *GridTuner) Tune(ctx context.Context, objective Objective) (Trial, error) {
	best := Trial{Index: -1, Score: math.NaN()}
	i := 0
	for set := range g.Grid.Enumerate() {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		score, err := objective(ctx, set)
		if err != nil {
			return best, &CellError{Index: i, Set: set, Err: err}
		}
		if best.Index < 0 || better(score, best.Score) {
			best = Trial{Index: i, Set: set, Score: score}
		}
		i++
	}
	return best, nil
}

// MayflyTuner searches numeric parameters continuously with the mayfly
// algorithm. Each numeric parameter ranges over [min, max] of its candidate
// values; integer candidates produce rounded integer values. Non-numeric
// parameters are fixed to their first candidate.
type MayflyTuner struct {
	Space      Space
	Iterations int
	Population int
	Seed       int64
}

type dimension struct {
	slot     int // position in the template set
	lo, hi   float64
	integral bool
}

// Tune implements Tuner. Mayfly minimizes, so the negated score is used as cost.
func (m *MayflyTuner) Tune(ctx context.Context, objective Objective) (Trial, error) {
	if err := m.Space.Validate(); err != nil {
		return Trial{}, err
	}

	template, dims := m.split()
	if len(dims) == 0 {
		grid, err := NewGridSearch(m.Space)
		if err != nil {
			return Trial{}, err
		}
		return (&GridTuner{Grid: grid}).Tune(ctx, objective)
	}

	var (
		best     = Trial{Index: -1, Score: math.NaN()}
		firstErr error
		n        int
	)

	cost := func(pos []float64) float64 {
		if firstErr != nil {
			return math.Inf(1)
		}
		if err := ctx.Err(); err != nil {
			firstErr = err
			return math.Inf(1)
		}
		entries := append([]Entry(nil), template...)
		for i, d := range dims {
			entries[d.slot].Value = d.value(pos[i])
		}
		set := Set{entries: entries}
		score, err := objective(ctx, set)
		if err != nil {
			firstErr = &CellError{Index: n, Set: set, Err: err}
			return math.Inf(1)
		}
		if best.Index < 0 || better(score, best.Score) {
			best = Trial{Index: n, Set: set, Score: score}
		}
		n++
		if math.IsNaN(score) {
			return math.Inf(1)
		}
		return -score
	}

	// Positions live in the unit cube; each dimension rescales to its own range.
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = cost
	config.ProblemSize = len(dims)
	config.MaxIterations = max(m.Iterations, 1)
	config.NPop = max(m.Population, 4)
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.Seed))

	if _, err := mayfly.Optimize(config); err != nil && firstErr == nil {
		return best, fmt.Errorf("mayfly: %w", err)
	}
	if firstErr != nil {
		return best, firstErr
	}
	if best.Index < 0 {
		return best, errors.New("mayfly: objective was never evaluated")
	}
	return best, nil
}

// split returns the set template in declaration order, with every
// parameter at its first candidate, and the numeric ranges to search.
func (m *MayflyTuner) split() ([]Entry, []dimension) {
	template := make([]Entry, len(m.Space))
	var dims []dimension
	for slot, p := range m.Space {
		template[slot] = Entry{Name: p.Name, Value: p.Values[0]}

		d := dimension{slot: slot, lo: math.Inf(1), hi: math.Inf(-1), integral: true}
		numeric := true
		for _, v := range p.Values {
			f, ok := toFloat(v)
			if !ok {
				numeric = false
				break
			}
			d.lo = math.Min(d.lo, f)
			d.hi = math.Max(d.hi, f)
			if _, isInt := v.(int); !isInt {
				d.integral = false
			}
		}
		if numeric && d.lo < d.hi {
			dims = append(dims, d)
		}
	}
	return template, dims
}

// value maps a unit-cube coordinate into the dimension's range.
func (d dimension) value(u float64) any {
	u = math.Min(math.Max(u, 0), 1)
	v := d.lo + u*(d.hi-d.lo)
	if d.integral {
		return int(math.Round(v))
	}
	return v
}

// NewTuner builds the tuner named by strategy ("grid" or "mayfly").
func NewTuner(strategy string, space Space, iterations, population int, seed int64) (Tuner, error) {
	switch strategy {
	case "", "grid":
		grid, err := NewGridSearch(space)
		if err != nil {
			return nil, err
		}
		return &GridTuner{Grid: grid}, nil
	case "mayfly":
		if err := space.Validate(); err != nil {
			return nil, err
		}
		return &MayflyTuner{Space: space, Iterations: iterations, Population: population, Seed: seed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown search strategy %q", errdefs.ErrInvalidConfiguration, strategy)
	}
}
