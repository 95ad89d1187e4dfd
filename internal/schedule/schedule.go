// Package schedule decides, epoch by epoch, whether training continues.
//
// A Criterion is a two-state machine, Running → Stopped. It is reused across
// independent training runs, so callers must Restart it before every run;
// Restart zeroes all counters.
package schedule

import (
	"fmt"
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// State is the state of a criterion.
type State int

// Criterion states.
const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Criterion is a stopping policy.
type Criterion interface {
	// ShouldContinue reports whether another epoch should run after epoch
	// epochs have completed with the given validation metric.
	ShouldContinue(epoch int, metric float64) bool
	// Restart returns the criterion to Running with zeroed counters.
	Restart()
	// State returns the current state.
	State() State
}

// Constant stops once epoch >= N.
type Constant struct {
	n     int
	state State
}

// NewConstant creates a fixed-length criterion.
func NewConstant(n int) (*Constant, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: constant stopping needs N > 0, got %d", errdefs.ErrInvalidConfiguration, n)
	}
	return &Constant{n: n}, nil
}

// ShouldContinue implements Criterion.
func (c *Constant) ShouldContinue(epoch int, _ float64) bool {
	if c.state == Stopped {
		return false
	}
	if epoch >= c.n {
		c.state = Stopped
		return false
	}
	return true
}

// Restart implements Criterion.
func (c *Constant) Restart() { c.state = Running }

// State implements Criterion.
func (c *Constant) State() State { return c.state }

func (c *Constant) String() string { return fmt.Sprintf("Constant(%d)", c.n) }

// Patience stops after the metric has not improved by more than MinDelta
// for a number of consecutive epochs. A positive MaxEpochs caps the run.
// A NaN metric never counts as an improvement.
type Patience struct {
	patience  int
	minDelta  float64
	maxEpochs int

	state     State
	best      float64
	seen      bool
	sinceBest int
}

// NewPatience creates a patience criterion.
func NewPatience(patience int, minDelta float64, maxEpochs int) (*Patience, error) {
	switch {
	case patience <= 0:
		return nil, fmt.Errorf("%w: patience must be > 0, got %d", errdefs.ErrInvalidConfiguration, patience)
	case minDelta < 0 || math.IsNaN(minDelta):
		return nil, fmt.Errorf("%w: min_delta must be >= 0, got %v", errdefs.ErrInvalidConfiguration, minDelta)
	case maxEpochs < 0:
		return nil, fmt.Errorf("%w: max_epochs must be >= 0, got %d", errdefs.ErrInvalidConfiguration, maxEpochs)
	}
	return &Patience{patience: patience, minDelta: minDelta, maxEpochs: maxEpochs}, nil
}

// ShouldContinue implements Criterion.
func (p *Patience) ShouldContinue(epoch int, metric float64) bool {
	if p.state == Stopped {
		return false
	}
	if !math.IsNaN(metric) && (!p.seen || metric > p.best+p.minDelta) {
		p.best = metric
		p.seen = true
		p.sinceBest = 0
	} else {
		p.sinceBest++
	}
	if p.sinceBest >= p.patience || (p.maxEpochs > 0 && epoch >= p.maxEpochs) {
		p.state = Stopped
		return false
	}
	return true
}

// Restart implements Criterion.
func (p *Patience) Restart() {
	p.state = Running
	p.best = 0
	p.seen = false
	p.sinceBest = 0
}

// State implements Criterion.
func (p *Patience) State() State { return p.state }

// Best returns the best metric seen since the last restart.
func (p *Patience) Best() (float64, bool) { return p.best, p.seen }

func (p *Patience) String() string {
	return fmt.Sprintf("Patience(%d, min_delta=%g, max_epochs=%d)", p.patience, p.minDelta, p.maxEpochs)
}

// Epochs counts completed epochs and feeds them to a criterion.
type Epochs struct {
	criterion Criterion
	elapsed   int
}

// NewEpochs wraps c.
func NewEpochs(c Criterion) *Epochs {
	return &Epochs{criterion: c}
}

// Step records one completed epoch and reports whether to continue.
func (e *Epochs) Step(metric float64) bool {
	e.elapsed++
	return e.criterion.ShouldContinue(e.elapsed, metric)
}

// Elapsed returns the number of epochs completed since the last restart.
func (e *Epochs) Elapsed() int { return e.elapsed }

// Stopped reports whether the wrapped criterion has stopped.
func (e *Epochs) Stopped() bool { return e.criterion.State() == Stopped }

// Restart zeroes the counter and restarts the criterion.
func (e *Epochs) Restart() {
	e.elapsed = 0
	e.criterion.Restart()
}

// Criterion returns the wrapped criterion.
func (e *Epochs) Criterion() Criterion { return e.criterion }
