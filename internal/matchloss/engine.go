// Package matchloss computes the set-matching imitation loss for
// multi-hypothesis trajectory policies.
//
// Expert and predicted sets for a sample are unordered: predicted slot 2 may
// be the right answer for expert slot 0. Regression error is therefore only
// meaningful after the sets have been reconciled, so each sample is scored
// in three stages: pairwise cost matrices, an optimal one-to-one matching of
// valid expert slots to predicted slots on the position costs, and an
// aggregation that combines the matched regression costs with an
// existence-score cost for every predicted slot (matched slots pushed
// towards +1, leftover slots towards -1).
//
// The engine is stateless across calls and its output is a pure function of
// its numeric inputs; gradient propagation is the host's concern. NaN or Inf
// in the inputs is never masked and flows into the returned loss.
package matchloss

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/banshee-data/trajmatch/internal/assign"
	"github.com/banshee-data/trajmatch/internal/traj"
	"gonum.org/v1/gonum/floats"
)

// Config holds the engine parameters. Layout is validated once at
// construction; per-call data is checked against it, never the other way
// round.
type Config struct {
	Layout     traj.Layout
	WeightProb float64        // weight of the existence-score term, >= 0
	Matcher    assign.Matcher // nil selects assign.Hungarian{}
	Workers    int            // per-sample fan-out; 0 selects runtime.NumCPU()
}

// DefaultConfig returns the engine defaults for a layout: the optimal
// matcher and the existence-term weight the loss was tuned with.
func DefaultConfig(layout traj.Layout) Config {
	return Config{
		Layout:     layout,
		WeightProb: 0.01,
		Matcher:    assign.Hungarian{},
	}
}

// Diagnostics are the named sub-losses reported alongside the scalar loss.
// Plain numbers only; they carry no gradient metadata.
type Diagnostics struct {
	PosLoss  float64
	YawLoss  float64
	TimeLoss float64
	ProbLoss float64
}

// Map renders the diagnostics under their log keys.
func (d Diagnostics) Map() map[string]float64 {
	return map[string]float64{
		"pos_loss":  d.PosLoss,
		"yaw_loss":  d.YawLoss,
		"time_loss": d.TimeLoss,
		"prob_loss": d.ProbLoss,
	}
}

// Engine computes the set-matching loss. Safe for concurrent use: it holds
// no mutable state between calls.
type Engine struct {
	cfg     Config
	matcher assign.Matcher
}

// NewEngine validates the configuration and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.WeightProb < 0 {
		return nil, fmt.Errorf("matchloss: existence-score weight must be non-negative, got %g", cfg.WeightProb)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("matchloss: worker count must be non-negative, got %d", cfg.Workers)
	}
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = assign.Hungarian{}
	}
	return &Engine{cfg: cfg, matcher: matcher}, nil
}

// Layout returns the trajectory layout the engine was built with.
func (e *Engine) Layout() traj.Layout { return e.cfg.Layout }

// WeightProb returns the existence-score term weight.
func (e *Engine) WeightProb() float64 { return e.cfg.WeightProb }

// itemTerms are one sample's contributions before batch normalisation.
type itemTerms struct {
	full, pos, yaw, time float64 // matched-cost sums
	probMatched          float64 // Σ over matched slots of (score-1)²
	probLeftover         float64 // Σ over leftover slots of (score+1)²
}

// ComputeLoss scores a whole batch and returns the scalar loss plus the
// diagnostic breakdown.
//
// Per sample: expert slot i is valid iff its existence indicator rounds to
// +1; invalid rows never receive a match, and a sample whose rows are all
// invalid contributes nothing to the matched costs. For K == 1 the matching
// is the identity without consulting validity, skipping the solver on a
// degenerate 1×1 instance.
//
// The existence term is intentionally asymmetric: the matched-slot sum is
// scaled by 1/(N·K) while the leftover-slot sum is not. That imbalance is
// inherited from the reference loss this engine reproduces; changing it
// changes training behaviour, so it is preserved rather than tidied up.
func (e *Engine) ComputeLoss(batch traj.Batch) (float64, Diagnostics, error) {
	if err := batch.Validate(e.cfg.Layout); err != nil {
		return 0, Diagnostics{}, err
	}
	n := batch.Len()
	k := batch.Hypotheses()
	if n == 0 {
		return 0, Diagnostics{}, fmt.Errorf("matchloss: empty batch")
	}
	if k == 0 {
		return 0, Diagnostics{}, fmt.Errorf("matchloss: batch has empty trajectory sets")
	}

	terms := make([]itemTerms, n)
	errs := make([]error, n)

	// Samples are independent; fan the per-sample work out and reduce
	// sequentially below so float summation order stays fixed.
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	var wg sync.WaitGroup
	idx := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				terms[i], errs[i] = e.scoreItem(batch.Expert[i], batch.Predicted[i])
			}
		}()
	}
	for i := 0; i < n; i++ {
		idx <- i
	}
	close(idx)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return 0, Diagnostics{}, fmt.Errorf("matchloss: sample %d: %w", i, err)
		}
	}

	full := make([]float64, n)
	pos := make([]float64, n)
	yaw := make([]float64, n)
	time := make([]float64, n)
	probMatched := make([]float64, n)
	probLeftover := make([]float64, n)
	for i, t := range terms {
		full[i] = t.full
		pos[i] = t.pos
		yaw[i] = t.yaw
		time[i] = t.time
		probMatched[i] = t.probMatched
		probLeftover[i] = t.probLeftover
	}

	norm := 1 / float64(n*k)
	probLoss := floats.Sum(probMatched)*norm + floats.Sum(probLeftover)
	diags := Diagnostics{
		PosLoss:  floats.Sum(pos) * norm,
		YawLoss:  floats.Sum(yaw) * norm,
		TimeLoss: floats.Sum(time) * norm,
		ProbLoss: probLoss,
	}
	loss := floats.Sum(full)*norm + e.cfg.WeightProb*probLoss
	return loss, diags, nil
}

// scoreItem runs the cost build, matching and per-slot scoring for one
// sample.
func (e *Engine) scoreItem(expert, predicted traj.Set) (itemTerms, error) {
	l := e.cfg.Layout
	k := len(expert)
	costs := e.costMatrices(expert, predicted)

	var a assign.Assignment
	if k == 1 {
		a = assign.Assignment{RowToCol: []int{0}}
	} else {
		valid := make([]bool, k)
		for i, tr := range expert {
			valid[i] = tr.Exists(l)
		}
		var err error
		a, err = e.matcher.Match(costs.Pos, valid)
		if err != nil {
			return itemTerms{}, err
		}
	}

	var t itemTerms
	for i, j := range a.RowToCol {
		if j == assign.Unassigned {
			continue
		}
		t.full += costs.Full.At(i, j)
		t.pos += costs.Pos.At(i, j)
		t.yaw += costs.Yaw.At(i, j)
		t.time += costs.Time.At(i, j)
	}

	matched := a.AssignedCols(k)
	for j, tr := range predicted {
		s := tr.Existence(l)
		if matched[j] {
			d := s - 1
			t.probMatched += d * d
		} else {
			d := s + 1
			t.probLeftover += d * d
		}
	}
	return t, nil
}
