// Package traj defines the flat trajectory vector layout shared between the
// expert data pipeline and the policy head, and the codec that slices one
// vector into its position, yaw, time and existence components.
//
// A trajectory is a single flat vector of length P+Y+2: P position control
// points, Y yaw control points, one time scalar and one existence indicator.
// Expert data carries the existence indicator as exactly -1 or +1; predicted
// data carries a continuous score that training pushes towards those poles.
package traj

import (
	"fmt"
	"math"
)

// Layout holds the control-point counts that fix the trajectory vector
// layout for a run. It is validated once at engine construction; shapes are
// never re-derived from incoming data.
type Layout struct {
	PosCtrlPts int // number of position control points, > 0
	YawCtrlPts int // number of yaw control points, >= 0
}

// VectorLen returns the expected flat vector length for this layout.
func (l Layout) VectorLen() int {
	return l.PosCtrlPts + l.YawCtrlPts + 2
}

// Validate checks the layout's control-point counts.
func (l Layout) Validate() error {
	if l.PosCtrlPts <= 0 {
		return fmt.Errorf("traj: position control point count must be positive, got %d", l.PosCtrlPts)
	}
	if l.YawCtrlPts < 0 {
		return fmt.Errorf("traj: yaw control point count must be non-negative, got %d", l.YawCtrlPts)
	}
	return nil
}

// ShapeError reports a mismatch between a value's size and the size the
// configured layout requires. It always indicates bad configuration or a bad
// data pipeline upstream; there is no recovery path.
type ShapeError struct {
	Context string // which value was malformed, e.g. "expert[3][1]"
	Got     int
	Want    int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("traj: %s: size %d, want %d", e.Context, e.Got, e.Want)
}

// Trajectory is one flat trajectory vector. All accessors are O(1) views
// into the underlying slice; nothing is copied.
type Trajectory []float64

// Check validates the vector length against the layout. context names the
// value in the resulting ShapeError.
func (tr Trajectory) Check(l Layout, context string) error {
	if len(tr) != l.VectorLen() {
		return &ShapeError{Context: context, Got: len(tr), Want: l.VectorLen()}
	}
	return nil
}

// Pos returns the position control-point view.
func (tr Trajectory) Pos(l Layout) []float64 {
	return tr[:l.PosCtrlPts]
}

// Yaw returns the yaw control-point view. Empty when the layout has no yaw
// control points.
func (tr Trajectory) Yaw(l Layout) []float64 {
	return tr[l.PosCtrlPts : l.PosCtrlPts+l.YawCtrlPts]
}

// Time returns the trajectory's time scalar.
func (tr Trajectory) Time(l Layout) float64 {
	return tr[l.PosCtrlPts+l.YawCtrlPts]
}

// Existence returns the raw existence indicator (±1 for expert data, a
// continuous score for predictions).
func (tr Trajectory) Existence(l Layout) float64 {
	return tr[l.PosCtrlPts+l.YawCtrlPts+1]
}

// Exists reports whether the existence indicator rounds to +1, i.e. whether
// this slot holds a real trajectory rather than an empty one.
func (tr Trajectory) Exists(l Layout) bool {
	return math.Round(tr.Existence(l)) == 1
}

// Set is the ordered group of candidate trajectories for one sample. Expert
// and predicted sets within a sample always have the same size K.
type Set []Trajectory

// Check validates every trajectory in the set. context names the set in
// resulting errors; the failing slot index is appended.
func (s Set) Check(l Layout, context string) error {
	for i, tr := range s {
		if err := tr.Check(l, fmt.Sprintf("%s[%d]", context, i)); err != nil {
			return err
		}
	}
	return nil
}

// Batch pairs expert and predicted trajectory sets for N samples. Index i of
// Expert and Predicted describe the same sample.
type Batch struct {
	Expert    []Set
	Predicted []Set
}

// Len returns the number of samples N.
func (b Batch) Len() int { return len(b.Expert) }

// Hypotheses returns the per-sample set size K, or 0 for an empty batch.
func (b Batch) Hypotheses() int {
	if len(b.Expert) == 0 {
		return 0
	}
	return len(b.Expert[0])
}

// Validate checks the batch wholesale: expert/predicted sample counts match,
// every set has the same size K, and every vector matches the layout.
func (b Batch) Validate(l Layout) error {
	if len(b.Expert) != len(b.Predicted) {
		return &ShapeError{Context: "predicted batch", Got: len(b.Predicted), Want: len(b.Expert)}
	}
	k := b.Hypotheses()
	for i := range b.Expert {
		if len(b.Expert[i]) != k {
			return &ShapeError{Context: fmt.Sprintf("expert[%d]", i), Got: len(b.Expert[i]), Want: k}
		}
		if len(b.Predicted[i]) != k {
			return &ShapeError{Context: fmt.Sprintf("predicted[%d]", i), Got: len(b.Predicted[i]), Want: k}
		}
		if err := b.Expert[i].Check(l, fmt.Sprintf("expert[%d]", i)); err != nil {
			return err
		}
		if err := b.Predicted[i].Check(l, fmt.Sprintf("predicted[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}
