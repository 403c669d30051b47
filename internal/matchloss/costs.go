package matchloss

import (
	"fmt"

	"github.com/banshee-data/trajmatch/internal/traj"
	"gonum.org/v1/gonum/mat"
)

// CostMatrices holds the four K×K pairwise dissimilarity matrices for one
// sample. Entry (i, j) scores expert trajectory i against predicted
// trajectory j.
//
//   - Full: squared error over every element except the existence indicator,
//     divided by the total vector length P+Y+2. The denominator counts the
//     existence element even though it is excluded from the sum; this
//     matches the behaviour the loss was tuned against.
//   - Pos: per-element average squared error over the position control points.
//   - Yaw: per-element average squared error over the yaw control points,
//     defined as 0 when the layout has none.
//   - Time: squared error of the single time scalar, un-normalised.
type CostMatrices struct {
	Full *mat.Dense
	Pos  *mat.Dense
	Yaw  *mat.Dense
	Time *mat.Dense
}

// BuildCostMatrices validates one sample's sets against the engine layout
// and computes its cost matrices. O(K²·(P+Y)).
func (e *Engine) BuildCostMatrices(expert, predicted traj.Set) (CostMatrices, error) {
	if len(expert) != len(predicted) {
		return CostMatrices{}, &traj.ShapeError{Context: "predicted set", Got: len(predicted), Want: len(expert)}
	}
	if err := expert.Check(e.cfg.Layout, "expert"); err != nil {
		return CostMatrices{}, err
	}
	if err := predicted.Check(e.cfg.Layout, "predicted"); err != nil {
		return CostMatrices{}, err
	}
	return e.costMatrices(expert, predicted), nil
}

// costMatrices is the unvalidated hot path; ComputeLoss validates the whole
// batch up front.
func (e *Engine) costMatrices(expert, predicted traj.Set) CostMatrices {
	l := e.cfg.Layout
	k := len(expert)
	cm := CostMatrices{
		Full: mat.NewDense(k, k, nil),
		Pos:  mat.NewDense(k, k, nil),
		Yaw:  mat.NewDense(k, k, nil),
		Time: mat.NewDense(k, k, nil),
	}

	vecLen := l.VectorLen()
	for i := 0; i < k; i++ {
		ei := expert[i]
		for j := 0; j < k; j++ {
			pj := predicted[j]

			// Everything but the existence indicator.
			cm.Full.Set(i, j, sumSquaredDiff(ei[:vecLen-1], pj[:vecLen-1])/float64(vecLen))
			cm.Pos.Set(i, j, sumSquaredDiff(ei.Pos(l), pj.Pos(l))/float64(l.PosCtrlPts))
			if l.YawCtrlPts > 0 {
				cm.Yaw.Set(i, j, sumSquaredDiff(ei.Yaw(l), pj.Yaw(l))/float64(l.YawCtrlPts))
			}
			dt := ei.Time(l) - pj.Time(l)
			cm.Time.Set(i, j, dt*dt)
		}
	}
	return cm
}

func sumSquaredDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("matchloss: mismatched sub-vector lengths %d and %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
