// Package assign matches expert trajectory slots to predicted trajectory
// slots for one sample. Given a K×K cost matrix and a validity mask over the
// expert rows, a Matcher produces a one-to-one matching in which every valid
// expert row is matched to exactly one predicted column and every column is
// used at most once. Columns left over are explicitly unassigned.
package assign

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Unassigned marks an expert row with no matched column (the row is invalid,
// or the matcher could not place it).
const Unassigned = -1

// Assignment is the outcome of matching one sample. RowToCol[i] is the
// predicted column matched to expert row i, or Unassigned.
type Assignment struct {
	RowToCol []int
}

// AssignedCols reports, per predicted column, whether some expert row was
// matched to it.
func (a Assignment) AssignedCols(k int) []bool {
	cols := make([]bool, k)
	for _, j := range a.RowToCol {
		if j != Unassigned {
			cols[j] = true
		}
	}
	return cols
}

// Matrix renders the assignment as a K×K 0/1 matrix: row i carries a single
// 1 in its matched column, invalid rows are all zero.
func (a Assignment) Matrix() *mat.Dense {
	k := len(a.RowToCol)
	m := mat.NewDense(k, k, nil)
	for i, j := range a.RowToCol {
		if j != Unassigned {
			m.Set(i, j, 1)
		}
	}
	return m
}

// Matcher is the matching policy. Implementations must be deterministic:
// identical costs and masks must yield identical assignments, so that loss
// values are reproducible across runs.
type Matcher interface {
	Match(cost mat.Matrix, valid []bool) (Assignment, error)
}

// Hungarian is the default matcher: an exact minimum-cost bipartite
// assignment (Kuhn–Munkres with row/column potentials) over the valid expert
// rows. Ties are broken towards the lowest column index. Worst case O(K³)
// per sample, which is fine because K is the hypothesis count, not the batch
// size.
type Hungarian struct{}

// Match solves the reduced (valid rows only) rectangular assignment and maps
// the solution back onto the original row indices.
func (Hungarian) Match(cost mat.Matrix, valid []bool) (Assignment, error) {
	rows, err := checkInstance(cost, valid)
	if err != nil {
		return Assignment{}, err
	}
	k := len(valid)
	out := newUnassigned(k)
	if len(rows) == 0 {
		return out, nil
	}

	// Flatten the reduced len(rows)×k matrix.
	reduced := make([]float64, len(rows)*k)
	for ri, i := range rows {
		for j := 0; j < k; j++ {
			reduced[ri*k+j] = cost.At(i, j)
		}
	}

	colOf, err := solveRectangular(reduced, len(rows), k)
	if err != nil {
		return Assignment{}, err
	}
	for ri, i := range rows {
		out.RowToCol[i] = colOf[ri]
	}
	return out, nil
}

// Greedy matches each valid expert row to its cheapest still-unused column,
// in row order. Not globally optimal; kept as an alternative policy for
// experiments against the exact solver.
type Greedy struct{}

func (Greedy) Match(cost mat.Matrix, valid []bool) (Assignment, error) {
	rows, err := checkInstance(cost, valid)
	if err != nil {
		return Assignment{}, err
	}
	k := len(valid)
	out := newUnassigned(k)
	used := make([]bool, k)
	for _, i := range rows {
		best := Unassigned
		bestCost := math.Inf(1)
		for j := 0; j < k; j++ {
			if used[j] {
				continue
			}
			if c := cost.At(i, j); c < bestCost {
				bestCost = c
				best = j
			}
		}
		if best == Unassigned {
			return Assignment{}, fmt.Errorf("assign: no usable column for row %d (non-finite costs?)", i)
		}
		out.RowToCol[i] = best
		used[best] = true
	}
	return out, nil
}

// checkInstance validates the instance shape and returns the valid row
// indices in ascending order.
func checkInstance(cost mat.Matrix, valid []bool) ([]int, error) {
	r, c := cost.Dims()
	if r != c {
		return nil, fmt.Errorf("assign: cost matrix is %dx%d, want square", r, c)
	}
	if len(valid) != r {
		return nil, fmt.Errorf("assign: validity mask has %d entries for a %dx%d cost matrix", len(valid), r, c)
	}
	rows := make([]int, 0, r)
	for i, ok := range valid {
		if ok {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

func newUnassigned(k int) Assignment {
	out := Assignment{RowToCol: make([]int, k)}
	for i := range out.RowToCol {
		out.RowToCol[i] = Unassigned
	}
	return out
}

// solveRectangular solves the r×c (r <= c) minimum-cost assignment via
// shortest augmenting paths over row/column potentials. Returns the column
// assigned to each row. Strict comparisons make the path choice, and hence
// the assignment, deterministic for tied costs.
func solveRectangular(cost []float64, r, c int) ([]int, error) {
	if r > c {
		return nil, fmt.Errorf("assign: %d rows exceed %d columns", r, c)
	}

	// 1-based arrays with index 0 as the virtual free slot, in the classic
	// potentials formulation.
	u := make([]float64, r+1)
	v := make([]float64, c+1)
	matchedRow := make([]int, c+1) // matchedRow[j] = row matched to column j, 0 if free
	way := make([]int, c+1)

	minv := make([]float64, c+1)
	used := make([]bool, c+1)

	for i := 1; i <= r; i++ {
		matchedRow[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := matchedRow[j0]
			delta := math.Inf(1)
			j1 := -1
			for j := 1; j <= c; j++ {
				if used[j] {
					continue
				}
				cur := cost[(i0-1)*c+(j-1)] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				// Every remaining column compared as not-less-than +Inf,
				// which only non-finite costs can cause. Fail loud rather
				// than loop.
				return nil, fmt.Errorf("assign: no finite augmenting path in cost matrix")
			}
			for j := 0; j <= c; j++ {
				if used[j] {
					u[matchedRow[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if matchedRow[j0] == 0 {
				break
			}
		}

		// Unwind the augmenting path.
		for j0 != 0 {
			j1 := way[j0]
			matchedRow[j0] = matchedRow[j1]
			j0 = j1
		}
	}

	colOf := make([]int, r)
	for j := 1; j <= c; j++ {
		if matchedRow[j] > 0 {
			colOf[matchedRow[j]-1] = j - 1
		}
	}
	return colOf, nil
}
