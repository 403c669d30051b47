// Package testutil provides shared test fixtures.
//
// This package centralises the trajectory builders used across test files to
// reduce duplication.
package testutil

import (
	"github.com/banshee-data/trajmatch/internal/traj"
)

// MakeTrajectory assembles a flat trajectory vector from its components.
func MakeTrajectory(pos, yaw []float64, time, existence float64) traj.Trajectory {
	tr := make(traj.Trajectory, 0, len(pos)+len(yaw)+2)
	tr = append(tr, pos...)
	tr = append(tr, yaw...)
	tr = append(tr, time, existence)
	return tr
}

// ConstTrajectory builds a trajectory whose pos and yaw coefficients are all
// v, with the given time and existence values.
func ConstTrajectory(l traj.Layout, v, time, existence float64) traj.Trajectory {
	tr := make(traj.Trajectory, l.VectorLen())
	for i := 0; i < l.PosCtrlPts+l.YawCtrlPts; i++ {
		tr[i] = v
	}
	tr[l.PosCtrlPts+l.YawCtrlPts] = time
	tr[l.PosCtrlPts+l.YawCtrlPts+1] = existence
	return tr
}
