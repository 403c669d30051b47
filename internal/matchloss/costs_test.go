package matchloss

import (
	"testing"

	"github.com/banshee-data/trajmatch/internal/traj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func TestBuildCostMatricesKnownValues(t *testing.T) {
	t.Parallel()

	l := traj.Layout{PosCtrlPts: 1, YawCtrlPts: 1}
	e := mustEngine(t, DefaultConfig(l))

	expert := traj.Set{{1, 2, 3, 1}}
	predicted := traj.Set{{2, 4, 6, 1}}

	cm, err := e.BuildCostMatrices(expert, predicted)
	require.NoError(t, err)

	// Full sums squared diffs over pos+yaw+time (1+4+9) and divides by the
	// total vector length 4, existence element included in the denominator.
	assert.InDelta(t, 3.5, cm.Full.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, cm.Pos.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, cm.Yaw.At(0, 0), 1e-12)
	assert.InDelta(t, 9.0, cm.Time.At(0, 0), 1e-12)
}

func TestBuildCostMatricesPairwise(t *testing.T) {
	t.Parallel()

	l := traj.Layout{PosCtrlPts: 2, YawCtrlPts: 0}
	e := mustEngine(t, DefaultConfig(l))

	expert := traj.Set{
		{0, 0, 0, 1},
		{2, 2, 0, 1},
	}
	predicted := traj.Set{
		{1, 1, 0, 1},
		{2, 2, 0, 1},
	}

	cm, err := e.BuildCostMatrices(expert, predicted)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cm.Pos.At(0, 0), 1e-12) // (1+1)/2
	assert.InDelta(t, 4.0, cm.Pos.At(0, 1), 1e-12) // (4+4)/2
	assert.InDelta(t, 1.0, cm.Pos.At(1, 0), 1e-12)
	assert.InDelta(t, 0.0, cm.Pos.At(1, 1), 1e-12)

	r, c := cm.Full.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestBuildCostMatricesNoYaw(t *testing.T) {
	t.Parallel()

	// Zero yaw control points is a valid layout; the yaw sub-cost is
	// defined as 0 rather than 0/0.
	l := traj.Layout{PosCtrlPts: 2, YawCtrlPts: 0}
	e := mustEngine(t, DefaultConfig(l))

	expert := traj.Set{{0, 0, 1, 1}}
	predicted := traj.Set{{3, 4, 2, 1}}

	cm, err := e.BuildCostMatrices(expert, predicted)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cm.Yaw.At(0, 0))
	assert.InDelta(t, 12.5, cm.Pos.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, cm.Time.At(0, 0), 1e-12)
}

func TestBuildCostMatricesShapeErrors(t *testing.T) {
	t.Parallel()

	l := traj.Layout{PosCtrlPts: 2, YawCtrlPts: 1}
	e := mustEngine(t, DefaultConfig(l))

	t.Run("set size mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := e.BuildCostMatrices(
			traj.Set{{0, 0, 0, 0, 1}},
			traj.Set{{0, 0, 0, 0, 1}, {0, 0, 0, 0, 1}},
		)
		var shapeErr *traj.ShapeError
		require.ErrorAs(t, err, &shapeErr)
	})

	t.Run("vector length mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := e.BuildCostMatrices(
			traj.Set{{0, 0, 0}},
			traj.Set{{0, 0, 0, 0, 1}},
		)
		var shapeErr *traj.ShapeError
		require.ErrorAs(t, err, &shapeErr)
	})
}
