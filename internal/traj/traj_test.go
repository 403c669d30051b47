package traj

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutValidate(t *testing.T) {
	t.Parallel()

	t.Run("accepts valid layouts", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, Layout{PosCtrlPts: 15, YawCtrlPts: 6}.Validate())
		assert.NoError(t, Layout{PosCtrlPts: 1, YawCtrlPts: 0}.Validate())
	})

	t.Run("rejects non-positive position count", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, Layout{PosCtrlPts: 0, YawCtrlPts: 2}.Validate())
		assert.Error(t, Layout{PosCtrlPts: -3, YawCtrlPts: 2}.Validate())
	})

	t.Run("rejects negative yaw count", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, Layout{PosCtrlPts: 4, YawCtrlPts: -1}.Validate())
	})
}

func TestVectorLen(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 23, Layout{PosCtrlPts: 15, YawCtrlPts: 6}.VectorLen())
	assert.Equal(t, 3, Layout{PosCtrlPts: 1, YawCtrlPts: 0}.VectorLen())
}

func TestCodecViews(t *testing.T) {
	t.Parallel()
	l := Layout{PosCtrlPts: 3, YawCtrlPts: 2}
	tr := Trajectory{10, 11, 12, 20, 21, 5.5, 1}

	require.NoError(t, tr.Check(l, "tr"))
	assert.Equal(t, []float64{10, 11, 12}, tr.Pos(l))
	assert.Equal(t, []float64{20, 21}, tr.Yaw(l))
	assert.Equal(t, 5.5, tr.Time(l))
	assert.Equal(t, 1.0, tr.Existence(l))
}

func TestCodecViewsAreNotCopies(t *testing.T) {
	t.Parallel()
	l := Layout{PosCtrlPts: 2, YawCtrlPts: 1}
	tr := Trajectory{1, 2, 3, 4, 5}

	tr.Pos(l)[0] = 99
	assert.Equal(t, 99.0, tr[0])
}

func TestExists(t *testing.T) {
	t.Parallel()
	l := Layout{PosCtrlPts: 1, YawCtrlPts: 0}
	mk := func(e float64) Trajectory { return Trajectory{0, 0, e} }

	assert.True(t, mk(1).Exists(l))
	assert.True(t, mk(0.6).Exists(l))
	assert.False(t, mk(0.4).Exists(l))
	assert.False(t, mk(-1).Exists(l))
	assert.False(t, mk(-0.7).Exists(l))
}

func TestTrajectoryCheck(t *testing.T) {
	t.Parallel()
	l := Layout{PosCtrlPts: 3, YawCtrlPts: 2}

	err := Trajectory{1, 2, 3}.Check(l, "expert[0][1]")
	require.Error(t, err)

	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "expert[0][1]", shapeErr.Context)
	assert.Equal(t, 3, shapeErr.Got)
	assert.Equal(t, 7, shapeErr.Want)
	assert.Contains(t, err.Error(), "expert[0][1]")
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()
	l := Layout{PosCtrlPts: 1, YawCtrlPts: 0}
	mk := func() Trajectory { return Trajectory{0, 0, 1} }

	t.Run("accepts well-formed batch", func(t *testing.T) {
		t.Parallel()
		b := Batch{
			Expert:    []Set{{mk(), mk()}, {mk(), mk()}},
			Predicted: []Set{{mk(), mk()}, {mk(), mk()}},
		}
		assert.NoError(t, b.Validate(l))
		assert.Equal(t, 2, b.Len())
		assert.Equal(t, 2, b.Hypotheses())
	})

	t.Run("rejects mismatched sample counts", func(t *testing.T) {
		t.Parallel()
		b := Batch{
			Expert:    []Set{{mk()}},
			Predicted: []Set{},
		}
		var shapeErr *ShapeError
		require.ErrorAs(t, b.Validate(l), &shapeErr)
	})

	t.Run("rejects mismatched set sizes", func(t *testing.T) {
		t.Parallel()
		b := Batch{
			Expert:    []Set{{mk(), mk()}, {mk()}},
			Predicted: []Set{{mk(), mk()}, {mk(), mk()}},
		}
		var shapeErr *ShapeError
		require.ErrorAs(t, b.Validate(l), &shapeErr)
		assert.Equal(t, "expert[1]", shapeErr.Context)
	})

	t.Run("rejects predicted set size drift", func(t *testing.T) {
		t.Parallel()
		b := Batch{
			Expert:    []Set{{mk(), mk()}},
			Predicted: []Set{{mk()}},
		}
		var shapeErr *ShapeError
		require.ErrorAs(t, b.Validate(l), &shapeErr)
		assert.Equal(t, "predicted[0]", shapeErr.Context)
	})

	t.Run("rejects malformed vectors", func(t *testing.T) {
		t.Parallel()
		b := Batch{
			Expert:    []Set{{Trajectory{0, 0}}},
			Predicted: []Set{{mk()}},
		}
		var shapeErr *ShapeError
		require.ErrorAs(t, b.Validate(l), &shapeErr)
	})

	t.Run("empty batch is valid shape-wise", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, Batch{}.Validate(l))
		assert.Equal(t, 0, Batch{}.Hypotheses())
	})
}
