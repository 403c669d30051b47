package bc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/banshee-data/trajmatch/internal/matchloss"
	"github.com/banshee-data/trajmatch/internal/statsdb"
	"github.com/banshee-data/trajmatch/internal/traj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = traj.Layout{PosCtrlPts: 1, YawCtrlPts: 0}

// echoPolicy decodes the expert set straight out of the observation, so its
// predictions are perfect and every loss component is zero.
type echoPolicy struct {
	layout traj.Layout
	k      int
	steps  int
}

func (p *echoPolicy) Predict(obs []float64) traj.Set {
	vecLen := p.layout.VectorLen()
	set := make(traj.Set, p.k)
	for i := 0; i < p.k; i++ {
		tr := make(traj.Trajectory, vecLen)
		copy(tr, obs[i*vecLen:(i+1)*vecLen])
		set[i] = tr
	}
	return set
}

func (p *echoPolicy) Snapshot() map[string][]float64 {
	return map[string][]float64{"w": {1, 2, 3}}
}

type recordingUpdater struct {
	steps  []float64
	errAt  int // 1-based step that fails; 0 never fails
	stepNo int
}

func (u *recordingUpdater) Step(batch Batch, loss float64, diags matchloss.Diagnostics) error {
	u.stepNo++
	if u.errAt > 0 && u.stepNo == u.errAt {
		return assert.AnError
	}
	u.steps = append(u.steps, loss)
	return nil
}

func trainLoader(perPass, batchSize int) *sliceLoader {
	batches := make([]Batch, perPass)
	for i := range batches {
		b := make(Batch, batchSize)
		for s := range b {
			expert := traj.Set{{float64(i), 0.5, 1}}
			b[s] = Sample{Obs: []float64(expert[0]), Expert: expert}
		}
		batches[i] = b
	}
	return &sliceLoader{batches: batches}
}

func mustEngine(t *testing.T) *matchloss.Engine {
	t.Helper()
	e, err := matchloss.NewEngine(matchloss.DefaultConfig(testLayout))
	require.NoError(t, err)
	return e
}

func TestNewTrainerValidation(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	policy := &echoPolicy{layout: testLayout, k: 1}
	updater := &recordingUpdater{}
	loader := trainLoader(1, 1)

	_, err := NewTrainer(nil, policy, updater, loader, TrainerConfig{Batches: 1})
	assert.Error(t, err)
	_, err = NewTrainer(engine, nil, updater, loader, TrainerConfig{Batches: 1})
	assert.Error(t, err)
	_, err = NewTrainer(engine, policy, nil, loader, TrainerConfig{Batches: 1})
	assert.Error(t, err)
	_, err = NewTrainer(engine, policy, updater, nil, TrainerConfig{Batches: 1})
	assert.Error(t, err)

	tr, err := NewTrainer(engine, policy, updater, loader, TrainerConfig{Batches: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.RunID())
}

func TestTrainPerfectPolicy(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	updater := &recordingUpdater{}
	tr, err := NewTrainer(engine, &echoPolicy{layout: testLayout, k: 1}, updater,
		trainLoader(3, 2), TrainerConfig{Batches: 6, LogInterval: 1})
	require.NoError(t, err)

	var logged []map[string]float64
	tr.cfg.OnStats = func(stats IterStats, values map[string]float64) {
		logged = append(logged, values)
	}

	require.NoError(t, tr.Train(context.Background()))

	require.Len(t, updater.steps, 6)
	for _, loss := range updater.steps {
		assert.InDelta(t, 0, loss, 1e-12)
	}
	require.Len(t, logged, 6)
	for _, values := range logged {
		assert.Contains(t, values, "loss")
		assert.Contains(t, values, "pos_loss")
		assert.Contains(t, values, "prob_loss")
	}
}

func TestTrainRecordsStats(t *testing.T) {
	t.Parallel()

	db, err := statsdb.Open(filepath.Join(t.TempDir(), "stats.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	engine := mustEngine(t)
	tr, err := NewTrainer(engine, &echoPolicy{layout: testLayout, k: 1}, &recordingUpdater{},
		trainLoader(4, 1), TrainerConfig{Batches: 4, LogInterval: 2, Stats: db})
	require.NoError(t, err)
	require.NoError(t, tr.Train(context.Background()))

	ids, err := db.RunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{tr.RunID()}, ids)

	// LogInterval 2 over 4 batches logs batches 1 and 3.
	stats, err := db.RunStats(tr.RunID())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[0].Batch)
	assert.Equal(t, 3, stats[1].Batch)
	assert.Equal(t, 1, stats[0].Samples)
	assert.Equal(t, 3, stats[1].Samples)
}

func TestTrainWritesCheckpoints(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.ckpt")

	engine := mustEngine(t)
	tr, err := NewTrainer(engine, &echoPolicy{layout: testLayout, k: 1}, &recordingUpdater{},
		trainLoader(4, 1), TrainerConfig{Batches: 4, LogInterval: 2, CheckpointPath: path})
	require.NoError(t, err)
	require.NoError(t, tr.Train(context.Background()))

	for _, name := range []string{"policy_log0.ckpt", "policy_log1.ckpt"} {
		ck, err := LoadCheckpoint(filepath.Join(dir, name), testLayout)
		require.NoError(t, err, name)
		assert.Equal(t, tr.RunID(), ck.RunID)
		assert.Equal(t, []float64{1, 2, 3}, ck.Params["w"])
		assert.False(t, ck.SavedAt.IsZero())
	}
}

func TestTrainUpdaterErrorStops(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	updater := &recordingUpdater{errAt: 2}
	tr, err := NewTrainer(engine, &echoPolicy{layout: testLayout, k: 1}, updater,
		trainLoader(5, 1), TrainerConfig{Batches: 5})
	require.NoError(t, err)

	err = tr.Train(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Len(t, updater.steps, 1)
}

func TestTrainContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := mustEngine(t)
	updater := &recordingUpdater{}
	tr, err := NewTrainer(engine, &echoPolicy{layout: testLayout, k: 1}, updater,
		trainLoader(3, 1), TrainerConfig{Batches: 3})
	require.NoError(t, err)

	err = tr.Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, updater.steps)
}

func TestCheckpointName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "policy_log0.ckpt", checkpointName("policy.ckpt", 0))
	assert.Equal(t, "out/policy_log7.ckpt", checkpointName("out/policy.ckpt", 7))
	assert.Equal(t, "policy_log2", checkpointName("policy", 2))
}
