package bc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/trajmatch/internal/matchloss"
	"github.com/banshee-data/trajmatch/internal/monitoring"
	"github.com/banshee-data/trajmatch/internal/statsdb"
	"github.com/banshee-data/trajmatch/internal/traj"
	"github.com/google/uuid"
)

// Policy produces a K-hypothesis trajectory set for one observation.
type Policy interface {
	Predict(obs []float64) traj.Set
}

// Updater applies one optimisation step after the loss for a batch has been
// computed. It owns gradient propagation; the loss value is a pure function
// of the batch, so the updater is free to recompute it however its
// differentiation machinery requires.
type Updater interface {
	Step(batch Batch, loss float64, diags matchloss.Diagnostics) error
}

// Snapshotter is implemented by policies whose parameters can be
// checkpointed.
type Snapshotter interface {
	Snapshot() map[string][]float64
}

// TrainerConfig controls one training run. Exactly one of Epochs and Batches
// must be positive.
type TrainerConfig struct {
	Epochs           int
	Batches          int
	LogInterval      int    // batches between stats logs/records; <= 0 selects 500
	ProgressInterval int    // batches between progress lines; 0 disables
	CheckpointPath   string // optional; periodic saves get a _logN suffix before the extension
	Stats            *statsdb.DB
	// OnStats runs after every logged batch with the loss and diagnostics.
	// Hosts hang rollout evaluation off this hook.
	OnStats func(stats IterStats, values map[string]float64)
}

// Trainer runs behavioural cloning: per batch it asks the policy for its
// predicted sets, scores them against the expert sets with the loss engine,
// and hands the result to the updater.
type Trainer struct {
	engine  *matchloss.Engine
	policy  Policy
	updater Updater
	loader  DataLoader
	cfg     TrainerConfig
	runID   string
}

// NewTrainer wires a training run together.
func NewTrainer(engine *matchloss.Engine, policy Policy, updater Updater, loader DataLoader, cfg TrainerConfig) (*Trainer, error) {
	if engine == nil || policy == nil || updater == nil || loader == nil {
		return nil, fmt.Errorf("bc: engine, policy, updater and loader are all required")
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 500
	}
	return &Trainer{
		engine:  engine,
		policy:  policy,
		updater: updater,
		loader:  loader,
		cfg:     cfg,
		runID:   uuid.NewString(),
	}, nil
}

// RunID returns the identifier assigned to this training run.
func (t *Trainer) RunID() string { return t.runID }

// Train runs the configured number of epochs or batches. The context is
// checked between batches only; a batch in flight always completes.
func (t *Trainer) Train(ctx context.Context) error {
	it, err := NewIterator(t.loader, IteratorConfig{
		Epochs:           t.cfg.Epochs,
		Batches:          t.cfg.Batches,
		ProgressInterval: t.cfg.ProgressInterval,
	})
	if err != nil {
		return err
	}

	if t.cfg.Stats != nil {
		if err := t.cfg.Stats.StartRun(t.runID, t.engine.Layout(), t.engine.WeightProb()); err != nil {
			return err
		}
	}
	monitoring.Logf("bc: starting run %s", t.runID)

	return it.Run(func(batch Batch, stats IterStats) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		engineBatch := traj.Batch{
			Expert:    make([]traj.Set, len(batch)),
			Predicted: make([]traj.Set, len(batch)),
		}
		for i, s := range batch {
			engineBatch.Expert[i] = s.Expert
			engineBatch.Predicted[i] = t.policy.Predict(s.Obs)
		}

		loss, diags, err := t.engine.ComputeLoss(engineBatch)
		if err != nil {
			return err
		}
		if err := t.updater.Step(batch, loss, diags); err != nil {
			return fmt.Errorf("bc: updater step at batch %d: %w", stats.Batch, err)
		}

		if (stats.Batch-1)%t.cfg.LogInterval == 0 {
			t.logBatch(stats, loss, diags)
		}
		return nil
	})
}

func (t *Trainer) logBatch(stats IterStats, loss float64, diags matchloss.Diagnostics) {
	monitoring.Logf("bc: run %s batch %d epoch %d loss=%.6f pos=%.6f yaw=%.6f time=%.6f prob=%.6f",
		t.runID, stats.Batch, stats.Epoch, loss,
		diags.PosLoss, diags.YawLoss, diags.TimeLoss, diags.ProbLoss)

	if t.cfg.Stats != nil {
		if err := t.cfg.Stats.RecordBatch(t.runID, stats.Epoch, stats.Batch, stats.Samples, loss, diags); err != nil {
			monitoring.Logf("bc: %v", err)
		}
	}

	if t.cfg.CheckpointPath != "" {
		if snap, ok := t.policy.(Snapshotter); ok {
			path := checkpointName(t.cfg.CheckpointPath, (stats.Batch-1)/t.cfg.LogInterval)
			ck := &Checkpoint{
				RunID:   t.runID,
				Layout:  t.engine.Layout(),
				Params:  snap.Snapshot(),
				SavedAt: time.Now(),
			}
			if err := SaveCheckpoint(path, ck); err != nil {
				monitoring.Logf("bc: checkpoint: %v", err)
			}
		}
	}

	if t.cfg.OnStats != nil {
		values := diags.Map()
		values["loss"] = loss
		t.cfg.OnStats(stats, values)
	}
}

// checkpointName inserts a _logN suffix before the path's extension, so
// periodic saves of "policy.ckpt" become "policy_log0.ckpt",
// "policy_log1.ckpt" and so on.
func checkpointName(path string, n int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_log%d%s", base, n, ext)
}
