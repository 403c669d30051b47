// Package main provides bctrain, a demonstration trainer for the
// set-matching trajectory loss engine. It generates synthetic expert
// demonstrations, trains a noisy-copy policy against them, and writes batch
// diagnostics to sqlite, PNG loss curves and an HTML report.
//
// The policy here is deliberately trivial (it reads the expert set straight
// out of the observation and corrupts it with decaying noise): the point of
// the binary is to exercise the full loss/driver/persistence path end to
// end, not to learn anything interesting.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"

	"github.com/banshee-data/trajmatch/internal/assign"
	"github.com/banshee-data/trajmatch/internal/bc"
	"github.com/banshee-data/trajmatch/internal/config"
	"github.com/banshee-data/trajmatch/internal/matchloss"
	"github.com/banshee-data/trajmatch/internal/monitoring"
	"github.com/banshee-data/trajmatch/internal/report"
	"github.com/banshee-data/trajmatch/internal/statsdb"
	"github.com/banshee-data/trajmatch/internal/traj"
	"github.com/banshee-data/trajmatch/internal/version"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional JSON training config file")
		posFlag    = flag.Int("pos", 0, "position control points (0 = config default)")
		yawFlag    = flag.Int("yaw", -1, "yaw control points (-1 = config default)")
		kFlag      = flag.Int("hypotheses", 0, "trajectories per sample (0 = config default)")
		batchFlag  = flag.Int("batch-size", 0, "samples per batch (0 = config default)")
		batchesFlg = flag.Int("batches", 0, "batches to train (0 = config default)")
		epochsFlag = flag.Int("epochs", 0, "epochs to train (overrides batches when set)")
		weightFlag = flag.Float64("weight-prob", -1, "existence-score weight (-1 = config default)")
		matcherFlg = flag.String("matcher", "", "matching policy: optimal or greedy (empty = config default)")
		logEvery   = flag.Int("log-interval", 0, "batches between stats logs (0 = config default)")
		lrFlag     = flag.Float64("lr", -1, "noise decay rate (-1 = config default)")
		statsPath  = flag.String("stats-db", "", "sqlite file for batch stats (empty disables)")
		plotDir    = flag.String("plot-dir", "", "directory for PNG loss curves (empty disables)")
		reportPath = flag.String("report", "", "HTML report path (empty disables)")
		seed       = flag.Int64("seed", 1, "RNG seed for synthetic data and policy noise")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	cfg := config.EmptyTrainingConfig()
	if *configPath != "" {
		loaded, err := config.LoadTrainingConfig(*configPath)
		if err != nil {
			log.Fatalf("bctrain: %v", err)
		}
		cfg = loaded
	}

	layout := traj.Layout{PosCtrlPts: cfg.GetPosCtrlPts(), YawCtrlPts: cfg.GetYawCtrlPts()}
	if *posFlag > 0 {
		layout.PosCtrlPts = *posFlag
	}
	if *yawFlag >= 0 {
		layout.YawCtrlPts = *yawFlag
	}
	k := cfg.GetHypotheses()
	if *kFlag > 0 {
		k = *kFlag
	}
	batchSize := cfg.GetBatchSize()
	if *batchFlag > 0 {
		batchSize = *batchFlag
	}
	epochs := cfg.GetEpochs()
	if *epochsFlag > 0 {
		epochs = *epochsFlag
	}
	batches := cfg.GetBatches()
	if *batchesFlg > 0 {
		batches = *batchesFlg
	}
	if epochs > 0 {
		batches = 0
	}
	weightProb := cfg.GetWeightProb()
	if *weightFlag >= 0 {
		weightProb = *weightFlag
	}
	matcherName := cfg.GetMatcher()
	if *matcherFlg != "" {
		matcherName = *matcherFlg
	}
	logInterval := cfg.GetLogInterval()
	if *logEvery > 0 {
		logInterval = *logEvery
	}
	lr := cfg.GetLearningRate()
	if *lrFlag >= 0 {
		lr = *lrFlag
	}

	var matcher assign.Matcher
	switch matcherName {
	case "optimal":
		matcher = assign.Hungarian{}
	case "greedy":
		matcher = assign.Greedy{}
	default:
		log.Fatalf("bctrain: unknown matcher %q", matcherName)
	}

	engine, err := matchloss.NewEngine(matchloss.Config{
		Layout:     layout,
		WeightProb: weightProb,
		Matcher:    matcher,
	})
	if err != nil {
		log.Fatalf("bctrain: %v", err)
	}

	var stats *statsdb.DB
	if *statsPath != "" {
		stats, err = statsdb.Open(*statsPath)
		if err != nil {
			log.Fatalf("bctrain: %v", err)
		}
		defer stats.Close()
	}
	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0755); err != nil {
			log.Fatalf("bctrain: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	loader := &syntheticLoader{
		layout:    layout,
		k:         k,
		batchSize: batchSize,
		perPass:   50,
		rng:       rng,
	}
	policy := &noisyCopyPolicy{layout: layout, k: k, noiseScale: 1.0, rng: rng}
	updater := &noiseDecayUpdater{policy: policy, lr: bc.ConstantLR(lr)}

	var (
		loggedBatches []int
		series        = report.Series{}
	)
	trainer, err := bc.NewTrainer(engine, policy, updater, loader, bc.TrainerConfig{
		Epochs:           epochs,
		Batches:          batches,
		LogInterval:      logInterval,
		ProgressInterval: logInterval * 5,
		Stats:            stats,
		OnStats: func(s bc.IterStats, values map[string]float64) {
			loggedBatches = append(loggedBatches, s.Batch)
			for name, v := range values {
				series[name] = append(series[name], v)
			}
		},
	})
	if err != nil {
		log.Fatalf("bctrain: %v", err)
	}

	plotter := monitoring.NewLossPlotter(*plotDir, trainer.RunID())

	if err := trainer.Train(context.Background()); err != nil {
		log.Fatalf("bctrain: training: %v", err)
	}

	for i, b := range loggedBatches {
		values := make(map[string]float64, len(series))
		for name, ys := range series {
			values[name] = ys[i]
		}
		plotter.Record(b, values)
	}
	if plotter.IsEnabled() {
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Fatalf("bctrain: plots: %v", err)
		}
		monitoring.Logf("bctrain: wrote %d plots to %s", n, *plotDir)
	}
	if *reportPath != "" && len(loggedBatches) > 0 {
		if err := report.WriteTrainingReport(*reportPath, trainer.RunID(), loggedBatches, series); err != nil {
			log.Fatalf("bctrain: report: %v", err)
		}
		monitoring.Logf("bctrain: wrote report %s", *reportPath)
	}
	monitoring.Logf("bctrain: run %s finished", trainer.RunID())
}

// syntheticLoader yields batches of synthetic demonstrations. Each
// observation is the flattened expert set, so the demo policy can
// reconstruct the target exactly and the only error is its own noise.
type syntheticLoader struct {
	layout    traj.Layout
	k         int
	batchSize int
	perPass   int // batches per epoch
	served    int
	rng       *rand.Rand
}

func (l *syntheticLoader) Next() (bc.Batch, error) {
	if l.served >= l.perPass {
		return nil, io.EOF
	}
	l.served++

	batch := make(bc.Batch, l.batchSize)
	for s := range batch {
		expert := make(traj.Set, l.k)
		// Random number of real trajectories, at least one.
		real := 1 + l.rng.Intn(l.k)
		vecLen := l.layout.VectorLen()
		obs := make([]float64, 0, l.k*vecLen)
		for i := range expert {
			tr := make(traj.Trajectory, vecLen)
			for c := 0; c < vecLen-2; c++ {
				tr[c] = l.rng.NormFloat64()
			}
			tr[vecLen-2] = 1 + l.rng.Float64() // time horizon
			if i < real {
				tr[vecLen-1] = 1
			} else {
				tr[vecLen-1] = -1
			}
			expert[i] = tr
			obs = append(obs, tr...)
		}
		batch[s] = bc.Sample{Obs: obs, Expert: expert}
	}
	return batch, nil
}

func (l *syntheticLoader) Reset() error {
	l.served = 0
	return nil
}

// noisyCopyPolicy reconstructs the expert set from the observation and
// corrupts it with gaussian noise. noiseScale stands in for the distance
// between an untrained policy and the expert; the updater decays it.
type noisyCopyPolicy struct {
	layout     traj.Layout
	k          int
	noiseScale float64
	rng        *rand.Rand
}

func (p *noisyCopyPolicy) Predict(obs []float64) traj.Set {
	vecLen := p.layout.VectorLen()
	set := make(traj.Set, p.k)
	for i := 0; i < p.k; i++ {
		tr := make(traj.Trajectory, vecLen)
		copy(tr, obs[i*vecLen:(i+1)*vecLen])
		for c := range tr {
			tr[c] += p.noiseScale * p.rng.NormFloat64() * 0.1
		}
		set[i] = tr
	}
	return set
}

func (p *noisyCopyPolicy) Snapshot() map[string][]float64 {
	return map[string][]float64{"noise_scale": {p.noiseScale}}
}

// noiseDecayUpdater plays the optimiser's role for the demo: each step
// shrinks the policy noise by the learning rate, so the loss curves decay
// the way a real run's would.
type noiseDecayUpdater struct {
	policy *noisyCopyPolicy
	lr     bc.LRSchedule
	step   int
}

func (u *noiseDecayUpdater) Step(batch bc.Batch, loss float64, diags matchloss.Diagnostics) error {
	u.step++
	u.policy.noiseScale *= 1 - u.lr.At(u.step)
	if u.policy.noiseScale < 0 {
		return fmt.Errorf("noise scale went negative at step %d", u.step)
	}
	return nil
}
