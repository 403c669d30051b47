// Package bc drives behavioural-cloning training over the set-matching loss
// engine. The engine stays gradient-agnostic, so the host plugs in the
// policy forward pass (Policy) and the parameter update (Updater); this
// package owns the epoch/batch iteration, progress logging, stats recording
// and checkpointing around them.
package bc

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/trajmatch/internal/monitoring"
	"github.com/banshee-data/trajmatch/internal/traj"
)

// Sample couples one observation with its expert trajectory set.
type Sample struct {
	Obs    []float64
	Expert traj.Set
}

// Batch is the ordered group of samples presented to one training step.
type Batch []Sample

// DataLoader yields batches of expert demonstrations. Next returns io.EOF at
// the end of a pass; Reset rewinds the loader so the next epoch can run.
type DataLoader interface {
	Next() (Batch, error)
	Reset() error
}

// IterStats is the running progress of an iteration.
type IterStats struct {
	Epoch   int // completed epochs
	Batch   int // batches yielded so far, 1-based
	Samples int // samples yielded so far
}

// IteratorConfig bounds an iteration. Exactly one of Epochs and Batches must
// be positive.
type IteratorConfig struct {
	Epochs           int
	Batches          int
	ProgressInterval int // batches between progress log lines; 0 disables
}

// Iterator walks a data loader for a fixed number of epochs or batches,
// whichever the config selects.
type Iterator struct {
	loader    DataLoader
	cfg       IteratorConfig
	useEpochs bool
}

// NewIterator validates the budget and builds an iterator.
func NewIterator(loader DataLoader, cfg IteratorConfig) (*Iterator, error) {
	if (cfg.Epochs > 0) == (cfg.Batches > 0) {
		return nil, errors.New("bc: provide exactly one of Epochs and Batches")
	}
	return &Iterator{loader: loader, cfg: cfg, useEpochs: cfg.Epochs > 0}, nil
}

// Run presents batches to fn until the epoch or batch budget is exhausted or
// fn returns an error. A pass that yields no batches is an error: the loader
// did not reset correctly.
func (it *Iterator) Run(fn func(batch Batch, stats IterStats) error) error {
	var stats IterStats
	for {
		gotData := false
		for {
			batch, err := it.loader.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("bc: data loader: %w", err)
			}
			if len(batch) == 0 {
				return errors.New("bc: data loader returned an empty batch")
			}
			gotData = true
			stats.Batch++
			stats.Samples += len(batch)

			if err := fn(batch, stats); err != nil {
				return err
			}

			if it.cfg.ProgressInterval > 0 && stats.Batch%it.cfg.ProgressInterval == 0 {
				it.logProgress(stats)
			}
			if !it.useEpochs && stats.Batch >= it.cfg.Batches {
				return nil
			}
		}

		if !gotData {
			return fmt.Errorf("bc: data loader returned no data after %d batches in epoch %d; did it reset correctly?", stats.Batch, stats.Epoch)
		}

		stats.Epoch++
		if it.useEpochs && stats.Epoch >= it.cfg.Epochs {
			return nil
		}
		if err := it.loader.Reset(); err != nil {
			return fmt.Errorf("bc: data loader reset: %w", err)
		}
	}
}

func (it *Iterator) logProgress(stats IterStats) {
	if it.useEpochs {
		monitoring.Logf("bc: batch %d, epoch %d/%d, %d samples", stats.Batch, stats.Epoch, it.cfg.Epochs, stats.Samples)
		return
	}
	monitoring.Logf("bc: batch %d/%d, epoch %d, %d samples", stats.Batch, it.cfg.Batches, stats.Epoch, stats.Samples)
}
