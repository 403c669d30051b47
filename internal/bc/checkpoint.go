package bc

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/trajmatch/internal/traj"
)

// Checkpoint is a gob-encoded snapshot of policy parameters, tagged with the
// trajectory layout it was trained under so a reload into a differently
// configured run fails instead of silently mis-slicing vectors.
type Checkpoint struct {
	RunID   string
	Layout  traj.Layout
	Params  map[string][]float64
	SavedAt time.Time
}

// SaveCheckpoint writes the checkpoint to path, replacing any existing file.
func SaveCheckpoint(path string, ck *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bc: save checkpoint: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		return fmt.Errorf("bc: encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint and verifies it matches the expected
// layout.
func LoadCheckpoint(path string, want traj.Layout) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bc: load checkpoint: %w", err)
	}
	defer f.Close()

	var ck Checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("bc: decode checkpoint: %w", err)
	}
	if ck.Layout != want {
		return nil, fmt.Errorf("bc: checkpoint layout %+v does not match configured layout %+v", ck.Layout, want)
	}
	return &ck, nil
}
