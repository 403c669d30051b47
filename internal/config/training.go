// Package config loads training configuration from JSON files. All fields
// are pointer-typed so a partial file only overrides what it mentions; the
// Get* accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical training defaults file,
// relative to the repository root.
const DefaultConfigPath = "config/training.defaults.json"

// TrainingConfig is the root configuration for a training run. The schema
// mirrors the cmd/bctrain flags so the same values can come from either.
type TrainingConfig struct {
	// Engine params
	PosCtrlPts *int     `json:"pos_ctrl_pts,omitempty"`
	YawCtrlPts *int     `json:"yaw_ctrl_pts,omitempty"`
	WeightProb *float64 `json:"weight_prob,omitempty"`
	Matcher    *string  `json:"matcher,omitempty"` // "optimal" or "greedy"

	// Data params
	Hypotheses *int `json:"hypotheses,omitempty"` // trajectories per sample (K)
	BatchSize  *int `json:"batch_size,omitempty"`

	// Run params
	Epochs       *int     `json:"epochs,omitempty"`
	Batches      *int     `json:"batches,omitempty"`
	LogInterval  *int     `json:"log_interval,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`

	// Output params
	StatsDBPath    *string `json:"stats_db_path,omitempty"`
	PlotDir        *string `json:"plot_dir,omitempty"`
	ReportPath     *string `json:"report_path,omitempty"`
	CheckpointPath *string `json:"checkpoint_path,omitempty"`
}

// EmptyTrainingConfig returns a TrainingConfig with all fields unset.
func EmptyTrainingConfig() *TrainingConfig {
	return &TrainingConfig{}
}

// LoadTrainingConfig loads a TrainingConfig from a JSON file. The file must
// have a .json extension and stay under the size cap. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadTrainingConfig(path string) (*TrainingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrainingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TrainingConfig) Validate() error {
	if c.PosCtrlPts != nil && *c.PosCtrlPts <= 0 {
		return fmt.Errorf("pos_ctrl_pts must be positive, got %d", *c.PosCtrlPts)
	}
	if c.YawCtrlPts != nil && *c.YawCtrlPts < 0 {
		return fmt.Errorf("yaw_ctrl_pts must be non-negative, got %d", *c.YawCtrlPts)
	}
	if c.WeightProb != nil && *c.WeightProb < 0 {
		return fmt.Errorf("weight_prob must be non-negative, got %f", *c.WeightProb)
	}
	if c.Matcher != nil && *c.Matcher != "optimal" && *c.Matcher != "greedy" {
		return fmt.Errorf("matcher must be \"optimal\" or \"greedy\", got %q", *c.Matcher)
	}
	if c.Hypotheses != nil && *c.Hypotheses <= 0 {
		return fmt.Errorf("hypotheses must be positive, got %d", *c.Hypotheses)
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	if c.Epochs != nil && c.Batches != nil && *c.Epochs > 0 && *c.Batches > 0 {
		return fmt.Errorf("set epochs or batches, not both")
	}
	return nil
}

// GetPosCtrlPts returns pos_ctrl_pts or the default.
func (c *TrainingConfig) GetPosCtrlPts() int {
	if c.PosCtrlPts == nil {
		return 15
	}
	return *c.PosCtrlPts
}

// GetYawCtrlPts returns yaw_ctrl_pts or the default.
func (c *TrainingConfig) GetYawCtrlPts() int {
	if c.YawCtrlPts == nil {
		return 6
	}
	return *c.YawCtrlPts
}

// GetWeightProb returns weight_prob or the default.
func (c *TrainingConfig) GetWeightProb() float64 {
	if c.WeightProb == nil {
		return 0.01
	}
	return *c.WeightProb
}

// GetMatcher returns the matcher name or the default.
func (c *TrainingConfig) GetMatcher() string {
	if c.Matcher == nil {
		return "optimal"
	}
	return *c.Matcher
}

// GetHypotheses returns hypotheses or the default.
func (c *TrainingConfig) GetHypotheses() int {
	if c.Hypotheses == nil {
		return 6
	}
	return *c.Hypotheses
}

// GetBatchSize returns batch_size or the default.
func (c *TrainingConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 32
	}
	return *c.BatchSize
}

// GetEpochs returns epochs, or 0 when the run is batch-bounded.
func (c *TrainingConfig) GetEpochs() int {
	if c.Epochs == nil {
		return 0
	}
	return *c.Epochs
}

// GetBatches returns batches, defaulting to a batch-bounded run when neither
// epochs nor batches is set.
func (c *TrainingConfig) GetBatches() int {
	if c.Batches == nil {
		if c.GetEpochs() > 0 {
			return 0
		}
		return 200
	}
	return *c.Batches
}

// GetLogInterval returns log_interval or the default.
func (c *TrainingConfig) GetLogInterval() int {
	if c.LogInterval == nil {
		return 10
	}
	return *c.LogInterval
}

// GetLearningRate returns learning_rate or the default.
func (c *TrainingConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 1e-3
	}
	return *c.LearningRate
}
