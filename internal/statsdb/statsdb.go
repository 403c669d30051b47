// Package statsdb persists per-batch training diagnostics to a local sqlite
// database so runs can be inspected and compared after the fact.
package statsdb

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/trajmatch/internal/matchloss"
	"github.com/banshee-data/trajmatch/internal/traj"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the stats database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			pos_ctrl_pts      INTEGER,
			yaw_ctrl_pts      INTEGER,
			weight_prob       DOUBLE,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS batch_stats (
			run_id            TEXT,
			epoch             INTEGER,
			batch             INTEGER,
			samples_so_far    BIGINT,
			loss              DOUBLE,
			pos_loss          DOUBLE,
			yaw_loss          DOUBLE,
			time_loss         DOUBLE,
			prob_loss         DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("statsdb: create schema: %w", err)
	}

	return &DB{db}, nil
}

// StartRun registers a training run and its engine parameters.
func (db *DB) StartRun(runID string, layout traj.Layout, weightProb float64) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, pos_ctrl_pts, yaw_ctrl_pts, weight_prob) VALUES (?, ?, ?, ?)`,
		runID, layout.PosCtrlPts, layout.YawCtrlPts, weightProb,
	)
	if err != nil {
		return fmt.Errorf("statsdb: start run %s: %w", runID, err)
	}
	return nil
}

// RecordBatch stores one logged batch's loss and diagnostics.
func (db *DB) RecordBatch(runID string, epoch, batch, samples int, loss float64, d matchloss.Diagnostics) error {
	_, err := db.Exec(
		`INSERT INTO batch_stats
			(run_id, epoch, batch, samples_so_far, loss, pos_loss, yaw_loss, time_loss, prob_loss)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, epoch, batch, samples, loss, d.PosLoss, d.YawLoss, d.TimeLoss, d.ProbLoss,
	)
	if err != nil {
		return fmt.Errorf("statsdb: record batch %d of run %s: %w", batch, runID, err)
	}
	return nil
}

// BatchStat is one recorded batch of a run.
type BatchStat struct {
	Epoch   int
	Batch   int
	Samples int
	Loss    float64
	Diags   matchloss.Diagnostics
}

// RunStats returns all recorded batches of a run in batch order.
func (db *DB) RunStats(runID string) ([]BatchStat, error) {
	rows, err := db.Query(
		`SELECT epoch, batch, samples_so_far, loss, pos_loss, yaw_loss, time_loss, prob_loss
			FROM batch_stats WHERE run_id = ? ORDER BY batch`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("statsdb: query run %s: %w", runID, err)
	}
	defer rows.Close()

	var stats []BatchStat
	for rows.Next() {
		var s BatchStat
		if err := rows.Scan(&s.Epoch, &s.Batch, &s.Samples, &s.Loss,
			&s.Diags.PosLoss, &s.Diags.YawLoss, &s.Diags.TimeLoss, &s.Diags.ProbLoss); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RunIDs returns the IDs of all recorded runs, oldest first.
func (db *DB) RunIDs() ([]string, error) {
	rows, err := db.Query(`SELECT run_id FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
