// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"fmt"
	"time"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/trainer"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DefaultFilename is the name of the history database inside a model directory.
const DefaultFilename = "history.sqlite"

// Store persists the training history in a SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at filename.
func Open(filename string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: NewLogger(log.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun records the beginning of a training session.
func (s *Store) StartRun(modelDir string, m *ocrmodel.Model, opts trainer.Options) (*Run, error) {
	config, err := yaml.Marshal(m.Config)
	if err != nil {
		return nil, err
	}
	options, err := yaml.Marshal(opts)
	if err != nil {
		return nil, err
	}
	run := &Run{
		ModelDir:  modelDir,
		Config:    string(config),
		Options:   string(options),
		NumParams: m.NumParams(),
	}
	if err = s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// RecordEpoch stores the outcome of an epoch of the given run.
func (s *Store) RecordEpoch(runID uint, stats trainer.EpochStats) error {
	e := Epoch{
		RunID:    runID,
		Epoch:    stats.Epoch,
		Loss:     stats.Loss,
		Steps:    stats.Steps,
		Duration: stats.Duration,
	}
	if v := stats.Validation; v != nil {
		e.ValidationLoss = &v.Loss
		e.ValidationCER = &v.CER
		e.ValidationAccuracy = &v.Accuracy
	}
	if err := s.db.Create(&e).Error; err != nil {
		return fmt.Errorf("failed to record epoch %d of run %d: %w", stats.Epoch, runID, err)
	}
	return nil
}

// FinishRun marks a run as completed.
func (s *Store) FinishRun(runID uint) error {
	now := time.Now()
	res := s.db.Model(&Run{}).Where("id = ?", runID).Update("finished_at", &now)
	if res.Error != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// Runs returns all the runs, most recent first, with their epochs.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.Preload("Epochs", func(db *gorm.DB) *gorm.DB {
		return db.Order("epoch")
	}).Order("id desc").Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Epochs returns the epochs of a run in order.
func (s *Store) Epochs(runID uint) ([]Epoch, error) {
	var epochs []Epoch
	if err := s.db.Where("run_id = ?", runID).Order("epoch").Find(&epochs).Error; err != nil {
		return nil, fmt.Errorf("failed to list epochs of run %d: %w", runID, err)
	}
	return epochs, nil
}
