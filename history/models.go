// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"time"
)

// Models lists the tables of the store.
var Models = []any{
	&Run{},
	&Epoch{},
}

// Run is a training session.
type Run struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt  time.Time `gorm:"not null"`
	FinishedAt *time.Time

	// ModelDir is the directory the model is saved to.
	ModelDir  string `gorm:"not null;index"`
	Config    string `gorm:"not null"`
	Options   string `gorm:"not null"`
	NumParams int    `gorm:"not null"`
	Epochs    []Epoch
}

// Epoch is the outcome of a training epoch.
type Epoch struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"not null"`

	RunID    uint          `gorm:"not null;uniqueIndex:idx_run_epoch"`
	Epoch    int           `gorm:"not null;uniqueIndex:idx_run_epoch"`
	Loss     float64       `gorm:"not null"`
	Steps    int           `gorm:"not null"`
	Duration time.Duration `gorm:"not null"`

	ValidationLoss     *float64
	ValidationCER      *float64
	ValidationAccuracy *float64
}
