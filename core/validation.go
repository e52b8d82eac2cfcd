// Copyright 2025 Catadex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"time"
)

const (
	// DefaultBatchSize is used when JobParams.BatchSize is unset.
	DefaultBatchSize = 100

	// MaxBatchSize is the upper clamp for JobParams.BatchSize.
	MaxBatchSize = 1000
)

// ValidateCatalogItem validates a CatalogItem according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//   - UpdatedAt must not be in the future
//
// NOT validated:
//   - SKU (0 is valid; assigned by database sequences)
//   - Description/Brand/Category/Attributes (optional)
func ValidateCatalogItem(item *CatalogItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidCatalogItem)
	}

	if item.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogItem, ErrEmptyName)
	}

	if !IsValidTimestamp(item.UpdatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogItem, ErrInvalidTimestamp)
	}

	return nil
}

// NormalizeJobParams fills defaults and clamps tuning knobs:
// empty mode becomes dry_run, BatchSize is clamped to [1, MaxBatchSize]
// with DefaultBatchSize when unset, and negative RateLimit is zeroed.
func NormalizeJobParams(p JobParams) JobParams {
	if p.Mode == "" {
		p.Mode = JobModeDryRun
	}
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.BatchSize > MaxBatchSize {
		p.BatchSize = MaxBatchSize
	}
	if p.RateLimit < 0 {
		p.RateLimit = 0
	}
	return p
}

// ValidateJobParams validates sync job parameters. Callers normally run
// NormalizeJobParams first.
func ValidateJobParams(p *JobParams) error {
	if p == nil {
		return fmt.Errorf("%w: params are nil", ErrInvalidJobParams)
	}

	if p.Mode != JobModeDryRun && p.Mode != JobModeExecute {
		return fmt.Errorf("%w: %w: %q", ErrInvalidJobParams, ErrInvalidJobMode, p.Mode)
	}

	if p.Provider == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJobParams, ErrEmptyProvider)
	}

	if p.Model == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJobParams, ErrEmptyModel)
	}

	if p.Dim <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidJobParams, ErrInvalidDimension)
	}

	if p.Limit < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidJobParams, ErrNegativeLimit)
	}

	return nil
}

// IsValidTimestamp checks that a timestamp is not in the future.
// A small clock-skew allowance of 1 minute is permitted.
func IsValidTimestamp(t time.Time) bool {
	return !t.After(time.Now().Add(1 * time.Minute))
}
