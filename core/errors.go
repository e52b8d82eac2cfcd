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

import "errors"

// Domain validation errors
var (
	// ErrInvalidCatalogItem indicates a CatalogItem failed validation.
	ErrInvalidCatalogItem = errors.New("invalid catalog item")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrInvalidJobParams indicates sync job parameters failed validation.
	ErrInvalidJobParams = errors.New("invalid job params")

	// ErrInvalidJobMode indicates an unknown JobMode value.
	ErrInvalidJobMode = errors.New("invalid job mode")

	// ErrEmptyModel indicates the target embedding model is not set.
	ErrEmptyModel = errors.New("embedding model cannot be empty")

	// ErrEmptyProvider indicates the target embedding provider is not set.
	ErrEmptyProvider = errors.New("embedding provider cannot be empty")

	// ErrInvalidDimension indicates a non-positive embedding dimension.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrNegativeLimit indicates a negative row limit.
	ErrNegativeLimit = errors.New("limit cannot be negative")
)
