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


package storage

import (
	"github.com/catadex/catadex/core"
)

// MarshalSKUID serializes a SKUID to bytes.
func MarshalSKUID(sku core.SKUID) []byte {
	buf := make([]byte, core.SKUIDMUS.Size(sku))
	core.SKUIDMUS.Marshal(sku, buf)
	return buf
}

// UnmarshalSKUID deserializes a SKUID from bytes.
func UnmarshalSKUID(data []byte) (core.SKUID, error) {
	sku, _, err := core.SKUIDMUS.Unmarshal(data)
	return sku, err
}

// MarshalJobID serializes a JobID to bytes.
func MarshalJobID(id core.JobID) []byte {
	buf := make([]byte, core.JobIDMUS.Size(id))
	core.JobIDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalJobID deserializes a JobID from bytes.
func UnmarshalJobID(data []byte) (core.JobID, error) {
	id, _, err := core.JobIDMUS.Unmarshal(data)
	return id, err
}

// MarshalCatalogItem serializes a CatalogItem to bytes.
func MarshalCatalogItem(item *core.CatalogItem) []byte {
	buf := make([]byte, core.CatalogItemMUS.Size(*item))
	core.CatalogItemMUS.Marshal(*item, buf)
	return buf
}

// UnmarshalCatalogItem deserializes a CatalogItem from bytes.
func UnmarshalCatalogItem(data []byte) (*core.CatalogItem, error) {
	item, _, err := core.CatalogItemMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarshalEmbeddingRow serializes an EmbeddingRow to bytes.
func MarshalEmbeddingRow(row *core.EmbeddingRow) []byte {
	buf := make([]byte, core.EmbeddingRowMUS.Size(*row))
	core.EmbeddingRowMUS.Marshal(*row, buf)
	return buf
}

// UnmarshalEmbeddingRow deserializes an EmbeddingRow from bytes.
func UnmarshalEmbeddingRow(data []byte) (*core.EmbeddingRow, error) {
	row, _, err := core.EmbeddingRowMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarshalSyncJob serializes a SyncJob to bytes.
func MarshalSyncJob(job *core.SyncJob) []byte {
	buf := make([]byte, core.SyncJobMUS.Size(*job))
	core.SyncJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalSyncJob deserializes a SyncJob from bytes.
func UnmarshalSyncJob(data []byte) (*core.SyncJob, error) {
	job, _, err := core.SyncJobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarshalSyncJobItem serializes a SyncJobItem to bytes.
func MarshalSyncJobItem(item *core.SyncJobItem) []byte {
	buf := make([]byte, core.SyncJobItemMUS.Size(*item))
	core.SyncJobItemMUS.Marshal(*item, buf)
	return buf
}

// UnmarshalSyncJobItem deserializes a SyncJobItem from bytes.
func UnmarshalSyncJobItem(data []byte) (*core.SyncJobItem, error) {
	item, _, err := core.SyncJobItemMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
