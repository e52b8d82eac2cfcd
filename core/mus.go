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
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for every type persisted to the store. Written by hand
// rather than generated: the set of persisted types is small and stable,
// and hand-written serializers keep map key ordering deterministic.
var (
	SKUIDMUS        = skuIDMUS{}
	JobIDMUS        = jobIDMUS{}
	CatalogItemMUS  = catalogItemMUS{}
	EmbeddingRowMUS = embeddingRowMUS{}
	SyncJobMUS      = syncJobMUS{}
	SyncJobItemMUS  = syncJobItemMUS{}
)

type skuIDMUS struct{}

func (skuIDMUS) Marshal(v SKUID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }
func (skuIDMUS) Size(v SKUID) int               { return varint.Uint64.Size(uint64(v)) }
func (skuIDMUS) Unmarshal(bs []byte) (SKUID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return SKUID(v), n, err
}

type jobIDMUS struct{}

func (jobIDMUS) Marshal(v JobID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }
func (jobIDMUS) Size(v JobID) int               { return varint.Uint64.Size(uint64(v)) }
func (jobIDMUS) Unmarshal(bs []byte) (JobID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return JobID(v), n, err
}

// timeMUS encodes a time as a presence flag plus Unix microseconds, so
// zero times survive a round trip without overflowing the Unix epoch.
type timeMUS struct{}

func (timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	n = ord.Bool.Marshal(!v.IsZero(), bs)
	if !v.IsZero() {
		n += varint.Int64.Marshal(v.UnixMicro(), bs[n:])
	}
	return n
}

func (timeMUS) Size(v time.Time) (size int) {
	size = ord.Bool.Size(!v.IsZero())
	if !v.IsZero() {
		size += varint.Int64.Size(v.UnixMicro())
	}
	return size
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	set, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !set {
		return time.Time{}, n, err
	}
	us, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

// strMapMUS encodes a map with sorted keys for deterministic output.
type strMapMUS struct{}

func (strMapMUS) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(m), bs)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func (strMapMUS) Size(m map[string]string) (size int) {
	size = varint.PositiveInt.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return size
}

func (strMapMUS) Unmarshal(bs []byte) (map[string]string, int, error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, length)
	for i := 0; i < length; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n2, err := ord.String.Unmarshal(bs[n:])
		n += n2
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func (vectorMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	v := make([]float32, length)
	for i := 0; i < length; i++ {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

var (
	timeSer = timeMUS{}
	mapSer  = strMapMUS{}
	vecSer  = vectorMUS{}
)

type catalogItemMUS struct{}

func (catalogItemMUS) Marshal(v CatalogItem, bs []byte) (n int) {
	n = SKUIDMUS.Marshal(v.SKU, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.Brand, bs[n:])
	n += ord.String.Marshal(v.Category, bs[n:])
	n += ord.String.Marshal(v.Description, bs[n:])
	n += mapSer.Marshal(v.Attributes, bs[n:])
	n += varint.Int64.Marshal(v.PriceCents, bs[n:])
	n += timeSer.Marshal(v.CreatedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (catalogItemMUS) Size(v CatalogItem) (size int) {
	size = SKUIDMUS.Size(v.SKU)
	size += ord.String.Size(v.Name)
	size += ord.String.Size(v.Brand)
	size += ord.String.Size(v.Category)
	size += ord.String.Size(v.Description)
	size += mapSer.Size(v.Attributes)
	size += varint.Int64.Size(v.PriceCents)
	size += timeSer.Size(v.CreatedAt)
	size += timeSer.Size(v.UpdatedAt)
	return size
}

func (catalogItemMUS) Unmarshal(bs []byte) (v CatalogItem, n int, err error) {
	var n1 int
	v.SKU, n, err = SKUIDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Brand, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Category, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Description, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Attributes, n1, err = mapSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.PriceCents, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

type embeddingRowMUS struct{}

func (embeddingRowMUS) Marshal(v EmbeddingRow, bs []byte) (n int) {
	n = SKUIDMUS.Marshal(v.SKU, bs)
	n += vecSer.Marshal(v.Vector, bs[n:])
	n += varint.Int.Marshal(v.Dim, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	n += ord.String.Marshal(v.Provider, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.ContentHash, bs[n:])
	n += mapSer.Marshal(v.Metadata, bs[n:])
	n += timeSer.Marshal(v.SourceUpdatedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (embeddingRowMUS) Size(v EmbeddingRow) (size int) {
	size = SKUIDMUS.Size(v.SKU)
	size += vecSer.Size(v.Vector)
	size += varint.Int.Size(v.Dim)
	size += ord.String.Size(v.Model)
	size += ord.String.Size(v.Provider)
	size += ord.String.Size(v.Text)
	size += ord.String.Size(v.ContentHash)
	size += mapSer.Size(v.Metadata)
	size += timeSer.Size(v.SourceUpdatedAt)
	size += timeSer.Size(v.UpdatedAt)
	return size
}

func (embeddingRowMUS) Unmarshal(bs []byte) (v EmbeddingRow, n int, err error) {
	var n1 int
	v.SKU, n, err = SKUIDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Vector, n1, err = vecSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Dim, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Provider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ContentHash, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = mapSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SourceUpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

type jobParamsMUS struct{}

var paramsSer = jobParamsMUS{}

func (jobParamsMUS) Marshal(v JobParams, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.Mode), bs)
	n += ord.Bool.Marshal(v.OnlyStale, bs[n:])
	n += timeSer.Marshal(v.UpdatedSince, bs[n:])
	n += varint.Int.Marshal(v.Limit, bs[n:])
	n += varint.Int.Marshal(v.BatchSize, bs[n:])
	n += varint.Int64.Marshal(int64(v.RateLimit), bs[n:])
	n += ord.String.Marshal(v.Provider, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	n += varint.Int.Marshal(v.Dim, bs[n:])
	n += mapSer.Marshal(v.Filter.Equals, bs[n:])
	n += mapSer.Marshal(v.Filter.Contains, bs[n:])
	return n
}

func (jobParamsMUS) Size(v JobParams) (size int) {
	size = ord.String.Size(string(v.Mode))
	size += ord.Bool.Size(v.OnlyStale)
	size += timeSer.Size(v.UpdatedSince)
	size += varint.Int.Size(v.Limit)
	size += varint.Int.Size(v.BatchSize)
	size += varint.Int64.Size(int64(v.RateLimit))
	size += ord.String.Size(v.Provider)
	size += ord.String.Size(v.Model)
	size += varint.Int.Size(v.Dim)
	size += mapSer.Size(v.Filter.Equals)
	size += mapSer.Size(v.Filter.Contains)
	return size
}

func (jobParamsMUS) Unmarshal(bs []byte) (v JobParams, n int, err error) {
	var (
		n1   int
		mode string
		rate int64
	)
	mode, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Mode = JobMode(mode)
	v.OnlyStale, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedSince, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Limit, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.BatchSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	rate, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.RateLimit = time.Duration(rate)
	v.Provider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Dim, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Filter.Equals, n1, err = mapSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Filter.Contains, n1, err = mapSer.Unmarshal(bs[n:])
	n += n1
	return
}

type syncJobMUS struct{}

func (syncJobMUS) Marshal(v SyncJob, bs []byte) (n int) {
	n = JobIDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(string(v.Mode), bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.RequestedBy, bs[n:])
	n += ord.String.Marshal(v.RequestIP, bs[n:])
	n += paramsSer.Marshal(v.Params, bs[n:])
	n += varint.Int64.Marshal(v.Processed, bs[n:])
	n += varint.Int64.Marshal(v.Inserted, bs[n:])
	n += varint.Int64.Marshal(v.Updated, bs[n:])
	n += varint.Int64.Marshal(v.Skipped, bs[n:])
	n += varint.Int64.Marshal(v.Errors, bs[n:])
	n += SKUIDMUS.Marshal(v.LastSKU, bs[n:])
	n += ord.Bool.Marshal(v.CancelRequested, bs[n:])
	n += ord.String.Marshal(v.ErrorSummary, bs[n:])
	n += timeSer.Marshal(v.StartedAt, bs[n:])
	n += timeSer.Marshal(v.FinishedAt, bs[n:])
	n += timeSer.Marshal(v.CreatedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (syncJobMUS) Size(v SyncJob) (size int) {
	size = JobIDMUS.Size(v.ID)
	size += ord.String.Size(string(v.Mode))
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.RequestedBy)
	size += ord.String.Size(v.RequestIP)
	size += paramsSer.Size(v.Params)
	size += varint.Int64.Size(v.Processed)
	size += varint.Int64.Size(v.Inserted)
	size += varint.Int64.Size(v.Updated)
	size += varint.Int64.Size(v.Skipped)
	size += varint.Int64.Size(v.Errors)
	size += SKUIDMUS.Size(v.LastSKU)
	size += ord.Bool.Size(v.CancelRequested)
	size += ord.String.Size(v.ErrorSummary)
	size += timeSer.Size(v.StartedAt)
	size += timeSer.Size(v.FinishedAt)
	size += timeSer.Size(v.CreatedAt)
	size += timeSer.Size(v.UpdatedAt)
	return size
}

func (syncJobMUS) Unmarshal(bs []byte) (v SyncJob, n int, err error) {
	var (
		n1 int
		s  string
	)
	v.ID, n, err = JobIDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Mode = JobMode(s)
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = JobStatus(s)
	v.RequestedBy, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.RequestIP, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Params, n1, err = paramsSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Processed, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Inserted, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Updated, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Skipped, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Errors, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastSKU, n1, err = SKUIDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CancelRequested, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ErrorSummary, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.StartedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FinishedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

type syncJobItemMUS struct{}

func (syncJobItemMUS) Marshal(v SyncJobItem, bs []byte) (n int) {
	n = varint.Uint64.Marshal(v.ID, bs)
	n += JobIDMUS.Marshal(v.JobID, bs[n:])
	n += SKUIDMUS.Marshal(v.SKU, bs[n:])
	n += ord.String.Marshal(string(v.Action), bs[n:])
	n += ord.String.Marshal(v.HashBefore, bs[n:])
	n += ord.String.Marshal(v.HashAfter, bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += timeSer.Marshal(v.CreatedAt, bs[n:])
	return n
}

func (syncJobItemMUS) Size(v SyncJobItem) (size int) {
	size = varint.Uint64.Size(v.ID)
	size += JobIDMUS.Size(v.JobID)
	size += SKUIDMUS.Size(v.SKU)
	size += ord.String.Size(string(v.Action))
	size += ord.String.Size(v.HashBefore)
	size += ord.String.Size(v.HashAfter)
	size += ord.String.Size(v.ErrorMessage)
	size += timeSer.Size(v.CreatedAt)
	return size
}

func (syncJobItemMUS) Unmarshal(bs []byte) (v SyncJobItem, n int, err error) {
	var (
		n1 int
		s  string
	)
	v.ID, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.JobID, n1, err = JobIDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SKU, n1, err = SKUIDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Action = ItemAction(s)
	v.HashBefore, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.HashAfter, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}
