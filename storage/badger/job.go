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


package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Besides the job rows themselves, the repository maintains a single
// active-job marker key. The marker is written in the same transaction
// as the job row it points to, so "at most one queued/running job" holds
// even when two creators race: BadgerDB aborts one of two conflicting
// transactions, and the loser observes the winner's marker on retry.
type JobRepository struct {
	backend *Backend
	jobSeq  *badger.Sequence
	itemSeq *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	jobSeq, err := backend.GetSequence(syncJobIDSeq)
	if err != nil {
		return nil, err
	}
	itemSeq, err := backend.GetSequence(syncJobItemIDSeq)
	if err != nil {
		jobSeq.Release()
		return nil, err
	}

	return &JobRepository{
		backend: backend,
		jobSeq:  jobSeq,
		itemSeq: itemSeq,
	}, nil
}

// Close releases the ID sequences.
func (r *JobRepository) Close() error {
	if err := r.jobSeq.Release(); err != nil {
		r.itemSeq.Release()
		return err
	}
	return r.itemSeq.Release()
}

// CreateJob inserts a new job with a monotonic ID from sequence.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.SyncJob) (*core.SyncJob, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if job.Status.Active() {
			if _, err := tx.Get([]byte(syncJobActiveKey)); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}

		next, err := r.jobSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if next == 0 {
			next, err = r.jobSeq.Next()
			if err != nil {
				return err
			}
		}
		job.ID = core.JobID(next)

		now := time.Now().UTC()
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now

		if err := tx.Set(makeJobKey(job.ID), storage.MarshalSyncJob(job)); err != nil {
			return err
		}
		if job.Status.Active() {
			if err := tx.Set([]byte(syncJobActiveKey), storage.MarshalJobID(job.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		// A commit conflict means another creator won the race; the
		// caller sees it as the same condition as a live marker.
		if err == badger.ErrConflict {
			return nil, storage.ErrDuplicateKey
		}
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id core.JobID) (*core.SyncJob, error) {
	var job *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var loadErr error
		job, loadErr = r.readJob(tx, id)
		return loadErr
	}, false)

	return job, err
}

// UpdateJob overwrites a job row. Reaching a terminal status clears the
// active marker; keeping an active status refreshes it.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.SyncJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.ID)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalSyncJob(job)); err != nil {
			return err
		}

		if job.Status.Terminal() {
			if id, err := r.readActiveID(tx); err != nil {
				return err
			} else if id == job.ID {
				if err := tx.Delete([]byte(syncJobActiveKey)); err != nil {
					return err
				}
			}
		} else if job.Status.Active() {
			if err := tx.Set([]byte(syncJobActiveKey), storage.MarshalJobID(job.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListJobs returns up to limit jobs, most recent first.
func (r *JobRepository) ListJobs(ctx context.Context, limit int) ([]*core.SyncJob, error) {
	var jobs []*core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = jobScanPrefix()
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// In reverse mode the iterator must be seeked to the end of the
		// prefix range before it yields anything.
		seek := append(jobScanPrefix(), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			var job *core.SyncJob
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				job, unmarshalErr = storage.UnmarshalSyncJob(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
			if limit > 0 && len(jobs) >= limit {
				break
			}
		}
		return nil
	}, false)

	return jobs, err
}

// ActiveJob returns the job currently in queued or running state, or nil.
func (r *JobRepository) ActiveJob(ctx context.Context) (*core.SyncJob, error) {
	var job *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := r.readActiveID(tx)
		if err != nil || id == 0 {
			return err
		}
		job, err = r.readJob(tx, id)
		if err == storage.ErrNotFound {
			// Dangling marker; treat as no active job.
			job = nil
			return nil
		}
		return err
	}, false)

	if err != nil {
		return nil, err
	}
	if job != nil && !job.Status.Active() {
		return nil, nil
	}
	return job, nil
}

// AddJobItems appends audit items for a job.
func (r *JobRepository) AddJobItems(ctx context.Context, items ...*core.SyncJobItem) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			next, err := r.itemSeq.Next()
			if err != nil {
				return err
			}
			if next == 0 {
				next, err = r.itemSeq.Next()
				if err != nil {
					return err
				}
			}
			item.ID = next

			if item.CreatedAt.IsZero() {
				item.CreatedAt = time.Now().UTC()
			}

			key := makeJobItemKey(item.JobID, item.ID)
			if err := tx.Set(key, storage.MarshalSyncJobItem(item)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListJobItems returns up to limit audit items for a job in insertion order.
func (r *JobRepository) ListJobItems(ctx context.Context, jobID core.JobID, limit int) ([]*core.SyncJobItem, error) {
	var items []*core.SyncJobItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = jobItemScanPrefix(jobID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var item *core.SyncJobItem
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				item, unmarshalErr = storage.UnmarshalSyncJobItem(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				break
			}
		}
		return nil
	}, false)

	return items, err
}

// readJob loads one job row inside a transaction.
func (r *JobRepository) readJob(tx *badger.Txn, id core.JobID) (*core.SyncJob, error) {
	entry, err := tx.Get(makeJobKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var job *core.SyncJob
	err = entry.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalSyncJob(val)
		return unmarshalErr
	})
	return job, err
}

// readActiveID reads the active-job marker, returning 0 when unset.
func (r *JobRepository) readActiveID(tx *badger.Txn) (core.JobID, error) {
	entry, err := tx.Get([]byte(syncJobActiveKey))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}

	var id core.JobID
	err = entry.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalJobID(val)
		return unmarshalErr
	})
	return id, err
}
