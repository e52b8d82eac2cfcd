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
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/catadex/catadex/storage"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// defaultLockTTL bounds how long a crashed holder can keep a lock.
const defaultLockTTL = 1 * time.Minute

// errLockHeld aborts the acquire transaction when another owner holds
// the lock. Never escapes Acquire.
var errLockHeld = errors.New("lock held")

// LockRepository implements storage.LockRepository on a single record per
// lock name, updated via compare-and-swap. Two concurrent acquirers both
// read the record and both try to write it; BadgerDB's transaction
// conflict detection commits exactly one, which is the mutual-exclusion
// guarantee across process instances sharing the store.
type LockRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.LockRepository = (*LockRepository)(nil)

// NewLockRepository creates a new LockRepository.
func NewLockRepository(backend *Backend) *LockRepository {
	return &LockRepository{
		backend: backend,
		logger:  slog.Default().With("component", "badger-locks"),
	}
}

type lockRecord struct {
	owner    string
	deadline time.Time
}

func marshalLockRecord(rec lockRecord) []byte {
	size := ord.String.Size(rec.owner) + varint.Int64.Size(rec.deadline.UnixMicro())
	buf := make([]byte, size)
	n := ord.String.Marshal(rec.owner, buf)
	varint.Int64.Marshal(rec.deadline.UnixMicro(), buf[n:])
	return buf
}

func unmarshalLockRecord(data []byte) (lockRecord, error) {
	owner, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return lockRecord{}, err
	}
	us, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return lockRecord{}, err
	}
	return lockRecord{owner: owner, deadline: time.UnixMicro(us).UTC()}, nil
}

// Acquire attempts to take the named lock for owner, valid for ttl.
// Re-acquiring with the same owner extends the deadline, which long-held
// execution locks use as a heartbeat.
func (r *LockRepository) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	key := makeLockKey(name)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			var rec lockRecord
			err = entry.Value(func(val []byte) error {
				var unmarshalErr error
				rec, unmarshalErr = unmarshalLockRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if rec.owner != owner && time.Now().Before(rec.deadline) {
				return errLockHeld
			}
		}

		rec := lockRecord{owner: owner, deadline: time.Now().UTC().Add(ttl)}
		if err := tx.Set(key, marshalLockRecord(rec)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		if errors.Is(err, errLockHeld) || err == badger.ErrConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release frees the named lock if owner holds it. A concurrent writer
// can conflict the delete transaction; that gets exactly one retry, and
// a second conflict is returned to the caller.
func (r *LockRepository) Release(ctx context.Context, name, owner string) error {
	err := r.releaseOwned(name, owner)
	if err == badger.ErrConflict {
		r.logger.Debug("lock release conflicted, retrying once", "lock", name)
		err = r.releaseOwned(name, owner)
	}
	return err
}

func (r *LockRepository) releaseOwned(name, owner string) error {
	key := makeLockKey(name)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var rec lockRecord
		err = entry.Value(func(val []byte) error {
			var unmarshalErr error
			rec, unmarshalErr = unmarshalLockRecord(val)
			return unmarshalErr
		})
		if err != nil {
			return err
		}
		if rec.owner != owner {
			// Not ours; leave it alone.
			return nil
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
