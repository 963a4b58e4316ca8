package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked writer re-attempts the file lock.
const lockRetryDelay = 50 * time.Millisecond

// ingestLock serializes collection writes within a host using an advisory
// file lock keyed on the collection name. It complements the transactional
// advisory lock the Postgres querier takes: the file lock keeps concurrent
// in-process writers ordered, the database lock protects the cross-process
// create-or-append race.
type ingestLock struct {
	fl *flock.Flock
}

func newIngestLock(collection string) *ingestLock {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("docqa-%s.lock", collection))
	return &ingestLock{fl: flock.New(path)}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *ingestLock) Lock(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ingest lock %s not acquired", l.fl.Path())
	}
	return nil
}

// Unlock releases the lock. Failure to release is logged, not propagated:
// the write already happened and the lock file expires with the process.
func (l *ingestLock) Unlock() {
	if err := l.fl.Unlock(); err != nil {
		slog.Warn("releasing ingest lock", "path", l.fl.Path(), "error", err)
	}
}
