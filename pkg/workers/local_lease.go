package workers

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	holder  string
	expires time.Time
}

// LocalLease is an in-process Lease for single-worker deployments and tests.
type LocalLease struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

func NewLocalLease() *LocalLease {
	return &LocalLease{
		entries: make(map[string]localEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *LocalLease) Acquire(_ context.Context, executionID, holder string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[executionID]
	if ok && entry.expires.After(l.now()) && entry.holder != holder {
		return false, nil
	}

	l.entries[executionID] = localEntry{holder: holder, expires: l.now().Add(ttl)}

	return true, nil
}

func (l *LocalLease) Release(_ context.Context, executionID, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[executionID]; ok && entry.holder == holder {
		delete(l.entries, executionID)
	}

	return nil
}
