// Package dedup implements the event-deduplication window (spec.md §4.7): a
// per-endpoint bounded map from batch checksum to first-seen timestamp,
// pruned of expired entries on every lookup. It repurposes the teacher's
// engine/internal/resources.Manager LRU+TTL eviction idiom (checkpointing a
// small in-memory cache to bound its size) for a new key space: event-batch
// checksums instead of fetched pages.
package dedup

import (
	"sync"
	"time"
)

// Window tracks, per endpoint, the checksums of recently-seen event batches.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]map[string]time.Time // endpoint -> checksum -> firstSeen
	now     func() time.Time
}

// New returns a Window that suppresses a repeated checksum for ttl (the
// spec's default is 5 minutes).
func New(ttl time.Duration) *Window {
	return &Window{
		ttl:     ttl,
		entries: make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

// SeenRecently reports whether checksum was already recorded for endpoint
// within the window, pruning any entries for that endpoint older than the
// window as a side effect. If not seen, it records checksum as first-seen
// now.
func (w *Window) SeenRecently(endpoint, checksum string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	bucket, ok := w.entries[endpoint]
	if !ok {
		bucket = make(map[string]time.Time)
		w.entries[endpoint] = bucket
	}
	for cs, seenAt := range bucket {
		if now.Sub(seenAt) > w.ttl {
			delete(bucket, cs)
		}
	}
	if seenAt, ok := bucket[checksum]; ok && now.Sub(seenAt) <= w.ttl {
		return true
	}
	bucket[checksum] = now
	return false
}
