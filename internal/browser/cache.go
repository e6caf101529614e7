package browser

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// SnapshotCache memoizes extraction output per URL. A cached snapshot is
// served only while it passes the validity check: same URL, same content
// fingerprint, and younger than maxAge.
type SnapshotCache struct {
	mu        sync.Mutex
	snapshots map[string]*schemas.PageSnapshot
	maxAge    time.Duration
	logger    *zap.Logger

	now func() time.Time
}

// NewSnapshotCache creates a cache holding one snapshot per URL.
func NewSnapshotCache(maxAge time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		snapshots: make(map[string]*schemas.PageSnapshot),
		maxAge:    maxAge,
		logger:    logger.Named("snapshot_cache"),
		now:       time.Now,
	}
}

// Get returns the cached elements for url if the snapshot is still valid.
func (c *SnapshotCache) Get(url, fingerprint string) ([]schemas.ElementRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snapshots[url]
	if !ok {
		return nil, false
	}
	if !snap.Valid(url, fingerprint, c.now(), c.maxAge) {
		c.logger.Debug("Snapshot stale, discarding.", zap.String("url", url))
		delete(c.snapshots, url)
		return nil, false
	}
	return snap.Elements, true
}

// Put stores a fresh snapshot, replacing any previous one for the URL.
func (c *SnapshotCache) Put(url, fingerprint string, elements []schemas.ElementRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[url] = &schemas.PageSnapshot{
		URL:         url,
		Timestamp:   c.now(),
		Elements:    elements,
		Fingerprint: fingerprint,
	}
}

// Invalidate drops the snapshot for a URL, forcing re-extraction.
func (c *SnapshotCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, url)
}

// Len reports how many URLs currently have snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}
