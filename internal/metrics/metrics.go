// Package metrics tracks cache and network statistics for the asset client.
package metrics

import (
	"sync"
	"time"
)

// maxLatencySamples bounds the number of retained latency measurements.
const maxLatencySamples = 10000

// Metrics collects hit/miss ratios, fetch counts and latencies.
// It is safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	hits   int64
	misses int64

	containerFetches int64
	imageFetches     int64
	fetchErrors      int64
	sharedFetches    int64
	resets           int64

	bytesDownloaded int64

	fetchLatencies []time.Duration

	startTime     time.Time
	lastHitTime   time.Time
	lastMissTime  time.Time
	lastErrorTime time.Time
}

// New creates a new Metrics instance.
func New() *Metrics {
	now := time.Now()
	return &Metrics{
		startTime:      now,
		lastHitTime:    now,
		lastMissTime:   now,
		lastErrorTime:  now,
		fetchLatencies: make([]time.Duration, 0, 256),
	}
}

// RecordHit records a request served from the cache.
func (m *Metrics) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hits++
	m.lastHitTime = time.Now()
}

// RecordMiss records a request that required a fetch.
func (m *Metrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.misses++
	m.lastMissTime = time.Now()
}

// RecordContainerFetch records a completed container request.
func (m *Metrics) RecordContainerFetch(bytes int64, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.containerFetches++
	m.bytesDownloaded += bytes
	m.fetchLatencies = append(m.fetchLatencies, latency)
	if len(m.fetchLatencies) > maxLatencySamples {
		m.fetchLatencies = m.fetchLatencies[len(m.fetchLatencies)-maxLatencySamples/2:]
	}
}

// RecordImageFetch records a completed image request.
func (m *Metrics) RecordImageFetch(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.imageFetches++
	m.bytesDownloaded += bytes
}

// RecordSharedFetch records a request that joined an in-flight fetch.
func (m *Metrics) RecordSharedFetch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sharedFetches++
}

// RecordError records a failed fetch.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchErrors++
	m.lastErrorTime = time.Now()
}

// RecordReset records a cache reset.
func (m *Metrics) RecordReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avg time.Duration
	if len(m.fetchLatencies) > 0 {
		var total time.Duration
		for _, lat := range m.fetchLatencies {
			total += lat
		}
		avg = total / time.Duration(len(m.fetchLatencies))
	}

	var hitRate float64
	if total := m.hits + m.misses; total > 0 {
		hitRate = float64(m.hits) / float64(total)
	}

	return Snapshot{
		Hits:                m.hits,
		Misses:              m.misses,
		HitRate:             hitRate,
		ContainerFetches:    m.containerFetches,
		ImageFetches:        m.imageFetches,
		SharedFetches:       m.sharedFetches,
		FetchErrors:         m.fetchErrors,
		Resets:              m.resets,
		BytesDownloaded:     m.bytesDownloaded,
		AverageFetchLatency: avg,
		FetchLatencySamples: len(m.fetchLatencies),
		Uptime:              time.Since(m.startTime),
		TimeSinceLastHit:    time.Since(m.lastHitTime),
		TimeSinceLastMiss:   time.Since(m.lastMissTime),
		TimeSinceLastError:  time.Since(m.lastErrorTime),
	}
}

// Snapshot is a point-in-time view of client metrics.
type Snapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`

	ContainerFetches int64 `json:"container_fetches"`
	ImageFetches     int64 `json:"image_fetches"`
	SharedFetches    int64 `json:"shared_fetches"`
	FetchErrors      int64 `json:"fetch_errors"`
	Resets           int64 `json:"resets"`

	BytesDownloaded int64 `json:"bytes_downloaded"`

	AverageFetchLatency time.Duration `json:"avg_fetch_latency_ns"`
	FetchLatencySamples int           `json:"fetch_latency_samples"`

	Uptime             time.Duration `json:"uptime"`
	TimeSinceLastHit   time.Duration `json:"time_since_last_hit"`
	TimeSinceLastMiss  time.Duration `json:"time_since_last_miss"`
	TimeSinceLastError time.Duration `json:"time_since_last_error"`
}
