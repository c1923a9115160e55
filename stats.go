package appcrafted

import (
	"time"
)

// Stats is a point-in-time summary of the client's cache and network activity.
type Stats struct {
	Endpoint string

	// Cache contents.
	Containers int
	Assets     int
	Images     int
	Generation uint64

	// Request outcomes.
	Hits    int64
	Misses  int64
	HitRate float64

	// Network activity.
	ContainerFetches    int64
	ImageFetches        int64
	SharedFetches       int64
	FetchErrors         int64
	BytesDownloaded     int64
	AverageFetchLatency time.Duration

	Resets    int64
	Listeners int
	Uptime    time.Duration
}

// Stats returns a snapshot of the client's statistics.
func (c *Client) Stats() Stats {
	contents := c.store.Stats()
	snap := c.metrics.Snapshot()

	return Stats{
		Endpoint:            c.fetcher.Endpoint(),
		Containers:          contents.Containers,
		Assets:              contents.Assets,
		Images:              contents.Images,
		Generation:          contents.Generation,
		Hits:                snap.Hits,
		Misses:              snap.Misses,
		HitRate:             snap.HitRate,
		ContainerFetches:    snap.ContainerFetches,
		ImageFetches:        snap.ImageFetches,
		SharedFetches:       snap.SharedFetches,
		FetchErrors:         snap.FetchErrors,
		BytesDownloaded:     snap.BytesDownloaded,
		AverageFetchLatency: snap.AverageFetchLatency,
		Resets:              snap.Resets,
		Listeners:           c.events.count(),
		Uptime:              snap.Uptime,
	}
}
