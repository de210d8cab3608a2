package domain

import "time"

// DiscoveryStats holds statistics about a discovery run.
type DiscoveryStats struct {
	Pages       int
	Transitions int
	EmptyPages  int
	Discovered  int
	New         int
	Total       int
	Duration    time.Duration
}

// ExtractionStats holds statistics about an extraction run.
type ExtractionStats struct {
	Requested   int
	AlreadyDone int
	Pending     int
	Extracted   int
	Skipped     int
	Flushes     int
	Published   int
	Errors      int
	Duration    time.Duration
}

// CrawlState is the persisted progress marker of one pipeline phase.
type CrawlState struct {
	ID            int64     `db:"id"`
	Phase         string    `db:"phase"`
	LastFlushedAt time.Time `db:"last_flushed_at"`
	Total         int64     `db:"total"`
}

const (
	PhaseDiscovery  = "discovery"
	PhaseExtraction = "extraction"
)
