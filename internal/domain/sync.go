package domain

import "time"

// SyncResult summarizes one reconciliation of the subscriptions file against storage.
type SyncResult struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Errors    []string
}

// FeedOutcome is the per-feed result of a batch fetch. Err is nil on success.
type FeedOutcome struct {
	New int
	Err error
}

type BatchResult map[string]FeedOutcome

func (r BatchResult) Totals() (inserted, failed int) {
	for _, o := range r {
		if o.Err != nil {
			failed++
			continue
		}
		inserted += o.New
	}
	return inserted, failed
}

// CycleStats describes one scheduled sync-then-fetch run.
type CycleStats struct {
	Sync     *SyncResult
	Feeds    int
	Inserted int
	Failed   int
	Duration time.Duration
}
