package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "semcal/internal/log"
	"semcal/internal/model"
)

// Feeds keeps the last parsed events of the subscribed sources and serves
// them as read-only tasks.
type Feeds struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location

	mu        sync.RWMutex
	events    []ParsedEvent
	updatedAt time.Time
}

// NewFeeds returns an empty registry for sources. Call Refresh to fill it.
func NewFeeds(fetcher *Fetcher, sources []Source, loc *time.Location) *Feeds {
	return &Feeds{fetcher: fetcher, sources: sources, loc: loc}
}

// Refresh fetches and parses every source. Sources that fail keep no
// events; the others replace the previous set. The joined per-source errors
// are returned.
func (f *Feeds) Refresh(ctx context.Context) error {
	if len(f.sources) == 0 {
		return nil
	}
	results, errs := f.fetcher.FetchAll(ctx, f.sources)

	var events []ParsedEvent
	for _, res := range results {
		parsed, err := ParseFeed(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics feed parse failed", err, "id", res.Source.ID)
			errs = append(errs, err)
			continue
		}
		events = append(events, parsed...)
	}

	f.mu.Lock()
	f.events = events
	f.updatedAt = time.Now()
	f.mu.Unlock()

	appLog.Info("ics feeds refreshed", "sources", len(f.sources), "events", len(events), "errors", len(errs))
	return errors.Join(errs...)
}

// Tasks returns the feed occurrences dated within [start, end].
func (f *Feeds) Tasks(start, end time.Time) ([]model.Task, error) {
	if f == nil {
		return nil, nil
	}
	f.mu.RLock()
	events := f.events
	f.mu.RUnlock()
	if len(events) == 0 {
		return nil, nil
	}

	res, err := ImportEvents(events, ImportConfig{
		Location:   f.loc,
		RangeStart: start,
		RangeEnd:   end,
	})
	return res.Tasks, err
}

// UpdatedAt is the time of the last Refresh.
func (f *Feeds) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updatedAt
}
