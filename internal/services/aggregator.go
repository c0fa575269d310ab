package services

import (
	"context"
	"strconv"
	"time"

	"kasharian/internal/cache"
	"kasharian/internal/core"
)

const aggregateCacheSize = 64

// Aggregator builds the history and monthly views. Results are cached until
// the ledger is written or the TTL runs out.
type Aggregator struct {
	ledger  *Ledger
	history *cache.LRUCache[[]core.Day]
	months  *cache.LRUCache[core.MonthSummary]
}

func NewAggregator(ledger *Ledger, ttl time.Duration) *Aggregator {
	a := &Aggregator{
		ledger:  ledger,
		history: cache.NewLRUCache[[]core.Day](aggregateCacheSize, ttl),
		months:  cache.NewLRUCache[core.MonthSummary](aggregateCacheSize, ttl),
	}
	ledger.OnWrite(a.Purge)
	return a
}

// Cleaners returns the caches for periodic expiry.
func (a *Aggregator) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{a.history, a.months}
}

// Purge drops every cached view.
func (a *Aggregator) Purge() {
	a.history.Purge()
	a.months.Purge()
}

// History returns the n most recent recorded days, newest first.
func (a *Aggregator) History(ctx context.Context, n int) ([]core.Day, error) {
	if n <= 0 {
		return []core.Day{}, nil
	}
	key := "history:" + strconv.Itoa(n)
	if days, ok := a.history.Get(key); ok {
		return days, nil
	}

	gen := a.history.Generation()
	snap, err := a.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	all := core.Reconcile(snap, a.ledger.Policy())
	days := make([]core.Day, 0, n)
	for i := len(all) - 1; i >= 0 && len(days) < n; i-- {
		days = append(days, all[i])
	}

	a.history.SetIfCurrent(key, days, gen)
	return days, nil
}

// Monthly returns the close for month ("YYYY-MM", longer input is cut to
// seven characters).
func (a *Aggregator) Monthly(ctx context.Context, month string) (core.MonthSummary, error) {
	month, err := core.NormalizeMonth(month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	key := "month:" + month
	if m, ok := a.months.Get(key); ok {
		return m, nil
	}

	gen := a.months.Generation()
	snap, err := a.ledger.Snapshot(ctx)
	if err != nil {
		return core.MonthSummary{}, err
	}

	m := core.Month(snap, month, a.ledger.Policy())
	a.months.SetIfCurrent(key, m, gen)
	return m, nil
}
