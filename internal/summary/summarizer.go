// Package summary produces read-only per-county audit views of the ledger.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/log"
	"housingledger/internal/storage"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds SummarizeAll when none is configured.
const DefaultConcurrency = 4

type Summarizer struct {
	repo        *storage.SQLiteRepository
	concurrency int
}

func NewSummarizer(repo *storage.SQLiteRepository, concurrency int) *Summarizer {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Summarizer{repo: repo, concurrency: concurrency}
}

// Summarize aggregates one county's transactions inside r from a single
// read snapshot. A county with no activity yields a zeroed summary.
func (s *Summarizer) Summarize(ctx context.Context, county string, r core.DateRange) (core.CountySummary, error) {
	county = strings.TrimSpace(county)
	if county == "" {
		return core.CountySummary{}, core.NewValidationError("county", "required")
	}
	if err := r.Validate(); err != nil {
		return core.CountySummary{}, err
	}

	out := core.CountySummary{County: county, Period: r}
	filter := core.TransactionFilter{County: county, Range: r}

	err := s.repo.ReadTx(ctx, func(q *storage.Queries) error {
		totals, err := q.SumTransactions(ctx, filter)
		if err != nil {
			return err
		}
		out.TotalDeposits = totals.Inflow
		out.TotalWithdrawals = totals.Outflow
		out.CurrentBalance = totals.Inflow.Sub(totals.Outflow)
		out.TransactionCount = totals.Count

		last := filter
		last.Limit = 1
		latest, err := q.ListTransactions(ctx, last)
		if err != nil {
			return err
		}
		if len(latest) == 1 {
			out.LastTransaction = &latest[0]
		}

		poolSummary, err := q.ReplayPoolEntries(ctx, county, r)
		if err != nil {
			return err
		}
		out.PoolBalance = poolSummary.CurrentBalance
		return nil
	})
	if err != nil {
		return core.CountySummary{}, fmt.Errorf("summarize %q: %w", county, err)
	}
	return out, nil
}

// SummarizeAll summarizes every county on the ledger, sorted by name.
func (s *Summarizer) SummarizeAll(ctx context.Context, r core.DateRange) ([]core.CountySummary, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	counties, err := s.repo.Queries().ListCounties(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]core.CountySummary, len(counties))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, county := range counties {
		g.Go(func() error {
			sum, err := s.Summarize(gctx, county, r)
			if err != nil {
				return err
			}
			results[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.For(log.ComponentSummary).DebugContext(ctx, "County summaries computed",
		"counties", len(results),
		"duration", time.Since(start))
	return results, nil
}
