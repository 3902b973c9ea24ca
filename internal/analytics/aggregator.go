package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/cache"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

const (
	SourceRollup       = "rollup"
	SourceTransactions = "transactions"
)

// Source is the slice of the row store the aggregator reads from.
// Rollup ranges are [from, to) business dates; an empty branch means all branches.
//
//go:generate mockgen -destination=mocks/mock_source.go -package=mock_analytics -source=aggregator.go Source
type Source interface {
	ListSalesRollups(ctx context.Context, branchID string, bucket string, from string, to string) ([]domain.SalesRollup, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
}

type Aggregator struct {
	source Source
	cache  cache.AnalyticsCache
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewAggregator(source Source, cacheStore cache.AnalyticsCache, ttl time.Duration, logger zerolog.Logger) *Aggregator {
	if cacheStore == nil {
		cacheStore = cache.NoopAnalyticsCache{}
	}
	return &Aggregator{
		source: source,
		cache:  cacheStore,
		ttl:    ttl,
		log:    logger.With().Str("component", "analytics").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the clock; tests pin "today" with it.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

func cached[T any](ctx context.Context, a *Aggregator, key string, compute func() (T, error)) (T, error) {
	var out T
	if ok, err := a.cache.Get(ctx, key, &out); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("analytics cache read failed")
	} else if ok {
		return out, nil
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	if err := a.cache.Set(ctx, key, out, a.ttl); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("analytics cache write failed")
	}
	return out, nil
}

// Sales builds the current and previous series for the range. Day, week and
// month buckets read the rollup tables and fall back to raw transactions
// when that read fails; hour buckets always read raw transactions.
func (a *Aggregator) Sales(ctx context.Context, branchID string, r Range) (domain.SalesAnalytics, error) {
	now := a.now()
	plan, err := BucketFor(r, now)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	key := fmt.Sprintf("sales:%s:%s:%s", branchOrAll(branchID), r, Label(BucketHour, now)+"@"+BusinessDate(now))
	return cached(ctx, a, key, func() (domain.SalesAnalytics, error) {
		rows, source, err := a.salesRows(ctx, branchID, plan.Bucket, plan.Previous.Start, plan.Current.End)
		if err != nil {
			return domain.SalesAnalytics{}, err
		}
		current := BuildSeries(plan.Bucket, plan.Current, rows)
		previous := BuildSeries(plan.Bucket, plan.Previous, rows)
		return domain.SalesAnalytics{
			BranchID: branchID,
			Range:    string(r),
			Bucket:   string(plan.Bucket),
			Source:   source,
			Current:  current,
			Previous: previous,
			Summary:  Summarize(current, previous),
		}, nil
	})
}

// DateSeries returns daily sales for every day from start to end inclusive.
func (a *Aggregator) DateSeries(ctx context.Context, branchID, start, end string) ([]domain.SeriesPoint, error) {
	days, err := BuildDateSeries(start, end)
	if err != nil {
		return nil, err
	}
	from, _ := time.ParseInLocation(dateLayout, days[0], Location)
	to, _ := time.ParseInLocation(dateLayout, days[len(days)-1], Location)
	window := Window{Start: from, End: to.AddDate(0, 0, 1)}

	key := fmt.Sprintf("dates:%s:%s:%s:%s", branchOrAll(branchID), start, end, BusinessDate(a.now()))
	return cached(ctx, a, key, func() ([]domain.SeriesPoint, error) {
		rows, _, err := a.salesRows(ctx, branchID, BucketDay, window.Start, window.End)
		if err != nil {
			return nil, err
		}
		return BuildSeries(BucketDay, window, rows), nil
	})
}

// ProductSales reports sold weight and takings per product for the range,
// with the previous window's takings for comparison.
func (a *Aggregator) ProductSales(ctx context.Context, branchID string, r Range) (domain.ProductAnalytics, error) {
	now := a.now()
	plan, err := BucketFor(r, now)
	if err != nil {
		return domain.ProductAnalytics{}, err
	}
	key := fmt.Sprintf("products:%s:%s:%s", branchOrAll(branchID), r, Label(BucketHour, now)+"@"+BusinessDate(now))
	return cached(ctx, a, key, func() (domain.ProductAnalytics, error) {
		txs, err := a.source.ListTransactions(ctx, domain.TransactionFilter{
			BranchID: branchID,
			From:     plan.Previous.Start,
			To:       plan.Current.End,
		})
		if err != nil {
			return domain.ProductAnalytics{}, err
		}

		byProduct := map[string]*domain.ProductSales{}
		for _, tx := range txs {
			inCurrent := plan.Current.Contains(tx.CreatedAt)
			if !inCurrent && !plan.Previous.Contains(tx.CreatedAt) {
				continue
			}
			for _, item := range tx.Items {
				p, ok := byProduct[item.ProductID]
				if !ok {
					p = &domain.ProductSales{ProductID: item.ProductID}
					byProduct[item.ProductID] = p
				}
				if inCurrent {
					p.WeightKg += item.WeightKg
					p.Total += item.LineTotal.InexactFloat64()
				} else {
					p.PreviousTotal += item.LineTotal.InexactFloat64()
				}
			}
		}

		products := make([]domain.ProductSales, 0, len(byProduct))
		for _, p := range byProduct {
			p.ChangePct = ChangePct(p.Total, p.PreviousTotal)
			products = append(products, *p)
		}
		sort.Slice(products, func(i, j int) bool {
			if products[i].Total != products[j].Total {
				return products[i].Total > products[j].Total
			}
			return products[i].ProductID < products[j].ProductID
		})
		return domain.ProductAnalytics{BranchID: branchID, Range: string(r), Products: products}, nil
	})
}

func (a *Aggregator) salesRows(ctx context.Context, branchID string, b Bucket, from, to time.Time) ([]Row, string, error) {
	if b != BucketHour {
		rollups, err := a.source.ListSalesRollups(ctx, branchID, string(b), BusinessDate(from), BusinessDate(to))
		if err == nil {
			return rollupRows(rollups), SourceRollup, nil
		}
		a.log.Warn().Err(err).Str("bucket", string(b)).Msg("rollup read failed, scanning transactions")
	}

	txs, err := a.source.ListTransactions(ctx, domain.TransactionFilter{BranchID: branchID, From: from, To: to})
	if err != nil {
		return nil, "", err
	}
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, Row{At: tx.CreatedAt, Value: tx.Total.InexactFloat64()})
	}
	return rows, SourceTransactions, nil
}

func rollupRows(rollups []domain.SalesRollup) []Row {
	rows := make([]Row, 0, len(rollups))
	for _, r := range rollups {
		at, err := time.ParseInLocation(dateLayout, r.BucketStart, Location)
		if err != nil {
			continue
		}
		rows = append(rows, Row{At: at, Value: r.Total.InexactFloat64()})
	}
	return rows
}

func branchOrAll(branchID string) string {
	if branchID == "" {
		return "all"
	}
	return branchID
}
