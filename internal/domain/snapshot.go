package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot aggregates spot and futures holdings for one fetch.
// All snapshots are request-scoped; only the WAL store gives them a life
// beyond the call that produced them.
type PortfolioSnapshot struct {
	ID              string            `json:"id"`
	Exchange        string            `json:"exchange"`
	TotalValueUSD   decimal.Decimal   `json:"totalValueUSD"`
	SpotValueUSD    decimal.Decimal   `json:"spotValueUSD"`
	FuturesValueUSD decimal.Decimal   `json:"futuresValueUSD"`
	Assets          []Asset           `json:"assets"`
	FuturesAssets   []Asset           `json:"futuresAssets"`
	Positions       []FuturesPosition `json:"futuresPositions"`
	// Live is false when the snapshot carries no live exchange data,
	// e.g. after a whole-fetch timeout.
	Live       bool      `json:"live"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Recompute derives the spot, futures and total USD values from the final
// asset lists. Totals are always recomputed here rather than accumulated
// during normalization, so the sum invariant holds whatever path built the
// lists. Assets without a resolvable price contribute zero.
func (s *PortfolioSnapshot) Recompute() {
	s.SpotValueUSD = sumValues(s.Assets)
	s.FuturesValueUSD = sumValues(s.FuturesAssets)
	s.TotalValueUSD = s.SpotValueUSD.Add(s.FuturesValueUSD)
}

func sumValues(assets []Asset) decimal.Decimal {
	total := decimal.Zero
	for _, a := range assets {
		if a.ValueUSD != nil {
			total = total.Add(*a.ValueUSD)
		}
	}
	return total
}

// SnapshotRecord bundles a snapshot with the log index it originated from.
type SnapshotRecord struct {
	Index    uint64
	Snapshot PortfolioSnapshot
}
