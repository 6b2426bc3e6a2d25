// Package portfolio aggregates normalized exchange holdings into portfolio
// snapshots with recomputed USD totals.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

const defaultFetchTimeout = 30 * time.Second

// Exchange is the adapter surface the aggregator consumes.
type Exchange interface {
	Prices(ctx context.Context) map[string]decimal.Decimal
	ResolvePrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
	SpotAssets(ctx context.Context, creds domain.Credentials, prices map[string]decimal.Decimal) ([]domain.Asset, error)
	FuturesHoldings(ctx context.Context, creds domain.Credentials, prices map[string]decimal.Decimal) ([]domain.Asset, []domain.FuturesPosition, error)
}

// SnapshotStore persists snapshots and serves the last known good one.
type SnapshotStore interface {
	Save(snapshot domain.PortfolioSnapshot) error
	Latest() (domain.PortfolioSnapshot, bool, error)
}

// Service fetches, aggregates and persists portfolio snapshots.
type Service struct {
	exchangeName string
	exchange     Exchange
	store        SnapshotStore
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// NewService wires an aggregator over one exchange adapter. The store may be
// nil, in which case snapshots are not persisted.
func NewService(exchangeName string, exchange Exchange, store SnapshotStore, fetchTimeout time.Duration, logger *zap.Logger) *Service {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		exchangeName: exchangeName,
		exchange:     exchange,
		store:        store,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// FetchHoldings assembles a portfolio snapshot: prices first, then spot and
// futures concurrently. A futures failure degrades to a spot-only snapshot;
// hitting the whole-fetch deadline yields an empty non-live snapshot rather
// than an error so callers can fall back to persisted data. Spot and futures
// buckets stay strictly separated and all USD totals are recomputed from the
// final asset lists.
func (s *Service) FetchHoldings(ctx context.Context, creds domain.Credentials) (*domain.PortfolioSnapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	started := time.Now()
	prices := s.exchange.Prices(fetchCtx)

	var (
		wg          sync.WaitGroup
		spotAssets  []domain.Asset
		spotErr     error
		futAssets   []domain.Asset
		futPosition []domain.FuturesPosition
		futErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		spotAssets, spotErr = s.exchange.SpotAssets(fetchCtx, creds, prices)
	}()
	go func() {
		defer wg.Done()
		futAssets, futPosition, futErr = s.exchange.FuturesHoldings(fetchCtx, creds, prices)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchCtx.Err() != nil {
		s.logger.Warn("portfolio fetch timed out, returning empty snapshot",
			zap.String("exchange", s.exchangeName),
			zap.Duration("timeout", s.fetchTimeout))
		return s.emptySnapshot(), nil
	}

	if spotErr != nil {
		return nil, errors.Wrap(spotErr, "fetch spot balances")
	}
	if futErr != nil {
		// the futures bucket is optional, a spot-only snapshot is still useful
		s.logger.Warn("futures holdings unavailable, continuing with spot only",
			zap.String("exchange", s.exchangeName),
			zap.Error(futErr))
		futAssets, futPosition = nil, nil
	}

	snapshot := &domain.PortfolioSnapshot{
		ID:            uuid.NewString(),
		Exchange:      s.exchangeName,
		Assets:        spotAssets,
		FuturesAssets: futAssets,
		Positions:     futPosition,
		Live:          true,
		CapturedAt:    time.Now().UTC(),
	}
	snapshot.Recompute()

	s.persist(*snapshot)

	s.logger.Info("portfolio snapshot assembled",
		zap.String("exchange", s.exchangeName),
		zap.String("total_usd", snapshot.TotalValueUSD.String()),
		zap.Int("spot_assets", len(snapshot.Assets)),
		zap.Int("futures_assets", len(snapshot.FuturesAssets)),
		zap.Int("positions", len(snapshot.Positions)),
		zap.Duration("took", time.Since(started)))
	return snapshot, nil
}

// ResolvePrice answers a single-symbol USD price from the shared price cache.
func (s *Service) ResolvePrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return s.exchange.ResolvePrice(ctx, symbol)
}

// LastPersisted returns the most recent snapshot from the store, if any.
func (s *Service) LastPersisted() (domain.PortfolioSnapshot, bool) {
	if s.store == nil {
		return domain.PortfolioSnapshot{}, false
	}
	snapshot, found, err := s.store.Latest()
	if err != nil {
		s.logger.Warn("reading persisted snapshot failed", zap.Error(err))
		return domain.PortfolioSnapshot{}, false
	}
	return snapshot, found
}

func (s *Service) emptySnapshot() *domain.PortfolioSnapshot {
	snapshot := &domain.PortfolioSnapshot{
		ID:         uuid.NewString(),
		Exchange:   s.exchangeName,
		Live:       false,
		CapturedAt: time.Now().UTC(),
	}
	snapshot.Recompute()
	return snapshot
}

// persist saves live snapshots; persistence failures are logged, never fatal.
func (s *Service) persist(snapshot domain.PortfolioSnapshot) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(snapshot); err != nil {
		s.logger.Warn("persisting portfolio snapshot failed",
			zap.String("snapshot_id", snapshot.ID),
			zap.Error(err))
	}
}
