// Package lbank implements the LBank exchange integration client: signed
// REST calls with sliding-window rate limiting, multi-host failover, a
// short-TTL price cache, and normalization of the exchange's response
// shapes into the canonical holdings model.
package lbank

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

const (
	spotBalancePath      = "/v2/supplement/user_info.do"
	futuresAccountPath   = "/cfd/openApi/v1/prv/account/asset"
	futuresPositionsPath = "/cfd/openApi/v1/prv/position/list"

	defaultGeneralLimit = 200
	defaultOrderLimit   = 500
	defaultLimitWindow  = 10 * time.Second
)

// DefaultHosts is the exchange's spot REST host list in failover order.
var DefaultHosts = []string{
	"https://www.lbkex.net",
	"https://api.lbkex.com",
	"https://api.lbank.info",
}

// DefaultContractHosts serves the futures/contract API family.
var DefaultContractHosts = []string{
	"https://lbkperp.lbank.com",
}

// Config carries the tunables of one exchange adapter instance.
type Config struct {
	Hosts         []string
	ContractHosts []string
	GeneralLimit  int
	OrderLimit    int
	LimitWindow   time.Duration
	PriceTTL      time.Duration
}

// Client is one adapter instance. The rate limiters and the price cache are
// process-lifetime singletons scoped to the instance; everything else is
// request-scoped. Safe for concurrent use.
type Client struct {
	logger    *zap.Logger
	transport *Transport
	prices    *PriceCache

	generalLimiter *SlidingWindowLimiter
	// order-class ceiling; the portfolio-read path never consumes it
	orderLimiter *SlidingWindowLimiter
}

// NewClient constructs an adapter with defaults filled in for any zero
// Config field.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = DefaultHosts
	}
	if len(cfg.ContractHosts) == 0 {
		cfg.ContractHosts = DefaultContractHosts
	}
	if cfg.GeneralLimit <= 0 {
		cfg.GeneralLimit = defaultGeneralLimit
	}
	if cfg.OrderLimit <= 0 {
		cfg.OrderLimit = defaultOrderLimit
	}
	if cfg.LimitWindow <= 0 {
		cfg.LimitWindow = defaultLimitWindow
	}

	general := NewSlidingWindowLimiter(cfg.GeneralLimit, cfg.LimitWindow, logger)
	transport := NewTransport(cfg.Hosts, cfg.ContractHosts, general, logger)

	return &Client{
		logger:         logger,
		transport:      transport,
		prices:         NewPriceCache(cfg.Hosts, transport, cfg.PriceTTL, logger),
		generalLimiter: general,
		orderLimiter:   NewSlidingWindowLimiter(cfg.OrderLimit, cfg.LimitWindow, logger),
	}
}

// Prices returns the cached all-ticker price map, refreshing it when stale.
func (c *Client) Prices(ctx context.Context) map[string]decimal.Decimal {
	return c.prices.GetAll(ctx)
}

// ResolvePrice finds a USD price for a symbol via the shared price cache.
func (c *Client) ResolvePrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	return ResolvePrice(symbol, c.prices.GetAll(ctx))
}

// SpotAssets fetches and normalizes the spot account balances.
func (c *Client) SpotAssets(ctx context.Context, creds domain.Credentials, prices map[string]decimal.Decimal) ([]domain.Asset, error) {
	c.logger.Info("fetching spot balances", zap.String("api_key", creds.MaskedKey()))

	payload, err := c.transport.PostSigned(ctx, spotBalancePath, creds, nil)
	if err != nil {
		return nil, err
	}

	assets := NormalizeSpotAssets(payload, prices, c.logger)
	c.logger.Info("spot balances normalized", zap.Int("assets", len(assets)))
	return assets, nil
}

// FuturesHoldings fetches and normalizes the contract account balances and
// open positions. A position-list failure degrades to balances-only rather
// than failing the call.
func (c *Client) FuturesHoldings(ctx context.Context, creds domain.Credentials, prices map[string]decimal.Decimal) ([]domain.Asset, []domain.FuturesPosition, error) {
	c.logger.Info("fetching futures account", zap.String("api_key", creds.MaskedKey()))

	account, err := c.transport.PostContract(ctx, futuresAccountPath, creds, nil)
	if err != nil {
		return nil, nil, err
	}
	assets := NormalizeFuturesAssets(account, prices)

	var positions []domain.FuturesPosition
	if payload, err := c.transport.PostContract(ctx, futuresPositionsPath, creds, nil); err != nil {
		c.logger.Warn("futures positions unavailable", zap.Error(err))
	} else {
		positions = NormalizePositions(payload, prices)
	}

	c.logger.Info("futures holdings normalized",
		zap.Int("assets", len(assets)),
		zap.Int("positions", len(positions)))
	return assets, positions, nil
}
