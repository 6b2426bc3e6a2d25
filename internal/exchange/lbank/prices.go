package lbank

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tickerPricePath = "/v2/supplement/ticker/price.do"
	priceCacheTTL   = 5 * time.Second
)

// stablecoins resolve to exactly 1.0 without consulting the price map
var stablecoins = map[string]struct{}{
	"USDT": {}, "USDC": {}, "TUSD": {}, "USDD": {},
}

// PriceCache keeps a short-TTL snapshot of every ticker price, keyed by
// lowercase base_quote pair symbol. Refreshing replaces the whole map, so a
// map handed out earlier stays valid for its reader. When every host fails
// the previous snapshot is served as-is, stale but never empty, so dependent
// valuation does not silently zero out.
type PriceCache struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	capturedAt time.Time
	ttl        time.Duration

	hosts     []string
	transport *Transport
	logger    *zap.Logger
}

// NewPriceCache creates a cache refreshing from the given hosts in order.
func NewPriceCache(hosts []string, transport *Transport, ttl time.Duration, logger *zap.Logger) *PriceCache {
	if ttl <= 0 {
		ttl = priceCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceCache{
		ttl:       ttl,
		hosts:     hosts,
		transport: transport,
		logger:    logger,
	}
}

// GetAll returns the cached price map when fresh, refreshing it otherwise.
// The returned map must be treated as read-only.
func (c *PriceCache) GetAll(ctx context.Context) map[string]decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.prices) > 0 && time.Since(c.capturedAt) < c.ttl {
		return c.prices
	}

	for _, host := range c.hosts {
		payload, err := c.transport.GetPublic(ctx, host, tickerPricePath, nil)
		if err != nil {
			c.logger.Warn("ticker price fetch failed", zap.String("host", host), zap.Error(err))
			continue
		}

		prices := parsePriceRows(payload)
		if len(prices) == 0 {
			c.logger.Warn("ticker price payload empty", zap.String("host", host))
			continue
		}

		c.prices = prices
		c.capturedAt = time.Now()
		c.logger.Info("ticker prices refreshed",
			zap.String("host", host),
			zap.Int("pairs", len(prices)))
		return c.prices
	}

	// degraded: timestamp is left untouched so the next call retries the refresh
	if len(c.prices) > 0 {
		c.logger.Warn("all price hosts failed, serving stale snapshot",
			zap.Duration("age", time.Since(c.capturedAt)))
		return c.prices
	}
	return map[string]decimal.Decimal{}
}

// parsePriceRows extracts pair->price entries from the heterogeneous ticker
// payload shapes: a bare array, an object with a data array, or a single
// object. Rows without a positive price are skipped.
func parsePriceRows(payload any) map[string]decimal.Decimal {
	var rows []any
	switch val := payload.(type) {
	case []any:
		rows = val
	case map[string]any:
		if data, ok := val["data"].([]any); ok {
			rows = data
		} else if data, ok := val["data"]; ok {
			rows = []any{data}
		} else {
			rows = []any{val}
		}
	}

	prices := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		symbol := strings.ToLower(stringField(obj, "symbol"))
		if symbol == "" {
			continue
		}
		price, ok := decimalField(obj, "price")
		if !ok || !price.IsPositive() {
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// ResolvePrice finds a USD price for a symbol: stablecoins are exactly 1.0,
// then the usdt pair, the usd pair, and finally a BTC-denominated route in
// that priority order. The second return is false when no route exists.
func ResolvePrice(symbol string, prices map[string]decimal.Decimal) (decimal.Decimal, bool) {
	upper := strings.ToUpper(symbol)
	if _, ok := stablecoins[upper]; ok {
		return decimal.NewFromInt(1), true
	}

	lower := strings.ToLower(symbol)
	if price, ok := prices[lower+"_usdt"]; ok && price.IsPositive() {
		return price, true
	}
	if price, ok := prices[lower+"_usd"]; ok && price.IsPositive() {
		return price, true
	}

	btcPrice, btcOK := prices[lower+"_btc"]
	btcUSDT, usdtOK := prices["btc_usdt"]
	if btcOK && usdtOK && btcPrice.IsPositive() && btcUSDT.IsPositive() {
		return btcPrice.Mul(btcUSDT), true
	}

	return decimal.Decimal{}, false
}
