package lbank

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

// reconcileEpsilon bounds the allowed drift between the exchange-reported
// total and available+frozen before we log the discrepancy.
var reconcileEpsilon = decimal.NewFromFloat(0.0001)

// balance-field fingerprint used when sniffing unknown response shapes
var balanceFingerprint = []string{"coin", "usableAmt", "assetAmt", "freezeAmt"}

// extractBalanceRows locates the list of balance records inside the
// exchange's heterogeneous response shapes, in priority order: a bare
// array, an object's data array, a doubly nested data.data array, an info
// array, and finally a scan of every field for the first array whose
// elements carry the balance-field fingerprint.
func extractBalanceRows(payload any) []map[string]any {
	if rows, ok := toRowSlice(payload); ok {
		return rows
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	if rows, ok := toRowSlice(obj["data"]); ok {
		return rows
	}
	if nested, ok := obj["data"].(map[string]any); ok {
		if rows, ok := toRowSlice(nested["data"]); ok {
			return rows
		}
	}
	if rows, ok := toRowSlice(obj["info"]); ok {
		return rows
	}

	for _, v := range obj {
		rows, ok := toRowSlice(v)
		if !ok || len(rows) == 0 {
			continue
		}
		for _, key := range balanceFingerprint {
			if _, found := rows[0][key]; found {
				return rows
			}
		}
	}
	return nil
}

func toRowSlice(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			rows = append(rows, obj)
		}
	}
	return rows, true
}

// NormalizeSpotAssets converts the raw spot balance payload into the
// canonical asset model. Records with a non-positive total are dropped; the
// exchange-reported total is authoritative when present and is reconciled
// against available+frozen.
func NormalizeSpotAssets(payload any, prices map[string]decimal.Decimal, logger *zap.Logger) []domain.Asset {
	if logger == nil {
		logger = zap.NewNop()
	}

	rows := extractBalanceRows(payload)
	assets := make([]domain.Asset, 0, len(rows))
	now := time.Now().UTC()

	for _, row := range rows {
		symbol := strings.ToUpper(stringField(row, "coin", "asset"))
		if symbol == "" {
			logger.Debug("skipping balance row without a coin field")
			continue
		}

		usable, _ := decimalField(row, "usableAmt")
		frozen, _ := decimalField(row, "freezeAmt")
		reported, _ := decimalField(row, "assetAmt")

		quantity := usable.Add(frozen)
		if reported.IsPositive() {
			if reported.Sub(quantity).Abs().GreaterThan(reconcileEpsilon) {
				logger.Warn("asset total does not reconcile with available+frozen",
					zap.String("symbol", symbol),
					zap.String("reported", reported.String()),
					zap.String("computed", quantity.String()))
			}
			quantity = reported
		}
		if !quantity.IsPositive() {
			continue
		}

		assets = append(assets, buildAsset(symbol, quantity, usable, frozen, domain.AccountSpot, prices, now))
	}
	return assets
}

// NormalizeFuturesAssets converts the contract-account payload into assets
// kept in the FUTURES bucket. They are never merged with spot records here;
// summing across buckets is the aggregator's job.
func NormalizeFuturesAssets(payload any, prices map[string]decimal.Decimal) []domain.Asset {
	now := time.Now().UTC()

	info := payload
	if obj, ok := payload.(map[string]any); ok {
		if inner, ok := obj["info"].(map[string]any); ok {
			info = inner
		} else if inner, ok := obj["data"].(map[string]any); ok {
			info = inner
		}
	}

	// preferred shape: a balances array with asset/free/locked fields
	if obj, ok := info.(map[string]any); ok {
		if rows, ok := toRowSlice(obj["balances"]); ok && len(rows) > 0 {
			assets := make([]domain.Asset, 0, len(rows))
			for _, row := range rows {
				symbol := strings.ToUpper(stringField(row, "asset", "coin"))
				if symbol == "" {
					continue
				}
				free, _ := decimalField(row, "free")
				locked, _ := decimalField(row, "locked")
				quantity := free.Add(locked)
				if !quantity.IsPositive() {
					continue
				}
				assets = append(assets, buildAsset(symbol, quantity, free, locked, domain.AccountFutures, prices, now))
			}
			return assets
		}
	}

	// contract shape: margin balance, available balance, unrealized P&L
	rows := contractAssetRows(info)
	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		symbol := strings.ToUpper(stringField(row, "asset", "currency", "coin"))
		if symbol == "" {
			continue
		}
		available := firstDecimal(row, "availableBalance", "available", "free")
		frozen := firstDecimal(row, "freeze", "frozen", "locked")
		total := firstDecimal(row, "balance", "marginBalance", "assetAmt")
		if !total.IsPositive() {
			total = available.Add(frozen)
		}
		if !total.IsPositive() {
			continue
		}
		assets = append(assets, buildAsset(symbol, total, available, frozen, domain.AccountFutures, prices, now))
	}
	return assets
}

var contractFingerprint = []string{"marginBalance", "availableBalance", "unrealizedPNL", "unrealisedPNL"}

func contractAssetRows(payload any) []map[string]any {
	if rows, ok := toRowSlice(payload); ok {
		return rows
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if rows, ok := toRowSlice(obj["data"]); ok {
		return rows
	}
	// a single account object rather than a list
	for _, key := range contractFingerprint {
		if _, found := obj[key]; found {
			return []map[string]any{obj}
		}
	}
	return nil
}

// NormalizePositions converts the contract positions payload. Notional USD
// value derives from size times the best available price: mark price, then
// entry price, then the cached USD route for the base symbol.
func NormalizePositions(payload any, prices map[string]decimal.Decimal) []domain.FuturesPosition {
	rows := positionRows(payload)
	positions := make([]domain.FuturesPosition, 0, len(rows))

	for _, row := range rows {
		symbol := strings.ToUpper(stringField(row, "symbol", "instrumentID"))
		if symbol == "" {
			continue
		}
		size := firstDecimal(row, "size", "amount", "positionSize", "amt")
		if size.IsZero() {
			continue
		}

		entry := firstDecimal(row, "entryPrice", "avgOpenPrice", "openPrice")
		mark := firstDecimal(row, "markPrice", "markedPrice")
		leverage := firstDecimal(row, "leverage", "lever")
		pnl := firstDecimal(row, "unrealizedPnl", "unrealizedPNL", "unrealisedPNL")

		px := mark
		if !px.IsPositive() {
			px = entry
		}
		if !px.IsPositive() {
			if resolved, ok := ResolvePrice(baseSymbol(symbol), prices); ok {
				px = resolved
			}
		}

		positions = append(positions, domain.FuturesPosition{
			Symbol:        symbol,
			Side:          normalizeSide(stringField(row, "side", "positionSide", "direction")),
			Size:          size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			Leverage:      leverage,
			UnrealizedPnl: pnl,
			NotionalUSD:   size.Abs().Mul(px),
		})
	}
	return positions
}

func positionRows(payload any) []map[string]any {
	if rows, ok := toRowSlice(payload); ok {
		return rows
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"data", "positions", "list"} {
		if rows, ok := toRowSlice(obj[key]); ok {
			return rows
		}
	}
	if nested, ok := obj["data"].(map[string]any); ok {
		for _, key := range []string{"positions", "list"} {
			if rows, ok := toRowSlice(nested[key]); ok {
				return rows
			}
		}
	}
	return nil
}

func buildAsset(symbol string, quantity, free, frozen decimal.Decimal, accountType domain.AccountType, prices map[string]decimal.Decimal, now time.Time) domain.Asset {
	asset := domain.Asset{
		ID:          fmt.Sprintf("lbank-%s-%s", strings.ToLower(symbol), uuid.NewString()),
		Symbol:      symbol,
		DisplayName: domain.DisplayName(symbol),
		Quantity:    quantity,
		Free:        free,
		Frozen:      frozen,
		Tier:        domain.ClassifyTier(symbol),
		AccountType: accountType,
		LastUpdated: now,
	}

	if price, ok := ResolvePrice(symbol, prices); ok {
		value := quantity.Mul(price)
		asset.PriceUSD = &price
		asset.ValueUSD = &value
	}
	return asset
}

// normalizeSide maps the exchange's side encodings onto LONG/SHORT, keeping
// the raw string (uppercased) when the encoding is unknown.
func normalizeSide(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "short"), strings.Contains(lower, "sell"):
		return "SHORT"
	case strings.Contains(lower, "long"), strings.Contains(lower, "buy"):
		return "LONG"
	default:
		return strings.ToUpper(raw)
	}
}

// baseSymbol strips the quote part from a pair symbol in either BTC_USDT or
// BTCUSDT form.
func baseSymbol(symbol string) string {
	if idx := strings.IndexByte(symbol, '_'); idx > 0 {
		return symbol[:idx]
	}
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)]
		}
	}
	return symbol
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch val := obj[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		case float64:
			return decimal.NewFromFloat(val).String()
		}
	}
	return ""
}

func decimalField(obj map[string]any, key string) (decimal.Decimal, bool) {
	switch val := obj[key].(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return decimal.Decimal{}, false
		}
		parsed, err := decimal.NewFromString(trimmed)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	case float64:
		return decimal.NewFromFloat(val), true
	default:
		return decimal.Decimal{}, false
	}
}

func firstDecimal(obj map[string]any, keys ...string) decimal.Decimal {
	for _, key := range keys {
		if val, ok := decimalField(obj, key); ok {
			return val
		}
	}
	return decimal.Decimal{}
}
