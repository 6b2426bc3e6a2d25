package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a static three-bucket asset classification.
type Tier string

const (
	TierCore        Tier = "CORE"
	TierSatellite   Tier = "SATELLITE"
	TierSpeculative Tier = "SPECULATIVE"
)

// AccountType marks which exchange account a balance belongs to.
type AccountType string

const (
	AccountSpot     AccountType = "SPOT"
	AccountFutures  AccountType = "FUTURES"
	AccountCombined AccountType = "COMBINED"
)

var coreAssets = map[string]struct{}{
	"BTC": {}, "ETH": {}, "USDT": {}, "USDC": {},
}

var satelliteAssets = map[string]struct{}{
	"ADA": {}, "DOT": {}, "LINK": {}, "XRP": {}, "MATIC": {}, "BNB": {}, "SOL": {},
}

var displayNames = map[string]string{
	"USDT":  "Tether",
	"USDC":  "USD Coin",
	"BTC":   "Bitcoin",
	"ETH":   "Ethereum",
	"BNB":   "BNB",
	"ADA":   "Cardano",
	"DOT":   "Polkadot",
	"LINK":  "Chainlink",
	"XRP":   "XRP",
	"MATIC": "Polygon",
	"SOL":   "Solana",
}

// ClassifyTier buckets a symbol into CORE, SATELLITE or SPECULATIVE.
func ClassifyTier(symbol string) Tier {
	upper := strings.ToUpper(symbol)
	if _, ok := coreAssets[upper]; ok {
		return TierCore
	}
	if _, ok := satelliteAssets[upper]; ok {
		return TierSatellite
	}
	return TierSpeculative
}

// DisplayName returns a human-readable name for well-known symbols,
// falling back to the symbol itself.
func DisplayName(symbol string) string {
	if name, ok := displayNames[strings.ToUpper(symbol)]; ok {
		return name
	}
	return symbol
}

// Asset is a normalized balance record from one exchange account.
// PriceUSD and ValueUSD are nil when no price route exists for the symbol.
type Asset struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	DisplayName string           `json:"displayName"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Free        decimal.Decimal  `json:"free"`
	Frozen      decimal.Decimal  `json:"frozen"`
	PriceUSD    *decimal.Decimal `json:"priceUSD"`
	ValueUSD    *decimal.Decimal `json:"valueUSD"`
	Tier        Tier             `json:"tier"`
	AccountType AccountType      `json:"accountType"`
	LastUpdated time.Time        `json:"lastUpdated"`
}
