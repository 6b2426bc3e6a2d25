package domain

import "github.com/shopspring/decimal"

// FuturesPosition is a normalized open contract position.
// Side keeps the raw exchange string when it is neither LONG nor SHORT.
type FuturesPosition struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	Leverage      decimal.Decimal `json:"leverage"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	NotionalUSD   decimal.Decimal `json:"notionalValueUSD"`
}
