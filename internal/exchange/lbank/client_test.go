package lbank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

// spotExchange simulates the spot REST API: server time, ticker prices and
// the signed balance endpoint.
func spotExchange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case serverTimePath:
			w.Write([]byte(`{"data": 1700000000000}`))
		case tickerPricePath:
			w.Write([]byte(`[{"symbol":"btc_usdt","price":"50000"},{"symbol":"eth_usdt","price":"3000"}]`))
		case spotBalancePath:
			w.Write([]byte(`{"result":"true","data":[
				{"coin":"btc","usableAmt":"0.5","freezeAmt":"0.5","assetAmt":"1"},
				{"coin":"usdt","usableAmt":"1000","freezeAmt":"0","assetAmt":"1000"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func contractExchange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case serverTimePath:
			w.Write([]byte(`{"data": 1700000000000}`))
		case futuresAccountPath:
			w.Write([]byte(`{"result":"true","data":[
				{"asset":"USDT","marginBalance":"500","availableBalance":"400","freeze":"100"}
			]}`))
		case futuresPositionsPath:
			w.Write([]byte(`{"result":"true","data":[
				{"symbol":"BTCUSDT","side":"long","size":"0.1","entryPrice":"48000","markPrice":"50000","leverage":"5"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestClientEndToEnd(t *testing.T) {
	spot := httptest.NewServer(spotExchange())
	defer spot.Close()
	contract := httptest.NewServer(contractExchange())
	defer contract.Close()

	client := NewClient(Config{
		Hosts:         []string{spot.URL},
		ContractHosts: []string{contract.URL},
		PriceTTL:      time.Minute,
	}, nil)
	ctx := context.Background()

	prices := client.Prices(ctx)
	require.Len(t, prices, 2)

	t.Run("resolve price", func(t *testing.T) {
		price, ok := client.ResolvePrice(ctx, "btc")
		require.True(t, ok)
		assert.Equal(t, "50000", price.String())
	})

	t.Run("spot assets", func(t *testing.T) {
		assets, err := client.SpotAssets(ctx, testCreds, prices)
		require.NoError(t, err)
		require.Len(t, assets, 2)

		assert.Equal(t, "BTC", assets[0].Symbol)
		assert.Equal(t, domain.AccountSpot, assets[0].AccountType)
		require.NotNil(t, assets[0].ValueUSD)
		assert.Equal(t, "50000", assets[0].ValueUSD.String())

		assert.Equal(t, "USDT", assets[1].Symbol)
		require.NotNil(t, assets[1].ValueUSD)
		assert.Equal(t, "1000", assets[1].ValueUSD.String())
	})

	t.Run("futures holdings", func(t *testing.T) {
		assets, positions, err := client.FuturesHoldings(ctx, testCreds, prices)
		require.NoError(t, err)

		require.Len(t, assets, 1)
		assert.Equal(t, "USDT", assets[0].Symbol)
		assert.Equal(t, domain.AccountFutures, assets[0].AccountType)
		assert.Equal(t, "500", assets[0].Quantity.String())

		require.Len(t, positions, 1)
		assert.Equal(t, "LONG", positions[0].Side)
		assert.Equal(t, "5000", positions[0].NotionalUSD.String())
	})
}

func TestClientPositionsFailureDegradesToBalances(t *testing.T) {
	contract := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case serverTimePath:
			w.Write([]byte(`{"data": 1700000000000}`))
		case futuresAccountPath:
			w.Write([]byte(`{"result":"true","data":[{"asset":"USDT","marginBalance":"500","availableBalance":"500"}]}`))
		case futuresPositionsPath:
			w.Write([]byte(`{"result":"false","error_code":10007,"msg":"signature invalid"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer contract.Close()

	client := NewClient(Config{
		Hosts:         []string{contract.URL},
		ContractHosts: []string{contract.URL},
	}, nil)

	assets, positions, err := client.FuturesHoldings(context.Background(), testCreds, nil)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Empty(t, positions)
}

func TestClientDefaults(t *testing.T) {
	client := NewClient(Config{}, nil)

	assert.Equal(t, DefaultHosts, client.transport.hosts)
	assert.Equal(t, DefaultContractHosts, client.transport.contractHosts)
	assert.Equal(t, defaultGeneralLimit, client.generalLimiter.maxRequests)
	assert.Equal(t, defaultOrderLimit, client.orderLimiter.maxRequests)
}
