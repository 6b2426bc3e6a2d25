package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

type fakeService struct {
	snapshot  *domain.PortfolioSnapshot
	fetchErr  error
	persisted *domain.PortfolioSnapshot
	prices    map[string]decimal.Decimal
}

func (f *fakeService) FetchHoldings(ctx context.Context, creds domain.Credentials) (*domain.PortfolioSnapshot, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeService) ResolvePrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	price, ok := f.prices[symbol]
	return price, ok
}

func (f *fakeService) LastPersisted() (domain.PortfolioSnapshot, bool) {
	if f.persisted == nil {
		return domain.PortfolioSnapshot{}, false
	}
	return *f.persisted, true
}

type fakeReader struct {
	records []domain.SnapshotRecord
}

func (f *fakeReader) SnapshotsAfter(index uint64) ([]domain.SnapshotRecord, error) {
	out := make([]domain.SnapshotRecord, 0, len(f.records))
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

func liveSnapshot() *domain.PortfolioSnapshot {
	value := decimal.RequireFromString("50000")
	return &domain.PortfolioSnapshot{
		ID:       "snap-live",
		Exchange: "lbank",
		Assets: []domain.Asset{{
			Symbol:      "BTC",
			Quantity:    decimal.NewFromInt(1),
			ValueUSD:    &value,
			Tier:        domain.TierCore,
			AccountType: domain.AccountSpot,
		}},
		SpotValueUSD:  value,
		TotalValueUSD: value,
		Live:          true,
		CapturedAt:    time.Now().UTC(),
	}
}

func newTestServer(service *fakeService, store snapshotReader) *httptest.Server {
	srv := NewServer(":0", service, store, domain.Credentials{APIKey: "0123456789abcdef"}, nil)
	return httptest.NewServer(srv.Handler())
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestPortfolioEndpoint(t *testing.T) {
	ts := newTestServer(&fakeService{snapshot: liveSnapshot()}, nil)
	defer ts.Close()

	var got domain.PortfolioSnapshot
	resp := getJSON(t, ts.URL+"/api/portfolio", &got)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "snap-live", got.ID)
	assert.True(t, got.Live)
	assert.Equal(t, "50000", got.TotalValueUSD.String())
}

func TestPortfolioEndpointFallsBackToPersisted(t *testing.T) {
	persisted := liveSnapshot()
	persisted.ID = "snap-persisted"
	empty := &domain.PortfolioSnapshot{ID: "snap-empty", Exchange: "lbank", Live: false}

	ts := newTestServer(&fakeService{snapshot: empty, persisted: persisted}, nil)
	defer ts.Close()

	var got domain.PortfolioSnapshot
	resp := getJSON(t, ts.URL+"/api/portfolio", &got)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "snap-persisted", got.ID)
	assert.False(t, got.Live, "a persisted fallback must not claim to be live")
}

func TestPortfolioEndpointFetchError(t *testing.T) {
	ts := newTestServer(&fakeService{fetchErr: errors.New("all hosts down")}, nil)
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/portfolio", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSpotAndFuturesViews(t *testing.T) {
	snapshot := liveSnapshot()
	futValue := decimal.RequireFromString("1000")
	snapshot.FuturesAssets = []domain.Asset{{Symbol: "USDT", Quantity: futValue, ValueUSD: &futValue, AccountType: domain.AccountFutures}}
	snapshot.FuturesValueUSD = futValue

	ts := newTestServer(&fakeService{snapshot: snapshot}, nil)
	defer ts.Close()

	var spot map[string]any
	getJSON(t, ts.URL+"/api/portfolio/spot", &spot)
	assert.Equal(t, "50000", spot["spotValueUSD"])
	require.Len(t, spot["assets"], 1)
	assert.NotContains(t, spot, "futuresAssets")

	var futures map[string]any
	getJSON(t, ts.URL+"/api/portfolio/futures", &futures)
	assert.Equal(t, "1000", futures["futuresValueUSD"])
	require.Len(t, futures["futuresAssets"], 1)
	assert.NotContains(t, futures, "assets")
}

func TestPriceEndpoint(t *testing.T) {
	service := &fakeService{prices: map[string]decimal.Decimal{"btc": decimal.NewFromInt(50000)}}
	ts := newTestServer(service, nil)
	defer ts.Close()

	t.Run("resolves a known symbol", func(t *testing.T) {
		var got map[string]any
		resp := getJSON(t, ts.URL+"/api/price?symbol=btc", &got)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "BTC", got["symbol"])
		assert.Equal(t, "50000", got["priceUSD"])
	})

	t.Run("missing symbol parameter", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/api/price", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unroutable symbol", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/api/price?symbol=unknown", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeService{}, nil)
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(&fakeService{snapshot: liveSnapshot()}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/portfolio", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSnapshotStream(t *testing.T) {
	store := &fakeReader{records: []domain.SnapshotRecord{
		{Index: 1, Snapshot: domain.PortfolioSnapshot{ID: "snap-1", Exchange: "lbank"}},
		{Index: 2, Snapshot: domain.PortfolioSnapshot{ID: "snap-2", Exchange: "lbank"}},
	}}
	srv := NewServer(":0", &fakeService{}, store, domain.Credentials{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/portfolio/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSnapshotStream(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "id: 1\n")
	assert.Contains(t, body, "id: 2\n")
	assert.Contains(t, body, "event: portfolio\n")
	assert.Contains(t, body, "snap-2")
	assert.NotContains(t, body, "no_data")
}

func TestSnapshotStreamResumesAfterLastEventID(t *testing.T) {
	store := &fakeReader{records: []domain.SnapshotRecord{
		{Index: 1, Snapshot: domain.PortfolioSnapshot{ID: "snap-1"}},
		{Index: 2, Snapshot: domain.PortfolioSnapshot{ID: "snap-2"}},
	}}
	srv := NewServer(":0", &fakeService{}, store, domain.Credentials{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/portfolio/stream", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	srv.handleSnapshotStream(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "snap-1")
	assert.Contains(t, body, "snap-2")
}

func TestSnapshotStreamEmptyLog(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, &fakeReader{}, domain.Credentials{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/portfolio/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSnapshotStream(rec, req)

	assert.Contains(t, rec.Body.String(), "event: no_data")
}

func TestSnapshotStreamWithoutStore(t *testing.T) {
	srv := NewServer(":0", &fakeService{}, nil, domain.Credentials{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/portfolio/stream", nil)
	rec := httptest.NewRecorder()

	srv.handleSnapshotStream(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
