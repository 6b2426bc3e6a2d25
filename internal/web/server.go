// Package web exposes the portfolio read operations as JSON endpoints plus
// an SSE stream of persisted snapshots.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

const (
	snapshotPollInterval = 3 * time.Second
	heartbeatInterval    = 20 * time.Second
	shutdownGrace        = 5 * time.Second
)

type portfolioService interface {
	FetchHoldings(ctx context.Context, creds domain.Credentials) (*domain.PortfolioSnapshot, error)
	ResolvePrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
	LastPersisted() (domain.PortfolioSnapshot, bool)
}

type snapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.SnapshotRecord, error)
}

// Server exposes HTTP endpoints serving portfolio JSON and an SSE stream.
type Server struct {
	addr    string
	service portfolioService
	store   snapshotReader
	creds   domain.Credentials
	logger  *zap.Logger
}

// NewServer creates a new web server instance. The credentials belong to the
// single operator this deployment serves.
func NewServer(addr string, service portfolioService, store snapshotReader, creds domain.Credentials, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, service: service, store: store, creds: creds, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the route table. Exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/portfolio/spot", s.handleSpot)
	mux.HandleFunc("/api/portfolio/futures", s.handleFutures)
	mux.HandleFunc("/api/price", s.handlePrice)
	mux.HandleFunc("/portfolio/stream", s.handleSnapshotStream)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// fetch runs a live fetch and falls back to the last persisted snapshot when
// the live one carries no data.
func (s *Server) fetch(ctx context.Context) (domain.PortfolioSnapshot, error) {
	snapshot, err := s.service.FetchHoldings(ctx, s.creds)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	if !snapshot.Live {
		if persisted, found := s.service.LastPersisted(); found {
			s.logger.Warn("live fetch degraded, serving persisted snapshot",
				zap.String("snapshot_id", persisted.ID))
			persisted.Live = false
			return persisted, nil
		}
	}
	return *snapshot, nil
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snapshot, err := s.fetch(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, snapshot)
}

func (s *Server) handleSpot(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snapshot, err := s.fetch(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"exchange":     snapshot.Exchange,
		"assets":       snapshot.Assets,
		"spotValueUSD": snapshot.SpotValueUSD,
		"live":         snapshot.Live,
		"capturedAt":   snapshot.CapturedAt,
	})
}

func (s *Server) handleFutures(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snapshot, err := s.fetch(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"exchange":         snapshot.Exchange,
		"futuresAssets":    snapshot.FuturesAssets,
		"futuresPositions": snapshot.Positions,
		"futuresValueUSD":  snapshot.FuturesValueUSD,
		"live":             snapshot.Live,
		"capturedAt":       snapshot.CapturedAt,
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		http.Error(w, `{"error":"symbol query parameter is required"}`, http.StatusBadRequest)
		return
	}

	price, ok := s.service.ResolvePrice(r.Context(), symbol)
	if !ok {
		http.Error(w, `{"error":"no price route for symbol"}`, http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{
		"symbol":   strings.ToUpper(symbol),
		"priceUSD": price,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// comment heartbeats keep proxies from dropping idle connections
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := s.parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendSnapshots := func() error {
		records, err := s.store.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: portfolio\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		s.logger.Error("snapshot stream initial load failed", zap.Error(err))
		return
	}

	// tell the client the log is empty so it can leave its loading state
	if lastIndex == 0 {
		fmt.Fprintf(w, "event: no_data\n")
		fmt.Fprintf(w, "data: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("snapshot stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encoding response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("portfolio request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID
// header or a query parameter. The header is preferred; the query parameter
// allows manual reconnects to resume from a known index.
func (s *Server) parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		s.logger.Warn("invalid last event id", zap.String("value", idStr), zap.Error(err))
		return 0
	}
	return id
}
