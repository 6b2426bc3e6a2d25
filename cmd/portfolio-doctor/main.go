// Command portfolio-doctor serves LBank portfolio holdings over a JSON API
// with an SSE stream of persisted snapshots.
//
// Usage:
//
//	portfolio-doctor --config config.yaml
//	portfolio-doctor --setup (interactive config wizard)
//
// Required environment variables (names configurable):
//
//	LBANK_API_KEY, LBANK_API_SECRET
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/config"
	"github.com/raeendev/portfolio-doctor/internal/exchange/lbank"
	"github.com/raeendev/portfolio-doctor/internal/services/portfolio"
	"github.com/raeendev/portfolio-doctor/internal/setup"
	"github.com/raeendev/portfolio-doctor/internal/storage/snapshots"
	"github.com/raeendev/portfolio-doctor/internal/web"
)

const exchangeName = "lbank"

func main() {
	runSetup := flag.Bool("setup", false, "run the interactive config wizard and exit")

	cfg, err := config.Get()
	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	creds, err := cfg.Credentials()
	if err != nil {
		logger.Fatal("loading exchange credentials failed", zap.Error(err))
	}
	logger.Info("exchange credentials loaded", zap.String("api_key", creds.MaskedKey()))

	client := lbank.NewClient(lbank.Config{
		Hosts:         cfg.Hosts,
		ContractHosts: cfg.ContractHosts,
		GeneralLimit:  cfg.GeneralLimit,
		OrderLimit:    cfg.OrderLimit,
		LimitWindow:   cfg.LimitWindow,
		PriceTTL:      cfg.PriceCacheTTL,
	}, logger.Named("lbank"))

	store, err := snapshots.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("opening snapshot store failed", zap.Error(err))
	}
	defer store.Close()

	service := portfolio.NewService(exchangeName, client, store, cfg.FetchTimeout, logger.Named("portfolio"))
	server := web.NewServer(cfg.ListenAddr, service, store, creds, logger.Named("web"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("web server failed", zap.Error(err))
	}
	logger.Info("shut down cleanly")
}
