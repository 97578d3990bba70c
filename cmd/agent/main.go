package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/bridge"
	"github.com/xelth-com/eckprint/internal/buildinfo"
	"github.com/xelth-com/eckprint/internal/config"
	"github.com/xelth-com/eckprint/internal/handlers"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/pipeline"
	"github.com/xelth-com/eckprint/internal/services/printer"
	"github.com/xelth-com/eckprint/internal/services/profile"
	"github.com/xelth-com/eckprint/internal/services/report"
	"github.com/xelth-com/eckprint/internal/session"
	"github.com/xelth-com/eckprint/internal/store"
	"github.com/xelth-com/eckprint/internal/utils"
	"github.com/xelth-com/eckprint/internal/websocket"
)

func main() {
	printToken := flag.Bool("print-token", false, "print a bridge token for the embedded surface and exit")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime of the printed token (0 = no expiry)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printToken {
		token, err := utils.GenerateBridgeToken("surface", cfg.Bridge.Secret, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("agent stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting print agent",
		zap.String("version", buildinfo.Version),
		zap.String("commit", buildinfo.CommitHash),
		zap.String("profile", cfg.Storage.ProfileName),
		zap.String("dataDir", cfg.Storage.DataDir))

	// 2. Stores
	jobs, err := store.OpenJobStore(cfg.LedgerPath(), cfg.Storage.PDFRoot, log)
	if err != nil {
		return fmt.Errorf("open job ledger: %w", err)
	}
	trips := store.NewTripStore(cfg.TripConfigPath(), log)

	// 3. Session with its profile sources
	local := profile.NewLocalStore(cfg.Profile.Path, cfg.Profile.EncKey, log)
	var remote profile.Source
	switch cfg.Registry.Kind {
	case "http":
		remote = profile.NewHTTPRegistry(cfg.Registry.URL, cfg.Registry.Module, cfg.Registry.Action, cfg.Registry.Timeout, log)
	case "odoo":
		remote = profile.NewOdooRegistry(cfg.Registry.URL, cfg.Registry.OdooDB, cfg.Registry.OdooUser, cfg.Registry.OdooPassword,
			cfg.Registry.OdooModel, cfg.Registry.Module, cfg.Registry.Action, cfg.Registry.Timeout, log)
	}
	sess := session.New(local, remote, cfg.Registry.Timeout, session.ReportSettings{
		Path:          cfg.Report.Path,
		ParameterName: cfg.Report.ParameterName,
	}, log)

	// 4. Pipeline
	fetcher := report.NewClient(cfg.Report.Endpoint, cfg.Report.Timeout, log)
	printers := printer.NewOSDispatcher(cfg.Printer.Timeout, log)
	pipe := pipeline.New(pipeline.Deps{
		Jobs:     jobs,
		Trips:    trips,
		Fetcher:  fetcher,
		Printers: printers,
		Session:  sess,
	}, cfg.AutoPrint.Concurrency, log)

	// 5. Bridge and the channel it answers on
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(log)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	b := bridge.New(log)
	bridge.RegisterAll(b, bridge.Services{
		Pipeline: pipe,
		Printers: printers,
		Session:  sess,
		Fetcher:  fetcher,
		TempDir:  filepath.Join(cfg.Storage.DataDir, "tmp"),
	})
	pipe.OnJobChange(func(job models.PrintJob) {
		hub.Broadcast(bridge.Notification("jobUpdated", job))
	})

	// 6. Auto-print
	var auto *pipeline.AutoPrinter
	if cfg.AutoPrint.Enabled {
		auto, err = pipeline.NewAutoPrinter(pipe, cfg.AutoPrint.Schedule, cfg.AutoPrint.Concurrency, log)
		if err != nil {
			return err
		}
		auto.Start()
		log.Info("auto-print scheduler started", zap.String("schedule", cfg.AutoPrint.Schedule))
	}

	// 7. HTTP server with graceful shutdown
	router := handlers.NewRouter(handlers.Deps{
		Jobs:     pipe,
		Printers: printers,
		Hub:      hub,
		Bridge:   b,
		Secret:   cfg.Bridge.Secret,
	}, log)
	if cfg.Bridge.Secret == "" {
		log.Warn("bridge.secret is empty; the bridge channel accepts any local connection")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	if auto != nil {
		select {
		case <-auto.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("auto-print sweep still running at shutdown")
		}
	}
	<-hubDone

	// wait for in-flight requests
	waited := make(chan struct{})
	go func() {
		b.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		log.Warn("requests still running at shutdown")
	}

	log.Info("shutdown complete")
	return nil
}
