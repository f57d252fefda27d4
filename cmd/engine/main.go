// Command engine runs one Integral node: the five subsystem services,
// the ledger, the scheduled sweeps, and the reference HTTP transport.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liminalvillage/integral-sub001/internal/engine"
	"github.com/liminalvillage/integral-sub001/internal/httpapi"
	"github.com/liminalvillage/integral-sub001/pkg/config"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
	"github.com/liminalvillage/integral-sub001/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("integral-engine", cfg.Logging.Level, cfg.Logging.Format)
	logging.InitDefault("integral-engine", cfg.Logging.Level, cfg.Logging.Format)

	var m *metrics.Metrics
	if metrics.Enabled() {
		m = metrics.Init("integral-engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("wire engine")
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.WithError(err).Warn("close engine")
		}
	}()

	scheduler := engine.NewScheduler(eng)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Error("start scheduler")
		os.Exit(1)
	}
	defer scheduler.Stop()

	router := httpapi.NewRouter(httpapi.Services{
		CDS: eng.CDS,
		OAD: eng.OAD,
		ITC: eng.ITC,
		COS: eng.COS,
		FRS: eng.FRS,
		Fed: eng.Federation,
	}, logger, m, 20, 40)
	if m != nil {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": addr, "node_id": cfg.Node.ID}).Info("engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.WithFields(nil).Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown")
	}
}
