package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"NetSankey/internal/config"
	"NetSankey/internal/ingest"
	"NetSankey/internal/logging"
	"NetSankey/internal/metrics"
	"NetSankey/internal/store"
	_ "NetSankey/internal/store/badger"
	_ "NetSankey/internal/store/clickhouse"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	metricsAddr := flag.String("metrics-addr", ":5003", "Address of the Prometheus metrics endpoint. Empty disables it.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	log.Info("Starting ns-ingest...")

	// 2. Open the store and subscribe
	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	ingester, err := ingest.NewNATSIngester(cfg, st, m)
	if err != nil {
		log.Fatalf("Failed to create stream ingester: %v", err)
	}

	// 3. Start consuming
	if err := ingester.Start(); err != nil {
		log.Fatalf("Failed to start stream ingester: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			log.Infof("Metrics endpoint listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				log.WithError(err).Error("Metrics endpoint stopped")
			}
		}()
	}

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, draining ingester...")
	ingester.Stop()
	log.Info("Shutdown complete.")
}
