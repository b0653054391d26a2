package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetSankey/internal/api"
	"NetSankey/internal/config"
	"NetSankey/internal/logging"
	"NetSankey/internal/metrics"
	"NetSankey/internal/query"
	"NetSankey/internal/store"
	_ "NetSankey/internal/store/badger"
	_ "NetSankey/internal/store/clickhouse"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	querier := query.NewQuerier(st, config.Duration(cfg.API.CacheTTL), m)
	router := api.NewRouter(querier, api.Options{
		QueryTimeout:   config.Duration(cfg.API.QueryTimeout),
		StreamInterval: config.Duration(cfg.API.StreamInterval),
		Gatherer:       reg,
	})

	server := &http.Server{
		Addr:    cfg.API.HttpListenAddr,
		Handler: router,
	}

	grpcServer := grpc.NewServer()
	health := api.NewHealthReporter(st, config.Duration(cfg.API.HealthCheckInterval))
	health.Register(grpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.API.GrpcListenAddr)
		if err != nil {
			return err
		}
		log.Infof("gRPC health service listening on %s", cfg.API.GrpcListenAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("API server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("API server failed: %v", err)
	}
	log.Info("API server exited.")
}
