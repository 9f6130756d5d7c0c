package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/ethpandaops/pointerbridge/metrics"
	"github.com/ethpandaops/pointerbridge/services"
	"github.com/ethpandaops/pointerbridge/types"
	"github.com/ethpandaops/pointerbridge/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, if empty string defaults will be used")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &types.Config{}
	err := utils.ReadConfig(cfg, *configPath)
	if err != nil {
		logrus.Fatalf("error reading config file: %v", err)
	}
	utils.Config = cfg
	logWriter, logger := utils.InitLogger()
	defer logWriter.Dispose()

	logger.WithFields(logrus.Fields{
		"config":  *configPath,
		"version": utils.GetBridgeVersion(),
		"backend": cfg.Chain.Backend,
	}).Printf("starting")

	bridge, err := services.NewBridge(ctx, logger, cfg)
	if err != nil {
		logger.Fatalf("error initializing bridge: %v", err)
	}

	if cfg.Metrics.Enabled && !cfg.Metrics.Public {
		err = metrics.StartMetricsServer(logger.WithField("module", "metrics"), cfg.Metrics.Host, cfg.Metrics.Port, false)
		if err != nil {
			logger.Fatalf("error starting metrics server: %v", err)
		}
	}

	webserver, err := startWebserver(logger, cfg, bridge)
	if err != nil {
		logger.Fatalf("error starting webserver: %v", err)
	}

	bridge.Start()

	utils.WaitForCtrlC()
	logger.Println("exiting...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("error stopping webserver")
	}
	bridge.Close()
}

func startWebserver(logger logrus.FieldLogger, cfg *types.Config, bridge *services.Bridge) (*http.Server, error) {
	router := mux.NewRouter()
	router.Handle("/", bridge.Gateway).Methods("POST")

	if cfg.Server.Pprof {
		router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
		router.Handle("/debug/metrics", metrics.GetMetricsHandler())
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Public {
		router.Handle("/metrics", metrics.GetMetricsHandler())
	}

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseHandler(router)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		WriteTimeout: cfg.Server.HttpWriteTimeout,
		ReadTimeout:  cfg.Server.HttpReadTimeout,
		IdleTimeout:  cfg.Server.HttpIdleTimeout,
		Handler:      n,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	logger.Printf("json-rpc gateway listening on %v", srv.Addr)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Error serving json-rpc gateway")
		}
	}()

	return srv, nil
}
