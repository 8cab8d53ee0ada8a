// roost keeps a resident, authenticated session open to a local gateway and
// republishes its liveness over Prometheus metrics.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roost-dev/roost/internal/config"
	"github.com/roost-dev/roost/internal/gateway"
	"github.com/roost-dev/roost/internal/identity"
	"github.com/roost-dev/roost/pkg/logging"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to roost config TOML")
	debug := flag.Bool("debug", false, "enable verbose logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("roost v%s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *debug {
		cfg.Debug = true
	}

	log := logging.New(cfg.Debug)
	log.Info().Str("gateway", cfg.GatewayURL).Str("home", cfg.RoostHome).Msg("starting roost")

	id, regenerated, err := identity.Load(cfg.IdentityPath)
	if err != nil {
		return fmt.Errorf("load device identity: %w", err)
	}
	if regenerated {
		log.Warn().Str("path", cfg.IdentityPath).
			Msg("existing identity file was invalid and has been replaced; the gateway may require re-pairing")
	}
	log.Info().Str("deviceId", id.DeviceID).Msg("device identity ready")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	session := gateway.NewSession(gateway.Options{
		URL:               cfg.GatewayURL,
		Token:             cfg.Token,
		Password:          cfg.Password,
		ClientID:          cfg.ClientID,
		ClientDisplayName: cfg.ClientDisplayName,
		ClientVersion:     version,
		ClientMode:        cfg.ClientMode,
		Platform:          config.Platform(),
		Role:              cfg.Role,
		Scopes:            cfg.Scopes,
		Caps:              cfg.Caps,
		Identity:          id,
		InvokeTimeout:     cfg.InvokeTimeout,
		KeepalivePeriod:   cfg.KeepalivePeriod,
		TickTimeout:       cfg.TickTimeout,
		ReconnectDelay:    cfg.ReconnectDelay,
		Logger:            log,
		Metrics:           gateway.NewMetrics(registry),
	})
	session.Start()
	defer session.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
		defer srv.Close()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listener started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	return nil
}
