// ctledgerd serves a localnet ledger running the confidential token program
// over HTTP, with prometheus metrics on /metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mn "github.com/multiformats/go-multiaddr/net"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctoken/internal/config"
	"ctoken/internal/ledger/httpapi"
	"ctoken/internal/localnet"
	"ctoken/internal/logging"
	"ctoken/internal/proof"
)

var version = "dev"

func main() {
	var configPath string
	root := &cobra.Command{
		Use:          "ctledgerd",
		Short:        "Serve a local confidential token ledger",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "ctoken.yaml", "config file, created with defaults when missing")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer logger.Sync()

	ranges := proof.NewGroth16Range(cfg.CircuitDir, logger)
	logger.Info("loading range circuits", zap.String("dir", cfg.CircuitDir))
	if err := ranges.Warm(); err != nil {
		return errors.Wrap(err, "range circuits")
	}
	fingerprints, err := ranges.Fingerprints()
	if err != nil {
		return errors.Wrap(err, "range circuits")
	}
	for layout, fp := range fingerprints {
		logger.Info("range verifying key", zap.String("layout", string(layout)), zap.String("fingerprint", fp))
	}

	l, err := localnet.Open(localnet.Options{
		Path:        cfg.Ledger.StorePath,
		AnchorTTL:   cfg.Ledger.AnchorTTL,
		RentBase:    cfg.Ledger.RentBase,
		RentPerByte: cfg.Ledger.RentPerByte,
	}, proof.NewVerifier(ranges), logger)
	if err != nil {
		return err
	}
	defer l.Close()

	health := httpapi.NewHealthChecker(version)
	health.Register("store", func(context.Context) error {
		if cfg.Ledger.StorePath == "" {
			return nil
		}
		_, err := os.Stat(cfg.Ledger.StorePath)
		return err
	})
	api := httpapi.NewServer(l, logger,
		httpapi.WithRateLimit(cfg.Ledger.RateLimit, cfg.Ledger.RateBurst),
		httpapi.WithHealth(health),
		httpapi.WithCircuits(fingerprints),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler())

	maddr, err := cfg.ListenAddr()
	if err != nil {
		return err
	}
	lis, err := mn.Listen(maddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(mn.NetListener(lis)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.Info("ledger serving", zap.Stringer("listen", maddr), zap.String("version", version))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return errors.Wrap(err, "serve")
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}
