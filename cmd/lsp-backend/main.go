package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lsp-backend/internal/config"
	"lsp-backend/internal/env"
	"lsp-backend/internal/infrastructure/lnd"
	"lsp-backend/internal/infrastructure/repo"
	"lsp-backend/internal/logger"
	"lsp-backend/internal/server"
	"lsp-backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type orderStore interface {
	usecase.OrderRepo
	Close() error
}

func main() {
	if err := env.Load(".env", ".env.local"); err != nil {
		fmt.Fprintf(os.Stderr, "load env files: %v\n", err)
		os.Exit(1)
	}
	envDefaults, err := config.EnvDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read environment: %v\n", err)
		os.Exit(1)
	}

	cfg := envDefaults
	flag.StringVar(&cfg.Env, "env", envDefaults.Env, "")
	flag.StringVar(&cfg.Host, "host", envDefaults.Host, "")
	flag.IntVar(&cfg.Port, "port", envDefaults.Port, "")
	flag.StringVar(&cfg.LogLevel, "log-level", envDefaults.LogLevel, "")
	flag.BoolVar(&cfg.LogJSON, "log-json", envDefaults.LogJSON, "")
	flag.StringVar(&cfg.LogDir, "log-dir", envDefaults.LogDir, "")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", envDefaults.RequestTimeout, "")
	flag.StringVar(&cfg.Store, "store", envDefaults.Store, "memory, postgres or sqlite")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", envDefaults.PostgresDSN, "")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", envDefaults.SQLitePath, "")
	flag.StringVar(&cfg.OptionsFile, "options", envDefaults.OptionsFile, "JSON file of LSP option overrides")
	flag.StringVar(&cfg.LND.Address, "lnd-address", envDefaults.LND.Address, "")
	flag.StringVar(&cfg.LND.CertPath, "lnd-cert", envDefaults.LND.CertPath, "")
	flag.StringVar(&cfg.LND.MacaroonPath, "lnd-macaroon", envDefaults.LND.MacaroonPath, "")
	flag.StringVar(&cfg.LND.TLSHostOverride, "lnd-tls-host", envDefaults.LND.TLSHostOverride, "")
	flag.Parse()

	logger.Init(cfg.LogLevel, cfg.LogJSON)
	if cfg.LogDir != "" {
		if err := logger.AddFileLogger(cfg.LogDir, cfg.LogJSON); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to open log file")
		}
	}

	if err := run(cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("LSP server stopped")
	}
}

func run(cfg config.Config) error {
	log := logger.Logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := config.DefaultLSPOptions()
	if cfg.OptionsFile != "" {
		var err error
		if options, err = config.LoadLSPOptionsFile(options, cfg.OptionsFile); err != nil {
			return err
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer store.Close()

	node, err := lnd.Dial(cfg.LND, log)
	if err != nil {
		return err
	}
	defer node.Close()

	lsp := usecase.NewLSPService(options)
	orders := usecase.NewOrderService(store, node, lsp, clock.NewDefaultClock(), log)
	srv := server.New(cfg, lsp, orders, log)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("store", cfg.Store).
			Str("lnd", cfg.LND.Address).
			Msg("LSP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reloadOnHangup(gctx, lsp, cfg.OptionsFile, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// reloadOnHangup re-reads the options file each time the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, lsp *usecase.LSPService, path string, log zerolog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if path == "" {
				log.Warn().Msg("SIGHUP received but no options file is configured")
				continue
			}
			if err := lsp.ReloadFile(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to reload LSP options")
				continue
			}
			log.Info().Str("path", path).Msg("LSP options reloaded")
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (orderStore, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return repo.NewMemoryOrderRepo(), nil
	case config.StorePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres store needs a DSN")
		}
		return repo.NewPostgresOrderRepo(ctx, cfg.PostgresDSN)
	case config.StoreSQLite:
		db, err := repo.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo.NewSQLiteOrderRepo(db)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
