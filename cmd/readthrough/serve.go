package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leonardcser/readthrough/internal/cache"
	"github.com/leonardcser/readthrough/internal/config"
	"github.com/leonardcser/readthrough/internal/httpapi"
	"github.com/leonardcser/readthrough/internal/logger"
	"github.com/leonardcser/readthrough/internal/metrics"
	"github.com/leonardcser/readthrough/internal/remote"
	"github.com/leonardcser/readthrough/internal/store"
	"github.com/leonardcser/readthrough/internal/store/boltstore"
	"github.com/leonardcser/readthrough/internal/store/sqlitestore"
	"github.com/leonardcser/readthrough/internal/web"
)

const (
	shutdownTimeout = 5 * time.Second
	fetchDelay      = 500 * time.Millisecond
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache daemon on the Unix socket and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", `HTTP listen address, "" keeps the configured one`)
	f.String("backend", "", "store backend: bolt or sqlite")
	f.String("db", "", "store file path")
	f.String("values", "", "value factory on a miss: random or web")
	f.Int("max-entries", 0, "entry bound")
	f.Duration("ttl", 0, "entry freshness")
	bindFlag(a.v, "server.addr", f.Lookup("addr"))
	bindFlag(a.v, "store.backend", f.Lookup("backend"))
	bindFlag(a.v, "store.path", f.Lookup("db"))
	bindFlag(a.v, "cache.values", f.Lookup("values"))
	bindFlag(a.v, "cache.max_entries", f.Lookup("max-entries"))
	bindFlag(a.v, "cache.ttl", f.Lookup("ttl"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("path", cfg.Store.Path).
		Str("socket", cfg.Server.Socket).
		Str("addr", cfg.Server.Addr).
		Msg("starting cache daemon")

	driver, err := openDriver(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer driver.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("readthrough", reg)

	engine, err := cache.New(ctx, driver, cache.Options{
		Collection: cfg.Cache.Collection,
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		Timeout:    cfg.Cache.Timeout,
		Values:     valueFactory(cfg.Cache.Values),
		Logger:     &log,
		Metrics:    m,
	})
	if err != nil {
		return err
	}

	l, err := listenSocket(ctx, cfg.Server.Socket)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.Server.Socket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return remote.NewServer(engine, logger.WithComponent(log, "remote")).Serve(gctx, l)
	})
	if cfg.Server.Addr != "" {
		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpapi.New(engine,
				httpapi.WithLogger(logger.WithComponent(log, "http")),
				httpapi.WithMetrics(m.Handler())),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, errors.CodeNetwork, "http server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	log.Info().Err(err).Msg("cache daemon stopped")
	return err
}

// openDriver opens the configured store backend.
func openDriver(ctx context.Context, cfg config.StoreConfig) (store.Driver, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		d, err := boltstore.Open(cfg.Path, boltstore.Options{Timeout: time.Second})
		if err != nil {
			return nil, errors.WithContext(errors.Wrap(err, errors.CodeDatabase, "failed to open bolt store"), "path", cfg.Path)
		}
		return d, nil
	case config.BackendSQLite:
		d, err := sqlitestore.Open(ctx, cfg.Path)
		if err != nil {
			return nil, errors.WithContext(errors.Wrap(err, errors.CodeDatabase, "failed to open sqlite store"), "path", cfg.Path)
		}
		return d, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown store backend %q", cfg.Backend)
	}
}

// valueFactory picks what a miss is filled with.
func valueFactory(name string) cache.ValueFactory {
	if name == config.ValuesWeb {
		return web.NewRouter(
			web.NewFetcher(fetchDelay),
			web.NewSearcher(web.DefaultSearchEndpoint),
			cache.RandomValue,
		)
	}
	return cache.RandomValue
}

// listenSocket binds the daemon socket. A leftover socket file from a dead
// daemon is removed; a live daemon is an error.
func listenSocket(ctx context.Context, path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create socket directory")
	}
	if _, err := os.Stat(path); err == nil {
		pctx, cancel := context.WithTimeout(ctx, time.Second)
		alive := remote.NewClient(path).Ping(pctx) == nil
		cancel()
		if alive {
			return nil, errors.WithContext(errors.New(errors.CodeAlreadyExists, "a cache daemon is already running"), "socket", path)
		}
		_ = os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeNetwork, "failed to listen"), "socket", path)
	}
	_ = os.Chmod(path, 0o600)
	return l, nil
}
