package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/client"
	"github.com/ib-77/txpipe/pkg/codec"
	"github.com/ib-77/txpipe/pkg/config"
	"github.com/ib-77/txpipe/pkg/metrics"
	"github.com/ib-77/txpipe/pkg/observability"
	"github.com/ib-77/txpipe/pkg/server"
	"github.com/ib-77/txpipe/pkg/store"
	"github.com/ib-77/txpipe/pkg/transport"
	"github.com/ib-77/txpipe/pkg/transport/netstack"
)

type usageError string

func (e usageError) Error() string { return string(e) }

// loadConfig reads the config file and lays the explicitly set flags over it.
func loadConfig(cmd *cobra.Command, opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Transport.Port = opts.Port
	}
	if f.Changed("interface") {
		cfg.Transport.Interface = opts.Interface
	}
	if f.Changed("protocol") {
		cfg.Transport.Protocol = opts.Protocol
	}
	if f.Changed("codec") {
		cfg.Codec = opts.Codec
	}
	if f.Changed("pipeline") && opts.Server {
		cfg.Pipeline.Default = opts.Pipeline
	}
	if f.Changed("retries") {
		cfg.Pipeline.Retries = opts.Retries
	}
	if f.Changed("all-or-none") {
		cfg.Pipeline.AllOrNone = opts.AllOrNone
	}
	if opts.LogFile != "" {
		cfg.Log.Outputs = append(cfg.Log.Outputs, opts.LogFile)
	}
	if f.Changed("metrics") {
		cfg.Metrics.Enable = opts.Metrics != ""
		cfg.Metrics.Listen = opts.Metrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cfg *config.Config, mode string) (*zap.Logger, transport.Transport, codec.Codec, error) {
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setup logger: %w", err)
	}
	logger = logger.Named(mode)

	tr, err := netstack.NewByKind(cfg.Transport.Protocol)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, nil, nil, err
	}
	return logger, tr, c, nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, tr, c, err := setup(cfg, "server")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(store.Config{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := buildRegistry(cfg.Pipeline.Default, db)
	if err != nil {
		return err
	}

	collector := metrics.New()
	srv := server.New(tr, c, reg,
		server.WithLogger(logger),
		server.WithObserver(collector),
		server.WithRetryDelay(cfg.Pipeline.RetryDelay))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, transport.Address(cfg.Transport.Interface, cfg.Transport.Port))
	})
	if cfg.Metrics.Enable {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, collector, logger)
		})
	}
	return g.Wait()
}

func buildRegistry(def string, db *store.DB) (*capability.Registry, error) {
	reg := capability.NewRegistry()
	if err := reg.Register("capitalize", capability.Adapt[string, string](capability.Capitalize{})); err != nil {
		return nil, err
	}
	if err := reg.Register("kv", capability.Adapt[store.Item, string](store.NewKV(db))); err != nil {
		return nil, err
	}
	if def != "" {
		if err := reg.SetDefault(def); err != nil {
			return nil, fmt.Errorf("pipeline.default: %w", err)
		}
	}
	return reg, nil
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func runClient(ctx context.Context, cfg *config.Config, pipelineName string, args []string, out io.Writer) error {
	logger, tr, c, err := setup(cfg, "client")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Client.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Client.Timeout)
		defer cancel()
	}

	cl, err := client.Dial(ctx, tr, transport.Address(cfg.Transport.Interface, cfg.Transport.Port), c, logger)
	if err != nil {
		return err
	}
	defer cl.Close()

	resp, err := cl.Run(ctx, parseItems(args), client.RunOptions{
		AllOrNone: cfg.Pipeline.AllOrNone,
		Retries:   cfg.Pipeline.Retries,
		Pipeline:  pipelineName,
	})
	if err != nil && !errors.Is(err, client.ErrRejected) {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}

// parseItems reads each argument as JSON, keeping it as a plain string
// when it is not valid JSON.
func parseItems(args []string) []any {
	items := make([]any, 0, len(args))
	for _, a := range args {
		var v any
		if err := json.Unmarshal([]byte(a), &v); err != nil {
			v = a
		}
		items = append(items, v)
	}
	return items
}
