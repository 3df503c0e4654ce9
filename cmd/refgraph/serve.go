package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"refgraph/internal/server"
)

var (
	metricsAddr string
	watchSource bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve analysis tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := metricsAddr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		var reg *prometheus.Registry
		if addr != "" {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}

		opts := workspaceOptions{snapshot: scenePath, src: srcRoot, db: dbPath}
		if reg != nil {
			opts.metrics = reg
		}
		ws, err := openWorkspace(ctx, cfg, logger, opts)
		if err != nil {
			return err
		}
		defer ws.Close()

		if reg != nil {
			srv := &http.Server{
				Addr:              addr,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("metrics listening", slog.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", slog.Any("error", err))
				}
			}()
			defer srv.Close()
		}

		if watchSource || cfg.Source.Watch {
			go func() {
				err := ws.index.Watch(ctx, func(path string) {
					logger.Debug("source changed", slog.String("path", path))
				})
				if err != nil && !errors.Is(err, ctx.Err()) {
					logger.Warn("source watch stopped", slog.Any("error", err))
				}
			}()
		}

		var sopts []server.Option
		sopts = append(sopts, server.WithLogger(logger))
		if ws.store != nil {
			sopts = append(sopts, server.WithStore(ws.store), server.WithRetention(ws.cfg.Store.Keep))
		}
		s := server.New(ws.analyzer, ws.loadScene, version, sopts...)
		return s.Run(ctx, &mcp.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&scenePath, "scene", "", "Scene snapshot YAML, re-read on every analyze call")
	serveCmd.Flags().StringVar(&srcRoot, "src", "", "Project root holding the behavior sources (default: discovered)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to store passes in")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().BoolVar(&watchSource, "watch", false, "Re-index source files as they change")
	serveCmd.MarkFlagRequired("scene")
}
