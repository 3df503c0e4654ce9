package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"refgraph/internal/analyzer"
	"refgraph/internal/config"
	"refgraph/internal/csharp"
	"refgraph/internal/lsp"
	"refgraph/internal/resolve"
	"refgraph/internal/scene"
	"refgraph/internal/source"
	"refgraph/internal/store"
	"refgraph/internal/typesys"
	"refgraph/util"
)

// workspace is everything a command needs to run passes over one project.
type workspace struct {
	cfg      config.Config
	logger   *slog.Logger
	types    *typesys.Registry
	index    *source.Index
	analyzer *analyzer.Analyzer
	store    *store.Store
	lsp      *lsp.Client
	snapshot string
}

type workspaceOptions struct {
	snapshot string
	src      string
	db       string
	metrics  prometheus.Registerer
}

func openWorkspace(ctx context.Context, cfg config.Config, logger *slog.Logger, opts workspaceOptions) (*workspace, error) {
	if opts.snapshot == "" {
		return nil, errors.New("a scene snapshot is required (--scene)")
	}
	root, err := projectRoot(opts.src, cfg.Source.Root)
	if err != nil {
		return nil, err
	}

	ws := &workspace{
		cfg:      cfg,
		logger:   logger,
		types:    typesys.NewRegistry(),
		snapshot: opts.snapshot,
	}
	typesys.RegisterEngineTypes(ws.types)

	parser := csharp.NewParser(csharp.WithLogger(logger))
	srcOpts := cfg.SourceOptions()
	srcOpts.Logger = logger
	ws.index, err = source.NewIndex(root, parser, ws.types, srcOpts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := ws.index.Build(ctx); err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", root, err)
	}
	logger.Info("source index built",
		slog.String("root", root),
		slog.Int("files", ws.index.Len()),
		slog.Duration("duration", time.Since(start)))

	options := []analyzer.Option{analyzer.WithLogger(logger), analyzer.WithParser(parser)}
	if opts.metrics != nil {
		options = append(options, analyzer.WithMetrics(analyzer.NewMetrics(opts.metrics)))
	}
	if cfg.LSP.Command != "" {
		checker, err := ws.startLSP(ctx, root)
		if err != nil {
			// Resolution still works from the in-file scope.
			logger.Warn("language server unavailable", slog.String("command", cfg.LSP.Command), slog.Any("error", err))
		} else {
			options = append(options, analyzer.WithTypeCheckers(checker))
		}
	}
	ws.analyzer, err = analyzer.New(ws.types, ws.index, cfg.AnalyzerOptions(), options...)
	if err != nil {
		ws.Close()
		return nil, err
	}

	dbPath := opts.db
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if dbPath != "" {
		if ws.store, err = store.Open(dbPath); err != nil {
			ws.Close()
			return nil, err
		}
	}
	return ws, nil
}

func projectRoot(flag, configured string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if configured != "" {
		return configured, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := util.FindProjectRoot(wd)
	if err != nil {
		return "", fmt.Errorf("no project root found from %s, pass --src: %w", wd, err)
	}
	return root, nil
}

func (ws *workspace) startLSP(ctx context.Context, root string) (resolve.TypeChecker, error) {
	c, err := lsp.Start(context.WithoutCancel(ctx), ws.cfg.LSP.Command, ws.cfg.LSP.Args, ws.logger)
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.Initialize(initCtx, root); err != nil {
		c.Close()
		return nil, err
	}
	if !c.SupportsHover() {
		c.Close()
		return nil, errors.New("server does not provide hover")
	}
	ws.lsp = c
	return timeoutChecker{checker: c, timeout: ws.cfg.LSP.Timeout}, nil
}

// timeoutChecker bounds each query so a slow server cannot stall a pass.
type timeoutChecker struct {
	checker resolve.TypeChecker
	timeout time.Duration
}

func (t timeoutChecker) DeclaredType(ctx context.Context, q resolve.Query) (string, bool) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.checker.DeclaredType(ctx, q)
}

// loadScene reads the snapshot and registers the types it declares.
func (ws *workspace) loadScene(context.Context) (scene.Host, []*scene.Entity, error) {
	snap, err := scene.LoadSnapshotFile(ws.snapshot)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range snap.Types {
		ws.types.Add(t)
	}
	return snap.Scene, snap.Scene.Roots, nil
}

// save persists a pass and prunes old ones.
func (ws *workspace) save(ctx context.Context, p *store.Pass) error {
	if ws.store == nil {
		return nil
	}
	if err := ws.store.SavePass(ctx, p); err != nil {
		return err
	}
	if ws.cfg.Store.Keep > 0 {
		n, err := ws.store.Prune(ctx, ws.cfg.Store.Keep)
		if err != nil {
			return err
		}
		if n > 0 {
			ws.logger.Debug("pruned passes", slog.Int("removed", n))
		}
	}
	return nil
}

func (ws *workspace) Close() {
	if ws.lsp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ws.lsp.Shutdown(ctx); err != nil {
			ws.logger.Debug("language server shutdown", slog.Any("error", err))
		}
		cancel()
	}
	if ws.store != nil {
		ws.store.Close()
	}
}
