package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/listveil/listveil/pkg/api"
	"github.com/listveil/listveil/pkg/bootstrap"
	"github.com/listveil/listveil/pkg/config"
	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/list"
	"github.com/listveil/listveil/pkg/logging"
	"github.com/listveil/listveil/pkg/page"
	"github.com/listveil/listveil/pkg/proc"
	"github.com/listveil/listveil/pkg/rules"
	"github.com/listveil/listveil/pkg/storage"
)

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	KV      storage.KV
	Locator interfaces.Locator
	Server  *api.Server

	// Page source
	PageLocator *page.Locator

	// Exec source
	Runner  *proc.Runner
	Printer *proc.Printer
	target  *list.List
}

// NewDependencies creates all dependencies with the given configuration
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger, err := logging.NewLogger(cfg.Log.Preset, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	kv, err := buildKV(cfg)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		KV:     kv,
	}

	switch cfg.Source.Kind {
	case config.SourcePage:
		if cfg.Source.Page.URL == "" {
			return nil, fmt.Errorf("source.page.url is required (set it in the config or pass --url)")
		}
		locator, err := page.NewLocator(
			cfg.Source.Page.URL,
			cfg.Source.Page.ContainerSelector,
			cfg.Source.Page.ItemSelector,
			cfg.Source.Page.MarkerClass,
			nil, logger)
		if err != nil {
			return nil, err
		}
		deps.PageLocator = locator
		deps.Locator = locator

	case config.SourceExec:
		if cfg.Source.Exec.Command == "" {
			return nil, fmt.Errorf("source.exec.command is required (set it in the config or pass it after --)")
		}
		target := list.New()
		deps.target = target
		deps.Locator = staticLocator{container: target}
		deps.Runner = proc.NewRunner(target, logger)
		deps.Printer = proc.NewPrinter(os.Stdout)

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if cfg.API.Enabled {
		deps.Server = api.NewServer(cfg.API.Addr, logger)
	}

	return deps, nil
}

// Close cleans up all dependencies
func (d *Dependencies) Close() {
	if d.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = d.Server.Shutdown(ctx)
		cancel()
		d.Server = nil
	}

	if closer, ok := d.KV.(io.Closer); ok {
		_ = closer.Close()
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}
}

// buildKV constructs the persistence backend named in cfg.
func buildKV(cfg *config.Config) (storage.KV, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendFile:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage.NewFileKV(cfg.Storage.Path), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage.NewSQLiteKV(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// staticLocator hands bootstrap an already-built container.
type staticLocator struct {
	container interfaces.Container
}

func (l staticLocator) Find(_ context.Context) (interfaces.Container, error) {
	return l.container, nil
}

// Application represents the main application
type Application struct {
	deps     *Dependencies
	exitCode int
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	return &Application{
		deps: deps,
	}
}

// Run assembles the pipeline and blocks until the source ends or ctx is
// cancelled.
func (a *Application) Run(ctx context.Context) error {
	cfg := a.deps.Config

	opts := bootstrap.Options{
		Locator:           a.deps.Locator,
		KV:                a.deps.KV,
		Key:               cfg.Storage.Key,
		Window:            cfg.Watch.Window,
		DiscoveryInterval: cfg.Discovery.PollInterval,
		DiscoveryTimeout:  cfg.Discovery.Timeout,
		Logger:            a.deps.Logger,
	}
	if cfg.StrictPatterns {
		opts.Policy = rules.PolicyStrict
	}
	if a.deps.Server != nil {
		opts.Surface = a.deps.Server
	}
	if a.deps.Printer != nil {
		printer := a.deps.Printer
		opts.OnFlush = func(items []interfaces.Item) {
			printer.Advance(items)
		}
	}

	pipe, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return err
	}
	defer pipe.Close()

	if a.deps.Server != nil {
		a.deps.Server.Bind(pipe.Store, pipe.Container, pipe.Controller)
		if err := a.deps.Server.Start(); err != nil {
			return err
		}
	}

	switch cfg.Source.Kind {
	case config.SourceExec:
		return a.runExec(ctx, pipe)
	default:
		return a.runPage(ctx, pipe)
	}
}

// runExec drives the wrapped process to completion.
func (a *Application) runExec(ctx context.Context, pipe *bootstrap.Pipeline) error {
	cfg := a.deps.Config
	if err := a.deps.Runner.Start(cfg.Source.Exec.Command, cfg.Source.Exec.Args, os.Environ()); err != nil {
		return err
	}

	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = a.deps.Runner.Stop()
		case <-waited:
		}
	}()

	err := a.deps.Runner.Wait()
	close(waited)

	// Settle lines that arrived inside the last debounce window.
	pipe.Flush()
	a.exitCode = a.deps.Runner.ExitCode()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

// runPage keeps the page copy fresh until ctx is cancelled.
func (a *Application) runPage(ctx context.Context, pipe *bootstrap.Pipeline) error {
	interval := a.deps.Config.Source.Page.PollInterval

	if pc, ok := pipe.Container.(*page.Container); ok && interval > 0 {
		poller := page.NewPoller(a.deps.PageLocator, pc, interval, a.deps.Logger)
		poller.Start(ctx)
		defer poller.Stop()
	}

	<-ctx.Done()
	return nil
}

// ExitCode returns the exit code of the wrapped process
func (a *Application) ExitCode() int {
	return a.exitCode
}
