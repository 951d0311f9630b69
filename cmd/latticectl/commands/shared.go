package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/latticectl/lattice/internal/manifest"
	"github.com/latticectl/lattice/internal/policy"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/store"
	"github.com/latticectl/lattice/internal/telemetry"
	"github.com/latticectl/lattice/internal/txn"
	"github.com/latticectl/lattice/providers/file"
	"github.com/latticectl/lattice/providers/plugin"
	"github.com/latticectl/lattice/providers/remotefile"
	"github.com/latticectl/lattice/providers/service"
	"github.com/latticectl/lattice/providers/template"
)

// app bundles the engine components one CLI invocation needs, built once
// from the persistent flags every subcommand shares.
type app struct {
	log     *telemetry.Logger
	store   *store.SQLiteStore
	watcher *file.Watcher
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

func newApp(ctx context.Context, log *telemetry.Logger) (*app, error) {
	st, err := store.NewSQLiteStore(store.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	ambient := telemetry.DefaultConfig()
	tracer, err := telemetry.NewTracer(ambient.Tracing, cliVersion, "cli")
	if err != nil {
		return nil, fmt.Errorf("building tracer: %w", err)
	}
	metrics, err := telemetry.NewMetrics(ambient.Metrics)
	if err != nil {
		return nil, fmt.Errorf("building metrics: %w", err)
	}

	return &app{
		log:     log,
		store:   st,
		watcher: file.NewWatcher(log),
		tracer:  tracer,
		metrics: metrics,
	}, nil
}

func (a *app) registry() *manifest.Registry {
	reg := manifest.NewRegistry()
	reg.Register("file", file.Factory(a.watcher, a.log))
	reg.Register("service", service.Factory(a.log))
	reg.Register("template", template.Factory(template.NewEvaluator(0), a.log))

	if remoteHost != "" {
		conn := remotefile.NewConnection(remotefile.Config{
			Host:                  remoteHost,
			Port:                  remotePort,
			User:                  remoteUser,
			AuthMethod:            remotefile.AuthMethod(remoteAuthMethod),
			Password:              remotePassword,
			PrivateKeyPath:        remoteKeyPath,
			PrivateKeyPassphrase:  remoteKeyPassphrase,
			KnownHostsPath:        remoteKnownHosts,
			StrictHostKeyChecking: remoteStrictHostKeys,
			ConnectionTimeout:     remoteConnTimeout,
		}, a.log)
		reg.Register("remotefile", remotefile.Factory(conn, a.log))
	}

	if pluginKind != "" && pluginBinary != "" {
		binary, err := os.ReadFile(pluginBinary)
		if err != nil {
			a.log.WithError(err).Warn("failed to read plugin binary, plugin kind not registered")
		} else {
			mod := plugin.NewModule(pluginKind, binary, 0)
			reg.Register(pluginKind, plugin.Factory(pluginKind, mod, a.log))
		}
	}

	return reg
}

func (a *app) loadResources() ([]resource.Resource, error) {
	m, err := manifest.LoadYAMLAll(manifestPaths)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	return manifest.Build(m, a.registry())
}

func (a *app) policyGate(ctx context.Context) (txn.Gate, error) {
	if len(policyPaths) == 0 {
		return nil, nil
	}
	engine := policy.NewEngine(a.log)
	if err := engine.LoadPolicies(ctx, policyPaths); err != nil {
		return nil, fmt.Errorf("loading policies: %w", err)
	}
	return engine, nil
}

func (a *app) config(ctx context.Context) (txn.Config, error) {
	gate, err := a.policyGate(ctx)
	if err != nil {
		return txn.Config{}, err
	}
	return txn.Config{
		Tags:            tags,
		IgnoreTags:      ignoreTags,
		IgnoreSchedules: ignoreSched,
		Trace:           traceErrors,
		Policy:          gate,
		Tracer:          a.tracer,
		Metrics:         a.metrics,
	}, nil
}

func (a *app) newTransaction(ctx context.Context) (*txn.Transaction, *store.Sink, error) {
	resources, err := a.loadResources()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := a.config(ctx)
	if err != nil {
		return nil, nil, err
	}

	tx := txn.New(resources, cfg, nil)

	sink := store.NewSink(a.store, tx.ID(), a.log)
	if err := a.store.CreateTransaction(ctx, &store.TransactionRecord{
		ID:        tx.ID(),
		Status:    store.StatusRunning,
		StartedAt: time.Now(),
	}); err != nil {
		return nil, nil, fmt.Errorf("recording transaction: %w", err)
	}
	tx.SetReport(sink)

	return tx, sink, nil
}

func (a *app) close(ctx context.Context) error {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("tracer shutdown failed")
		}
	}
	return a.store.Close()
}
