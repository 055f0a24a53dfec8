// Package app opens every store named by a config and wires the resolver.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/lineage-bridge/internal/cache"
	"github.com/danielpatrickdp/lineage-bridge/internal/config"
	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/identity"
	"github.com/danielpatrickdp/lineage-bridge/internal/lineage"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
	"github.com/danielpatrickdp/lineage-bridge/internal/provenance"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/sqlstore"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

// App owns the opened stores and the resolver built over them.
type App struct {
	Config   *config.Config
	Registry *stage.Registry
	Stages   map[string]*sqlstore.StageStore
	Catalog  *sqlstore.CatalogStore
	Identity *identity.Registrar
	Log      *provenance.Log
	Cache    *cache.WaveformIDs
	Resolver *lineage.Resolver

	closers []func() error
}

// Open opens the databases named by cfg. reg may be nil, in which case
// metrics are not exported.
func Open(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Stages: make(map[string]*sqlstore.StageStore, len(cfg.Stages))}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Registry, err = stage.NewRegistry(cfg.StageOrder()); err != nil {
		return nil, err
	}
	for _, sc := range cfg.Stages {
		st, err := sqlstore.OpenStage(sc.Database)
		if err != nil {
			return nil, fmt.Errorf("open stage %s: %w", sc.Name, err)
		}
		a.closers = append(a.closers, st.Close)
		a.Stages[sc.Name] = st
		if err := register(a.Registry, sc.Name, st); err != nil {
			return nil, err
		}
	}

	if a.Catalog, err = sqlstore.OpenCatalog(cfg.CatalogDatabase); err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.closers = append(a.closers, a.Catalog.Close)
	if a.Identity, err = identity.Open(cfg.IdentityDatabase); err != nil {
		return nil, fmt.Errorf("open identity registry: %w", err)
	}
	a.closers = append(a.closers, a.Identity.Close)
	if a.Log, err = provenance.Open(cfg.LineageLogDatabase); err != nil {
		return nil, fmt.Errorf("open lineage log: %w", err)
	}
	a.closers = append(a.closers, a.Log.Close)
	if a.Cache, err = cache.Open(cache.Config{Path: cfg.Cache.Path, InMemory: cfg.Cache.InMemory, Logger: logger}); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Cache.Close)

	m := metrics.Discard()
	if reg != nil {
		m = metrics.New(reg)
	}
	a.Resolver, err = lineage.NewResolver(lineage.Deps{
		Registry:  a.Registry,
		Sites:     a.Catalog,
		Tags:      a.Catalog,
		Wfdiscs:   a.Catalog,
		Filters:   a.Catalog,
		Channels:  waveform.NewCatalogBuilder(a.Catalog),
		Identity:  a.Identity,
		Converter: detection.NewHypothesisConverter(logger),
		Cache:     a.Cache,
		Log:       a.Log,
		Metrics:   m,
		Logger:    logger,
		Lead:      cfg.WaveformLead,
		Lag:       cfg.WaveformLag,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("lineage resolver ready", "organization", cfg.MonitoringOrganization, "stages", stageNames(a.Registry))
	return a, nil
}

func stageNames(reg *stage.Registry) []string {
	stages := reg.Stages()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name
	}
	return names
}

func register(reg *stage.Registry, name string, st *sqlstore.StageStore) error {
	sources := []struct {
		kind stage.Kind
		src  any
	}{
		{stage.KindArrival, records.ArrivalStore(st)},
		{stage.KindAssoc, records.AssocStore(st)},
		{stage.KindAmplitude, records.AmplitudeStore(st)},
		{stage.KindArrivalFilter, records.FilterParamStore(st.ArrivalFilterParams())},
		{stage.KindAmplitudeFilter, records.FilterParamStore(st.AmplitudeFilterParams())},
	}
	for _, s := range sources {
		if err := reg.Register(name, s.kind, s.src); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every opened store, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
