package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/lineage-bridge/internal/filterid"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
)

// FilterRecordIDsByUsage is the usage→filter-id map of one hypothesis.
type FilterRecordIDsByUsage struct {
	HypothesisID uuid.UUID
	Usages       map[filterid.Usage]int64
}

type filterJob struct {
	stage  stage.Stage
	store  records.FilterParamStore
	reqs   []request
	params []records.FilterParam
}

// FindFilterRecords resolves the usage map of each hypothesis. The bool is
// true when some hypothesis could not be traced back to a stage with filter
// parameters; the entries that could be resolved are still returned.
// Hypotheses without any recognized filter usage are left out without
// making the result partial.
func (r *Resolver) FindFilterRecords(ctx context.Context, hypothesisIDs []uuid.UUID) ([]FilterRecordIDsByUsage, bool, error) {
	if len(hypothesisIDs) == 0 {
		return nil, false, nil
	}
	ctx, span := tracer.Start(ctx, "lineage.FindFilterRecords", trace.WithAttributes(
		attribute.Int("lineage.ids", len(hypothesisIDs)),
	))
	defer span.End()
	defer r.metrics.ObserveSince("filter_records", time.Now())

	partial := false
	var order []uuid.UUID
	var jobs []*filterJob
	byAccount := make(map[string]*filterJob)
	unresolved := make(map[string]bool)
	seen := make(map[uuid.UUID]bool, len(hypothesisIDs))
	for _, id := range hypothesisIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)

		key, ok, err := r.recoverKey(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			r.log.Warn("cannot recover identity of hypothesis", "hypothesis", id)
			r.metrics.Skipped.WithLabelValues(metrics.ReasonUnknownIdentity).Inc()
			partial = true
			continue
		}
		if job, ok := byAccount[key.Account]; ok {
			job.reqs = append(job.reqs, request{id: id, key: key})
			continue
		}
		if unresolved[key.Account] {
			partial = true
			continue
		}
		st, ok := r.registry.StageForAccount(key.Account)
		if !ok {
			r.log.Warn("no stage for account", "account", key.Account)
			r.metrics.Skipped.WithLabelValues(metrics.ReasonUnknownAccount).Inc()
			unresolved[key.Account], partial = true, true
			continue
		}
		store, ok := stage.OptionalSource[records.FilterParamStore](r.registry, st.Name, stage.KindArrivalFilter)
		if !ok {
			r.log.Warn("no arrival filter parameters for stage", "stage", st.Name)
			unresolved[key.Account], partial = true, true
			continue
		}
		job := &filterJob{stage: st, store: store, reqs: []request{{id: id, key: key}}}
		byAccount[key.Account] = job
		jobs = append(jobs, job)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			arids := make([]int64, 0, len(job.reqs))
			for _, req := range job.reqs {
				arids = append(arids, req.key.Arid)
			}
			params, err := job.store.FindFilterParamsByIDs(gctx, arids)
			if err != nil {
				return fmt.Errorf("load %s arrival filter params: %w", job.stage.Name, err)
			}
			job.params = params
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	usages := make(map[uuid.UUID]map[filterid.Usage]int64)
	for _, job := range jobs {
		for _, req := range job.reqs {
			u := filterid.UsagesForArrival(job.params, req.key.Arid)
			if len(u) == 0 {
				r.log.Info("no filter usages for hypothesis", "hypothesis", req.id, "stage", job.stage.Name)
				r.metrics.Skipped.WithLabelValues(metrics.ReasonNoUsages).Inc()
				continue
			}
			usages[req.id] = u
		}
	}

	out := make([]FilterRecordIDsByUsage, 0, len(usages))
	for _, id := range order {
		if u, ok := usages[id]; ok {
			out = append(out, FilterRecordIDsByUsage{HypothesisID: id, Usages: u})
		}
	}
	if partial {
		r.metrics.FilterPartial.Inc()
	}
	span.SetAttributes(attribute.Int("lineage.records", len(out)), attribute.Bool("lineage.partial", partial))
	return out, partial, nil
}
