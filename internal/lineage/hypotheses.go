package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/metrics"
)

// request is a hypothesis id with its recovered legacy key.
type request struct {
	id  uuid.UUID
	key detection.HypothesisKey
}

// recoverKey finds the legacy key of a hypothesis id, trying the arrival
// path before the association path.
func (r *Resolver) recoverKey(ctx context.Context, id uuid.UUID) (detection.HypothesisKey, bool, error) {
	account, arid, ok, err := r.identity.ArrivalComponents(ctx, id)
	if err != nil {
		return detection.HypothesisKey{}, false, fmt.Errorf("hypothesis %s: %w", id, err)
	}
	if ok {
		return detection.ArrivalKey(account, arid), true, nil
	}
	account, arid, orid, ok, err := r.identity.AssocComponents(ctx, id)
	if err != nil {
		return detection.HypothesisKey{}, false, fmt.Errorf("hypothesis %s: %w", id, err)
	}
	if ok {
		return detection.HypothesisKey{Account: account, Arid: arid, Orid: orid, Source: detection.SourceAssoc}, true, nil
	}
	return detection.HypothesisKey{}, false, nil
}

// FindHypothesesByIDs rebuilds hypotheses at the stage each was created
// for. Ids that cannot be traced back to a stage are skipped. Results follow
// the order of hypothesisIDs.
func (r *Resolver) FindHypothesesByIDs(ctx context.Context, hypothesisIDs []uuid.UUID) ([]detection.Hypothesis, error) {
	if len(hypothesisIDs) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "lineage.FindHypothesesByIDs", trace.WithAttributes(
		attribute.Int("lineage.ids", len(hypothesisIDs)),
	))
	defer span.End()
	defer r.metrics.ObserveSince("hypotheses_by_id", time.Now())

	var order []uuid.UUID
	var accounts []string
	byAccount := make(map[string][]request)
	seen := make(map[uuid.UUID]bool, len(hypothesisIDs))
	for _, id := range hypothesisIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
		key, ok, err := r.recoverKey(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Warn("unknown hypothesis id", "hypothesis", id)
			r.metrics.Skipped.WithLabelValues(metrics.ReasonUnknownIdentity).Inc()
			continue
		}
		if _, ok := byAccount[key.Account]; !ok {
			accounts = append(accounts, key.Account)
		}
		byAccount[key.Account] = append(byAccount[key.Account], request{id: id, key: key})
	}

	built := make(map[uuid.UUID]detection.Hypothesis, len(order))
	for _, account := range accounts {
		st, ok := r.registry.StageForAccount(account)
		if !ok {
			r.log.Warn("no stage for account", "account", account)
			r.metrics.Skipped.WithLabelValues(metrics.ReasonUnknownAccount).Add(float64(len(byAccount[account])))
			continue
		}
		reqs := byAccount[account]
		arids := make([]int64, 0, len(reqs))
		for _, req := range reqs {
			arids = append(arids, req.key.Arid)
		}
		v, err := r.loadView(ctx, st, arids)
		if err != nil {
			return nil, err
		}
		for _, req := range reqs {
			h, ok, err := r.buildRequested(ctx, v, req.key)
			if err != nil {
				return nil, err
			}
			if ok {
				built[req.id] = h
			}
		}
	}

	out := make([]detection.Hypothesis, 0, len(built))
	for _, id := range order {
		if h, ok := built[id]; ok {
			out = append(out, h)
		}
	}
	span.SetAttributes(attribute.Int("lineage.hypotheses", len(out)))
	return out, nil
}

// buildRequested builds exactly the hypothesis named by key, whatever the
// arrival decision would have been for a detection lookup.
func (r *Resolver) buildRequested(ctx context.Context, v *view, key detection.HypothesisKey) (detection.Hypothesis, bool, error) {
	a, ok := v.arrivals[key.Arid]
	if !ok {
		r.log.Debug("arrival not found at stage", "stage", v.stage.Name, "arid", key.Arid)
		return detection.Hypothesis{}, false, nil
	}
	switch key.Source {
	case detection.SourceArrival:
		c, _ := r.arrivalCandidate(v, a)
		return r.build(ctx, v, c)
	case detection.SourceAssoc:
		for _, as := range v.assocs[key.Arid] {
			if as.Key.Orid != key.Orid {
				continue
			}
			c, ok := r.assocCandidate(v, as)
			if !ok {
				return detection.Hypothesis{}, false, nil
			}
			return r.build(ctx, v, c)
		}
		r.log.Debug("association not found at stage", "stage", v.stage.Name, "hypothesis", key.String())
		return detection.Hypothesis{}, false, nil
	default:
		return detection.Hypothesis{}, false, fmt.Errorf("hypothesis key %s has no source", key)
	}
}
