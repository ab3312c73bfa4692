package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/metrics"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/probe"
	"github.com/xelth-com/proxyfleet/internal/provider"
	"github.com/xelth-com/proxyfleet/internal/store"
)

// Reconciler merges provider-reported truth into the record store. Instances
// unknown locally become rows, rows absent upstream are removed. Both
// providers are keyed by (provider, server id) and processed independently.
type Reconciler struct {
	store    store.ProxyStore
	registry *provider.Registry
	probe    probe.Verifier
	metrics  *metrics.Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(st store.ProxyStore, registry *provider.Registry, verifier probe.Verifier, m *metrics.Metrics) *Reconciler {
	return &Reconciler{store: st, registry: registry, probe: verifier, metrics: m}
}

// SyncAll reconciles every registered provider. A failure in one provider is
// logged and never blocks the others.
func (r *Reconciler) SyncAll(ctx context.Context) {
	for _, code := range r.registry.Codes() {
		if err := r.SyncProvider(ctx, code); err != nil {
			log.Errorf("error on updating proxies from %s: %v", code, err)
		}
	}
}

// SyncProvider reconciles one provider. A listing failure aborts the pass
// before any local row is touched, so provider downtime never wipes records.
func (r *Reconciler) SyncProvider(ctx context.Context, code models.Provider) error {
	client, err := r.registry.Get(code)
	if err != nil {
		return err
	}

	log.Infof("getting existing %s proxies", code)
	instances, err := client.ListInstances(ctx)
	if err != nil {
		r.metrics.ProviderErrors.WithLabelValues(string(code), "list").Inc()
		r.metrics.ReconcileRuns.WithLabelValues(string(code), "error").Inc()
		return fmt.Errorf("list %s instances: %w", code, err)
	}
	log.Infof("found %d existing %s proxies", len(instances), code)

	// Tentatively flag everything; upserts below clear the flag for rows
	// that still exist upstream.
	if err := r.store.MarkAllRemoved(ctx, code); err != nil {
		return err
	}

	for _, inst := range instances {
		if err := r.upsert(ctx, code, inst); err != nil {
			log.Errorf("can't reconcile %s instance %s: %v", code, inst.Name, err)
		}
	}

	deleted, err := r.store.DeleteRemoved(ctx, code)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Infof("removed %d %s proxies no longer present upstream", deleted, code)
	}

	r.metrics.ReconcileRuns.WithLabelValues(string(code), "ok").Inc()
	return nil
}

// upsert folds one remote instance into the store. Brand-new rows get an
// immediate health probe so they become usable without waiting for a sweep.
func (r *Reconciler) upsert(ctx context.Context, code models.Provider, inst provider.InstanceSummary) error {
	createdAt := inst.CreatedAt.UTC()

	existing, err := r.store.GetByServerID(ctx, code, inst.ServerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if existing != nil {
		existing.Name = inst.Name
		existing.IPAddress = optional(inst.IPAddress)
		existing.CreateRequestAt = &createdAt
		existing.IsRemoved = false
		return r.store.Save(ctx, existing)
	}

	log.Infof("found new proxy %s", inst.Name)
	serverID := inst.ServerID
	proxy := &models.Proxy{
		Name:            inst.Name,
		Provider:        code,
		ServerID:        &serverID,
		IPAddress:       optional(inst.IPAddress),
		CreateRequestAt: &createdAt,
	}
	if err := r.store.Create(ctx, proxy); err != nil {
		return err
	}

	now := time.Now().UTC()
	proxy.LastCheckAt = &now
	if inst.IPAddress != "" {
		proxy.Active = r.probe.Verify(ctx, inst.IPAddress)
		if !proxy.Active {
			r.metrics.ProbeFailures.Inc()
		}
	}
	return r.store.Save(ctx, proxy)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
