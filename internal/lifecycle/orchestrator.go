package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/metrics"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/notify"
	"github.com/xelth-com/proxyfleet/internal/probe"
	"github.com/xelth-com/proxyfleet/internal/provider"
	"github.com/xelth-com/proxyfleet/internal/store"
)

var (
	// ErrQuotaExceeded is returned before any provider call when the
	// per-provider proxy limit is reached.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrNoServer is returned when an operation requires a provider
	// instance but the proxy never got one.
	ErrNoServer = errors.New("proxy has no provider instance")
)

// Orchestrator drives a single proxy through its lifecycle: provider create,
// readiness polling with health verification, and provider delete. It holds
// no proxy state between calls; every step is a read-modify-write against
// the store, so overlapping invocations converge.
type Orchestrator struct {
	store    store.ProxyStore
	registry *provider.Registry
	probe    probe.Verifier
	notifier notify.Notifier
	limits   map[models.Provider]int
	metrics  *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	st store.ProxyStore,
	registry *provider.Registry,
	verifier probe.Verifier,
	notifier notify.Notifier,
	providers config.ProvidersConfig,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		probe:    verifier,
		notifier: notifier,
		limits: map[models.Provider]int{
			models.ProviderDigitalOcean: providers.DigitalOcean.Limit,
			models.ProviderHetzner:      providers.Hetzner.Limit,
		},
		metrics: m,
	}
}

// CheckQuota rejects when the provider already holds its configured number
// of proxy rows, regardless of their status. exceptID excludes an already
// committed row from its own count.
func (o *Orchestrator) CheckQuota(ctx context.Context, p models.Provider, exceptID string) error {
	limit, ok := o.limits[p]
	if !ok {
		return fmt.Errorf("unknown provider %q", p)
	}

	count, err := o.store.CountByProvider(ctx, p, exceptID)
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		return fmt.Errorf("%w: can't create more than %d proxies for %s", ErrQuotaExceeded, limit, p)
	}
	return nil
}

// CreateServer issues the provider create call for a committed proxy row.
// On failure the error payload is recorded on the row and the row stays in
// its pending state; it is not retried here.
func (o *Orchestrator) CreateServer(ctx context.Context, proxy *models.Proxy) error {
	if err := o.CheckQuota(ctx, proxy.Provider, proxy.ID); err != nil {
		return err
	}

	client, err := o.registry.Get(proxy.Provider)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	proxy.CreateRequestAt = &now

	serverID, raw, err := client.CreateInstance(ctx, proxy.Name)
	if err != nil {
		log.Errorf("request error on creating instance %s: %v", proxy.Name, err)
		o.metrics.ProviderErrors.WithLabelValues(string(proxy.Provider), "create").Inc()
		proxy.CreateResponse = exceptionJSON(err)
		if saveErr := o.store.Save(ctx, proxy); saveErr != nil {
			return saveErr
		}
		return fmt.Errorf("create instance %s: %w", proxy.Name, err)
	}

	proxy.CreateResponse = datatypes.JSON(raw)
	proxy.ServerID = &serverID
	return o.store.Save(ctx, proxy)
}

// CheckServer polls the provider for the proxy's instance and, once it is
// running with an address, verifies health through the proxy itself. The
// result is persisted on the row; the returned bool mirrors the row's new
// active state.
func (o *Orchestrator) CheckServer(ctx context.Context, proxy *models.Proxy) (bool, error) {
	if proxy.ServerID == nil {
		return false, ErrNoServer
	}

	client, err := o.registry.Get(proxy.Provider)
	if err != nil {
		return false, err
	}

	log.Infof("checking instance %s status", proxy.Name)
	now := time.Now().UTC()
	proxy.LastCheckAt = &now

	status, err := client.GetInstance(ctx, *proxy.ServerID)
	if err != nil {
		log.Errorf("can't get instance %s status: %v", proxy.Name, err)
		o.metrics.ProviderErrors.WithLabelValues(string(proxy.Provider), "get").Inc()
		o.metrics.ChecksTotal.WithLabelValues(string(proxy.Provider), "error").Inc()
		proxy.LastCheckResponse = exceptionJSON(err)
		proxy.Active = false
		proxy.IPAddress = nil
		if saveErr := o.store.Save(ctx, proxy); saveErr != nil {
			return false, saveErr
		}
		return false, fmt.Errorf("get instance %s: %w", proxy.Name, err)
	}

	proxy.LastCheckResponse = datatypes.JSON(status.Raw)

	if !status.Running || status.IPAddress == "" {
		log.Warnf("instance %s is not ready", proxy.Name)
		o.metrics.ChecksTotal.WithLabelValues(string(proxy.Provider), "not_ready").Inc()
		proxy.Active = false
		proxy.IPAddress = nil
		return false, o.store.Save(ctx, proxy)
	}

	proxy.IPAddress = &status.IPAddress
	if err := o.store.Save(ctx, proxy); err != nil {
		return false, err
	}

	active := o.probe.Verify(ctx, status.IPAddress)
	if active {
		o.metrics.ChecksTotal.WithLabelValues(string(proxy.Provider), "active").Inc()
	} else {
		o.metrics.ProbeFailures.Inc()
		o.metrics.ChecksTotal.WithLabelValues(string(proxy.Provider), "unhealthy").Inc()
	}
	proxy.Active = active
	return active, o.store.Save(ctx, proxy)
}

// DeleteServer destroys the proxy's provider instance. Callers delete the
// local row first and commit, then trigger this; a provider failure here
// leaves an orphaned billable instance, so it is alerted for manual cleanup
// instead of resurrecting the row.
func (o *Orchestrator) DeleteServer(ctx context.Context, proxy *models.Proxy) error {
	if proxy.ServerID == nil {
		return ErrNoServer
	}

	client, err := o.registry.Get(proxy.Provider)
	if err != nil {
		return err
	}

	log.Infof("deleting instance %s", proxy.Name)
	if err := client.DeleteInstance(ctx, *proxy.ServerID); err != nil {
		o.metrics.ProviderErrors.WithLabelValues(string(proxy.Provider), "delete").Inc()
		o.notifier.DeleteFailed(proxy, err)
		return fmt.Errorf("delete instance %s: %w", proxy.Name, err)
	}

	log.Infof("instance %s deleted", proxy.Name)
	return nil
}

// exceptionJSON wraps an error for verbatim storage in a response column
func exceptionJSON(err error) datatypes.JSON {
	raw, _ := json.Marshal(map[string]string{"exception": err.Error()})
	return datatypes.JSON(raw)
}
