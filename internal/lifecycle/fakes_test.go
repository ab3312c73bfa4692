package lifecycle

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/metrics"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/provider"
	"github.com/xelth-com/proxyfleet/internal/store"
)

// fakeClient is a scriptable provider.Client
type fakeClient struct {
	mu   sync.Mutex
	code models.Provider

	createID  int64
	createErr error
	status    *provider.InstanceStatus
	getErr    error
	instances []provider.InstanceSummary
	listErr   error
	deleteErr error

	createCalls int
	getCalls    int
	listCalls   int
	deleteCalls int
}

func (f *fakeClient) Code() models.Provider { return f.code }

func (f *fakeClient) CreateInstance(ctx context.Context, name string) (int64, json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return 0, nil, f.createErr
	}
	return f.createID, json.RawMessage(`{"fake": "created"}`), nil
}

func (f *fakeClient) GetInstance(ctx context.Context, serverID int64) (*provider.InstanceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.status == nil {
		return &provider.InstanceStatus{Raw: json.RawMessage(`{}`)}, nil
	}
	return f.status, nil
}

func (f *fakeClient) ListInstances(ctx context.Context) ([]provider.InstanceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.instances, nil
}

func (f *fakeClient) DeleteInstance(ctx context.Context, serverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

// fakeProbe reports a fixed health result and records probed IPs
type fakeProbe struct {
	mu     sync.Mutex
	result bool
	probed []string
}

func (f *fakeProbe) Verify(ctx context.Context, ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, ip)
	return f.result
}

// fakeNotifier records raised alerts
type fakeNotifier struct {
	mu           sync.Mutex
	stuck        []string
	deleteFailed []string
}

func (f *fakeNotifier) StuckProvisioning(proxy *models.Proxy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuck = append(f.stuck, proxy.Name)
}

func (f *fakeNotifier) DeleteFailed(proxy *models.Proxy, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFailed = append(f.deleteFailed, proxy.Name)
}

// testLimits mirrors the default per-provider quotas
var testLimits = config.ProvidersConfig{
	DigitalOcean: config.DigitalOceanConfig{Limit: 30},
	Hetzner:      config.HetznerConfig{Limit: 5},
}

func newRegistry(clients ...provider.Client) *provider.Registry {
	registry := provider.NewRegistry()
	for _, c := range clients {
		if err := registry.Register(c); err != nil {
			panic(err)
		}
	}
	return registry
}

func newOrchestrator(st store.ProxyStore, limits config.ProvidersConfig, pr *fakeProbe, n *fakeNotifier, clients ...provider.Client) *Orchestrator {
	return NewOrchestrator(st, newRegistry(clients...), pr, n, limits, metrics.NewUnregistered())
}

func int64p(v int64) *int64 { return &v }
func strp(s string) *string { return &s }
