package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/provider"
	"github.com/xelth-com/proxyfleet/internal/store"
)

func TestCreateServerQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	limits := config.ProvidersConfig{
		DigitalOcean: config.DigitalOceanConfig{Limit: 2},
		Hetzner:      config.HetznerConfig{Limit: 5},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, st.Create(ctx, &models.Proxy{Provider: models.ProviderDigitalOcean}))
	}
	// the row about to be triggered is already committed
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean}
	orch := newOrchestrator(st, limits, &fakeProbe{}, &fakeNotifier{}, client)

	err := orch.CreateServer(ctx, proxy)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Zero(t, client.createCalls, "quota rejection must not reach the provider")
}

func TestCreateServerQuotaExcludesOwnRow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	limits := config.ProvidersConfig{
		DigitalOcean: config.DigitalOceanConfig{Limit: 1},
		Hetzner:      config.HetznerConfig{Limit: 5},
	}

	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean, createID: 42}
	orch := newOrchestrator(st, limits, &fakeProbe{}, &fakeNotifier{}, client)

	// the only committed row is this one, so the limit of 1 is not exceeded
	require.NoError(t, orch.CreateServer(ctx, proxy))
	assert.Equal(t, 1, client.createCalls)
}

func TestCreateServerSuccess(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderHetzner}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderHetzner, createID: 77}
	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, client)

	require.NoError(t, orch.CreateServer(ctx, proxy))

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ServerID)
	assert.Equal(t, int64(77), *stored.ServerID)
	assert.NotNil(t, stored.CreateRequestAt)
	assert.JSONEq(t, `{"fake": "created"}`, string(stored.CreateResponse))
}

func TestCreateServerProviderFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean, createErr: errors.New("boom")}
	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, client)

	require.Error(t, orch.CreateServer(ctx, proxy))

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ServerID)
	assert.NotNil(t, stored.CreateRequestAt, "a failed attempt is still recorded")

	var payload map[string]string
	require.NoError(t, json.Unmarshal(stored.CreateResponse, &payload))
	assert.Contains(t, payload["exception"], "boom")
}

func TestCheckServerRequiresServerID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, &fakeClient{code: models.ProviderDigitalOcean})

	_, err := orch.CheckServer(ctx, proxy)
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestCheckServerTransportFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{
		Provider:  models.ProviderDigitalOcean,
		ServerID:  int64p(42),
		IPAddress: strp("203.0.113.7"),
		Active:    true,
	}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean, getErr: errors.New("connection refused")}
	orch := newOrchestrator(st, testLimits, &fakeProbe{result: true}, &fakeNotifier{}, client)

	active, err := orch.CheckServer(ctx, proxy)
	require.Error(t, err)
	assert.False(t, active)

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Nil(t, stored.IPAddress)
	assert.NotNil(t, stored.LastCheckAt)
	assert.Contains(t, string(stored.LastCheckResponse), "connection refused")
}

func TestCheckServerNotReady(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean, ServerID: int64p(42)}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{
		code:   models.ProviderDigitalOcean,
		status: &provider.InstanceStatus{Running: false, Raw: json.RawMessage(`{"droplet": {"status": "new"}}`)},
	}
	probe := &fakeProbe{result: true}
	orch := newOrchestrator(st, testLimits, probe, &fakeNotifier{}, client)

	active, err := orch.CheckServer(ctx, proxy)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Empty(t, probe.probed, "no probe before the instance has an address")

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Nil(t, stored.IPAddress)
}

func TestCheckServerBecomesActive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderHetzner, ServerID: int64p(77)}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{
		code:   models.ProviderHetzner,
		status: &provider.InstanceStatus{Running: true, IPAddress: "198.51.100.9", Raw: json.RawMessage(`{}`)},
	}
	probe := &fakeProbe{result: true}
	orch := newOrchestrator(st, testLimits, probe, &fakeNotifier{}, client)

	active, err := orch.CheckServer(ctx, proxy)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, []string{"198.51.100.9"}, probe.probed)

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "198.51.100.9", *stored.IPAddress)
}

func TestCheckServerProbeFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderHetzner, ServerID: int64p(77)}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{
		code:   models.ProviderHetzner,
		status: &provider.InstanceStatus{Running: true, IPAddress: "198.51.100.9", Raw: json.RawMessage(`{}`)},
	}
	orch := newOrchestrator(st, testLimits, &fakeProbe{result: false}, &fakeNotifier{}, client)

	active, err := orch.CheckServer(ctx, proxy)
	require.NoError(t, err)
	assert.False(t, active)

	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestCheckServerIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean, ServerID: int64p(42)}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{
		code:   models.ProviderDigitalOcean,
		status: &provider.InstanceStatus{Running: true, IPAddress: "203.0.113.7", Raw: json.RawMessage(`{}`)},
	}
	orch := newOrchestrator(st, testLimits, &fakeProbe{result: true}, &fakeNotifier{}, client)

	first, err := orch.CheckServer(ctx, proxy)
	require.NoError(t, err)

	reread, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	second, err := orch.CheckServer(ctx, reread)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := st.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, "203.0.113.7", *stored.IPAddress)
}

func TestDeleteServer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean, ServerID: int64p(42), Name: "abcdefgh"}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean}
	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, client)

	require.NoError(t, orch.DeleteServer(ctx, proxy))
	assert.Equal(t, 1, client.deleteCalls)
}

func TestDeleteServerProviderFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean, ServerID: int64p(42), Name: "abcdefgh"}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean, deleteErr: errors.New("locked")}
	notifier := &fakeNotifier{}
	orch := newOrchestrator(st, testLimits, &fakeProbe{}, notifier, client)

	require.Error(t, orch.DeleteServer(ctx, proxy))
	assert.Equal(t, []string{"abcdefgh"}, notifier.deleteFailed)
}

func TestEndToEndLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	client := &fakeClient{code: models.ProviderDigitalOcean, createID: 42}
	probe := &fakeProbe{result: true}
	orch := newOrchestrator(st, testLimits, probe, &fakeNotifier{}, client)

	// create
	require.NoError(t, orch.CreateServer(ctx, proxy))
	require.NotNil(t, proxy.ServerID)
	assert.Equal(t, int64(42), *proxy.ServerID)

	// first check: still provisioning
	client.status = &provider.InstanceStatus{Running: false, Raw: json.RawMessage(`{}`)}
	active, err := orch.CheckServer(ctx, proxy)
	require.NoError(t, err)
	assert.False(t, active)

	// second check: running with an address
	client.status = &provider.InstanceStatus{Running: true, IPAddress: "203.0.113.7", Raw: json.RawMessage(`{}`)}
	active, err = orch.CheckServer(ctx, proxy)
	require.NoError(t, err)
	assert.True(t, active)

	// delete: row first, then the provider trigger
	require.NoError(t, st.Delete(ctx, proxy.ID))
	require.NoError(t, orch.DeleteServer(ctx, proxy))
	assert.Equal(t, 1, client.deleteCalls)

	_, err = st.GetByID(ctx, proxy.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckQuotaUnknownProvider(t *testing.T) {
	st := store.NewMemoryProxyStore()
	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, &fakeClient{code: models.ProviderDigitalOcean})

	err := orch.CheckQuota(context.Background(), models.Provider("aws"), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestQuotaAtBoundary(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	limits := config.ProvidersConfig{
		DigitalOcean: config.DigitalOceanConfig{Limit: 30},
		Hetzner:      config.HetznerConfig{Limit: 5},
	}
	orch := newOrchestrator(st, limits, &fakeProbe{}, &fakeNotifier{}, &fakeClient{code: models.ProviderHetzner})

	for i := 0; i < 5; i++ {
		require.NoError(t, orch.CheckQuota(ctx, models.ProviderHetzner, ""))
		require.NoError(t, st.Create(ctx, &models.Proxy{Provider: models.ProviderHetzner}))
	}
	err := orch.CheckQuota(ctx, models.ProviderHetzner, "")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// the other provider is unaffected
	assert.NoError(t, orch.CheckQuota(ctx, models.ProviderDigitalOcean, ""))
}

func TestCreateRequestTimestampIsUTC(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryProxyStore()
	proxy := &models.Proxy{Provider: models.ProviderDigitalOcean}
	require.NoError(t, st.Create(ctx, proxy))

	orch := newOrchestrator(st, testLimits, &fakeProbe{}, &fakeNotifier{}, &fakeClient{code: models.ProviderDigitalOcean, createID: 1})
	require.NoError(t, orch.CreateServer(ctx, proxy))

	require.NotNil(t, proxy.CreateRequestAt)
	assert.WithinDuration(t, time.Now().UTC(), *proxy.CreateRequestAt, time.Minute)
}
