package hetzner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(config.HetznerConfig{
		Token:      "hetzner-token",
		ServerType: "cx22",
		Location:   "nbg1",
		Image:      "centos-stream-9",
	}, "proxyfleet", "#cloud-config\n")
	c.baseURL = srv.URL
	return c
}

func TestCode(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	assert.Equal(t, models.ProviderHetzner, c.Code())
}

func TestCreateInstance(t *testing.T) {
	var gotPayload map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/servers", r.URL.Path)
		require.Equal(t, "Bearer hetzner-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"server": {"id": 77, "name": "abcdefgh", "status": "initializing"}}`)
	})

	c := newTestClient(t, handler)
	serverID, raw, err := c.CreateInstance(context.Background(), "abcdefgh")
	require.NoError(t, err)

	assert.Equal(t, int64(77), serverID)
	assert.Contains(t, string(raw), `"id": 77`)
	assert.Equal(t, "abcdefgh", gotPayload["name"])
	assert.Equal(t, "cx22", gotPayload["server_type"])
	assert.Equal(t, map[string]interface{}{
		"proxyfleet":       "",
		"proxyfleet/proxy": "",
	}, gotPayload["labels"])
	assert.Equal(t, map[string]interface{}{"enable_ipv6": false}, gotPayload["public_net"])
}

func TestGetInstanceRunning(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/servers/77", r.URL.Path)
		fmt.Fprint(w, `{"server": {"id": 77, "status": "running", "public_net": {"ipv4": {"ip": "198.51.100.9"}}}}`)
	})

	c := newTestClient(t, handler)
	status, err := c.GetInstance(context.Background(), 77)
	require.NoError(t, err)

	assert.True(t, status.Running)
	assert.Equal(t, "198.51.100.9", status.IPAddress)
}

func TestGetInstanceStarting(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"server": {"id": 77, "status": "starting", "public_net": {"ipv4": {"ip": ""}}}}`)
	})

	c := newTestClient(t, handler)
	status, err := c.GetInstance(context.Background(), 77)
	require.NoError(t, err)

	assert.False(t, status.Running)
	assert.Empty(t, status.IPAddress)
}

func TestListInstances(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "proxyfleet/proxy", r.URL.Query().Get("label_selector"))
		fmt.Fprint(w, `{"servers": [
			{"id": 77, "name": "abcdefgh", "status": "running", "created": "2024-03-01T12:00:00+00:00", "public_net": {"ipv4": {"ip": "198.51.100.9"}}},
			{"id": 78, "name": "ijklmnop", "status": "starting", "created": "2024-03-02T12:00:00+00:00", "public_net": {"ipv4": {"ip": ""}}}
		]}`)
	})

	c := newTestClient(t, handler)
	instances, err := c.ListInstances(context.Background())
	require.NoError(t, err)

	require.Len(t, instances, 2)
	assert.Equal(t, int64(77), instances[0].ServerID)
	assert.Equal(t, "198.51.100.9", instances[0].IPAddress)
	assert.Equal(t, 2024, instances[0].CreatedAt.Year())
	assert.Empty(t, instances[1].IPAddress)
}

func TestDeleteInstance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v1/servers/77", r.URL.Path)
		fmt.Fprint(w, `{"action": {"id": 1, "status": "success"}}`)
	})

	c := newTestClient(t, handler)
	require.NoError(t, c.DeleteInstance(context.Background(), 77))
}

func TestDeleteInstanceFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"action": {"id": 1, "status": "error"}}`)
	})

	c := newTestClient(t, handler)
	err := c.DeleteInstance(context.Background(), 77)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"error"`)
}
