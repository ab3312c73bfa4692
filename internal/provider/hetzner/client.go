package hetzner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/provider"
)

const defaultAPIURL = "https://api.hetzner.cloud"

const perPage = 50

// Client implements provider.Client for Hetzner Cloud servers
type Client struct {
	cfg      config.HetznerConfig
	project  string
	userData string
	baseURL  string
	http     *http.Client
}

// New creates a Hetzner adapter. project is used to derive the server labels
// and userData is the shared cloud-init payload.
func New(cfg config.HetznerConfig, project, userData string) *Client {
	return &Client{
		cfg:      cfg,
		project:  project,
		userData: userData,
		baseURL:  defaultAPIURL,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Code returns the provider this adapter serves
func (c *Client) Code() models.Provider {
	return models.ProviderHetzner
}

// label is the selector identifying proxies managed by this system
func (c *Client) label() string {
	return c.project + "/proxy"
}

type server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Created   time.Time `json:"created"`
	PublicNet struct {
		IPv4 struct {
			IP string `json:"ip"`
		} `json:"ipv4"`
	} `json:"public_net"`
}

// CreateInstance submits a new server
func (c *Client) CreateInstance(ctx context.Context, name string) (int64, json.RawMessage, error) {
	log.Infof("creating Hetzner server %s", name)

	payload := map[string]interface{}{
		"image":       c.cfg.Image,
		"name":        name,
		"server_type": c.cfg.ServerType,
		"location":    c.cfg.Location,
		"user_data":   c.userData,
		"labels": map[string]string{
			c.project: "",
			c.label(): "",
		},
		"public_net": map[string]interface{}{
			"enable_ipv6": false,
		},
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/servers", nil, payload)
	if err != nil {
		return 0, nil, err
	}

	var created struct {
		Server server `json:"server"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return 0, raw, fmt.Errorf("unexpected server create response: %w", err)
	}

	log.Infof("server %s created with id %d", name, created.Server.ID)
	return created.Server.ID, raw, nil
}

// GetInstance returns the server's running state and public address
func (c *Client) GetInstance(ctx context.Context, serverID int64) (*provider.InstanceStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/servers/%d", serverID), nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	status := &provider.InstanceStatus{Raw: raw}
	if resp.StatusCode != http.StatusOK {
		return status, nil
	}

	var got struct {
		Server server `json:"server"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		return status, nil
	}

	if got.Server.Status == "running" {
		status.Running = true
		status.IPAddress = got.Server.PublicNet.IPv4.IP
	}
	return status, nil
}

// ListInstances collects all servers carrying the proxy label
func (c *Client) ListInstances(ctx context.Context) ([]provider.InstanceSummary, error) {
	var out []provider.InstanceSummary

	for page := 1; ; page++ {
		params := url.Values{
			"label_selector": {c.label()},
			"per_page":       {strconv.Itoa(perPage)},
			"page":           {strconv.Itoa(page)},
		}
		raw, err := c.do(ctx, http.MethodGet, "/v1/servers", params, nil)
		if err != nil {
			return nil, err
		}

		var listing struct {
			Servers []server `json:"servers"`
		}
		if err := json.Unmarshal(raw, &listing); err != nil {
			return nil, fmt.Errorf("unexpected server listing response: %w", err)
		}

		for _, s := range listing.Servers {
			out = append(out, provider.InstanceSummary{
				ServerID:  s.ID,
				Name:      s.Name,
				IPAddress: s.PublicNet.IPv4.IP,
				CreatedAt: s.Created,
			})
		}

		if len(listing.Servers) < perPage {
			return out, nil
		}
	}
}

// DeleteInstance destroys a server. Hetzner reports the outcome through a
// nested action object rather than the status code.
func (c *Client) DeleteInstance(ctx context.Context, serverID int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/servers/%d", serverID), nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		Action struct {
			Status string `json:"status"`
		} `json:"action"`
	}
	if err := json.Unmarshal(raw, &result); err != nil || result.Action.Status != "success" {
		return fmt.Errorf("delete server %d: status %d: %s", serverID, resp.StatusCode, raw)
	}
	return nil
}

// do issues an authenticated request and returns the body on any 2xx status
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload interface{}) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, params, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, payload interface{}) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
