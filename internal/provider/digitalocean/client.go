package digitalocean

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

const defaultAPIURL = "https://api.digitalocean.com"

// perPage is the listing page size
const perPage = 50

// Client implements provider.Client for DigitalOcean droplets
type Client struct {
	cfg      config.DigitalOceanConfig
	project  string
	userData string
	baseURL  string
	http     *http.Client
}

// New creates a DigitalOcean adapter. project is used to derive the droplet
// tags and userData is the shared cloud-init payload.
func New(cfg config.DigitalOceanConfig, project, userData string) *Client {
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
	return models.ProviderDigitalOcean
}

// tag is the droplet tag identifying proxies managed by this system
func (c *Client) tag() string {
	return c.project + ":proxy"
}

type dropletNetworks struct {
	V4 []struct {
		IPAddress string `json:"ip_address"`
		Type      string `json:"type"`
	} `json:"v4"`
}

type droplet struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Networks  dropletNetworks `json:"networks"`
}

// publicIP returns the first public IPv4 address or the empty string
func (d *droplet) publicIP() string {
	for _, ip := range d.Networks.V4 {
		if ip.Type == "public" && ip.IPAddress != "" {
			return ip.IPAddress
		}
	}
	return ""
}

// CreateInstance submits a new droplet
func (c *Client) CreateInstance(ctx context.Context, name string) (int64, json.RawMessage, error) {
	log.Infof("creating droplet %s", name)

	payload := map[string]interface{}{
		"name":       name,
		"region":     c.cfg.Region,
		"size":       c.cfg.Size,
		"image":      c.cfg.Image,
		"ssh_keys":   []string{},
		"backups":    false,
		"ipv6":       false,
		"monitoring": false,
		"tags":       []string{c.project, c.tag()},
		"user_data":  c.userData,
	}

	raw, err := c.do(ctx, http.MethodPost, "/v2/droplets", nil, payload)
	if err != nil {
		return 0, nil, err
	}

	var created struct {
		Droplet droplet `json:"droplet"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return 0, raw, fmt.Errorf("unexpected droplet create response: %w", err)
	}

	log.Infof("droplet %s created with id %d", name, created.Droplet.ID)
	c.moveToProject(ctx, created.Droplet.ID)

	return created.Droplet.ID, raw, nil
}

// moveToProject assigns the droplet to the configured project. Failure only
// affects console grouping, so it is logged and ignored.
func (c *Client) moveToProject(ctx context.Context, serverID int64) {
	if c.cfg.ProjectID == "" {
		return
	}

	payload := map[string]interface{}{
		"resources": []string{fmt.Sprintf("do:droplet:%d", serverID)},
	}
	path := fmt.Sprintf("/v2/projects/%s/resources", c.cfg.ProjectID)
	if _, err := c.do(ctx, http.MethodPost, path, nil, payload); err != nil {
		log.Warnf("can't move droplet %d to project: %v", serverID, err)
	}
}

// GetInstance returns the droplet's running state and public address
func (c *Client) GetInstance(ctx context.Context, serverID int64) (*provider.InstanceStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/v2/droplets/%d", serverID), nil, nil)
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
		Droplet droplet `json:"droplet"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		return status, nil
	}

	if got.Droplet.Status == "active" {
		status.Running = true
		status.IPAddress = got.Droplet.publicIP()
	}
	return status, nil
}

// ListInstances collects all droplets carrying the proxy tag
func (c *Client) ListInstances(ctx context.Context) ([]provider.InstanceSummary, error) {
	var out []provider.InstanceSummary

	for page := 1; ; page++ {
		params := url.Values{
			"tag_name": {c.tag()},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		raw, err := c.do(ctx, http.MethodGet, "/v2/droplets", params, nil)
		if err != nil {
			return nil, err
		}

		var listing struct {
			Droplets []droplet `json:"droplets"`
		}
		if err := json.Unmarshal(raw, &listing); err != nil {
			return nil, fmt.Errorf("unexpected droplet listing response: %w", err)
		}

		for _, d := range listing.Droplets {
			out = append(out, provider.InstanceSummary{
				ServerID:  d.ID,
				Name:      d.Name,
				IPAddress: d.publicIP(),
				CreatedAt: d.CreatedAt,
			})
		}

		if len(listing.Droplets) < perPage {
			return out, nil
		}
	}
}

// DeleteInstance destroys a droplet; anything but HTTP 204 is a failure
func (c *Client) DeleteInstance(ctx context.Context, serverID int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/v2/droplets/%d", serverID), nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete droplet %d: status %d: %s", serverID, resp.StatusCode, body)
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
