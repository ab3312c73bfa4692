package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/config"
)

// Verifier checks that a candidate proxy routes traffic with the expected
// egress IP. Implementations never fail past this boundary; any transport
// problem is simply an unhealthy proxy.
type Verifier interface {
	Verify(ctx context.Context, ip string) bool
}

// HTTPProbe verifies a proxy by POSTing through it to an echo endpoint and
// comparing the echoed origin against the proxy's assigned address.
type HTTPProbe struct {
	cfg config.ProxyConfig
}

// New creates an HTTPProbe
func New(cfg config.ProxyConfig) *HTTPProbe {
	return &HTTPProbe{cfg: cfg}
}

// Verify returns true iff the echo call through ip succeeds and reports ip
// as its origin.
func (p *HTTPProbe) Verify(ctx context.Context, ip string) bool {
	proxyURL := &url.URL{
		Scheme: "http",
		User:   url.UserPassword(p.cfg.Login, p.cfg.Password),
		Host:   fmt.Sprintf("%s:%d", ip, p.cfg.Port),
	}

	client := &http.Client{
		Timeout: p.cfg.ProbeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.EchoURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Warnf("can't reach echo endpoint through proxy %s: %v", ip, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warnf("echo endpoint returned status %d through proxy %s", resp.StatusCode, ip)
		return false
	}

	var echo struct {
		Origin string `json:"origin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&echo); err != nil {
		return false
	}

	if echo.Origin != ip {
		log.Warnf("proxy %s egress mismatch: echoed origin %s", ip, echo.Origin)
		return false
	}
	return true
}
