package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// InstanceStatus is the translated result of a single-instance lookup.
// Raw carries the provider's response verbatim for diagnostics; it is stored,
// never parsed outside the adapter.
type InstanceStatus struct {
	Running   bool
	IPAddress string
	Raw       json.RawMessage
}

// InstanceSummary is one instance from a provider listing
type InstanceSummary struct {
	ServerID  int64
	Name      string
	IPAddress string
	CreatedAt time.Time
}

// Client is the capability contract every cloud provider adapter implements.
// Request and response shapes are provider-specific and translated here;
// nothing outside this layer branches on provider type.
type Client interface {
	// Code returns the provider this adapter serves
	Code() models.Provider

	// CreateInstance submits a new proxy VM with the shared cloud-init
	// payload and returns the provider-assigned id plus the raw response.
	CreateInstance(ctx context.Context, name string) (int64, json.RawMessage, error)

	// GetInstance returns running state and, if running, the first public
	// IPv4 address the provider reports.
	GetInstance(ctx context.Context, serverID int64) (*InstanceStatus, error)

	// ListInstances collects the full set of instances tagged for this
	// system, following pagination before returning.
	ListInstances(ctx context.Context) ([]InstanceSummary, error)

	// DeleteInstance destroys an instance. Success criteria are
	// provider-specific; any other outcome is an error.
	DeleteInstance(ctx context.Context, serverID int64) error
}
