package store

import (
	"context"
	"errors"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ProxyStore is the query contract the lifecycle core runs against. Every
// lifecycle step re-reads and re-writes through it, so operations stay
// re-entrant; no proxy state is held in memory across calls.
type ProxyStore interface {
	Create(ctx context.Context, proxy *models.Proxy) error
	GetByID(ctx context.Context, id string) (*models.Proxy, error)
	// GetByServerID looks a proxy up by its provider natural key.
	GetByServerID(ctx context.Context, provider models.Provider, serverID int64) (*models.Proxy, error)
	List(ctx context.Context) ([]models.Proxy, error)
	ListActive(ctx context.Context) ([]models.Proxy, error)
	// ListWithServerID returns every proxy that has a provider instance.
	ListWithServerID(ctx context.Context) ([]models.Proxy, error)
	// ListUntriggered returns rows committed before the create call was ever
	// issued (no create_request_at), so a crashed trigger can be retried.
	ListUntriggered(ctx context.Context) ([]models.Proxy, error)
	// CountByProvider counts rows for a provider regardless of status,
	// excluding exceptID when non-empty.
	CountByProvider(ctx context.Context, provider models.Provider, exceptID string) (int64, error)
	Save(ctx context.Context, proxy *models.Proxy) error
	Delete(ctx context.Context, id string) error
	// MarkAllRemoved tentatively flags every row of a provider for removal
	// at the start of a reconciliation pass.
	MarkAllRemoved(ctx context.Context, provider models.Provider) error
	// DeleteRemoved drops every row of a provider still flagged removed.
	DeleteRemoved(ctx context.Context, provider models.Provider) (int64, error)
}

// ClientStore is the query contract for consumer identities
type ClientStore interface {
	GetOrCreateByName(ctx context.Context, name string) (*models.Client, error)
	AddBlacklist(ctx context.Context, client *models.Client, proxy *models.Proxy) error
	BlacklistedIDs(ctx context.Context, client *models.Client) ([]string, error)
	// IsDefaultForAnyClient reports whether the proxy is protected from
	// deletion by being some client's default.
	IsDefaultForAnyClient(ctx context.Context, proxyID string) (bool, error)
}

// UserStore is the query contract for operator accounts
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.UserAuth, error)
	Save(ctx context.Context, user *models.UserAuth) error
}
