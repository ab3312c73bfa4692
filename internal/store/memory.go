package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// MemoryProxyStore is an in-memory ProxyStore used by tests and local runs
// without a database. It applies the same last-writer-wins semantics as the
// SQL implementation.
type MemoryProxyStore struct {
	mu      sync.RWMutex
	proxies map[string]models.Proxy
}

// NewMemoryProxyStore creates an empty MemoryProxyStore
func NewMemoryProxyStore() *MemoryProxyStore {
	return &MemoryProxyStore{proxies: make(map[string]models.Proxy)}
}

func (s *MemoryProxyStore) Create(ctx context.Context, proxy *models.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proxy.ID == "" {
		proxy.ID = uuid.NewString()
	}
	if proxy.CreatedAt.IsZero() {
		proxy.CreatedAt = time.Now().UTC()
		proxy.UpdatedAt = proxy.CreatedAt
	}
	if proxy.Name == "" {
	retry:
		for {
			proxy.Name = models.RandomProxyName()
			for _, p := range s.proxies {
				if p.Name == proxy.Name {
					continue retry
				}
			}
			break
		}
	} else {
		for _, p := range s.proxies {
			if p.Name == proxy.Name {
				return fmt.Errorf("proxy name %q already exists", proxy.Name)
			}
		}
	}
	s.proxies[proxy.ID] = *proxy
	return nil
}

func (s *MemoryProxyStore) GetByID(ctx context.Context, id string) (*models.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proxies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryProxyStore) GetByServerID(ctx context.Context, provider models.Provider, serverID int64) (*models.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.proxies {
		if p.Provider == provider && p.ServerID != nil && *p.ServerID == serverID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryProxyStore) List(ctx context.Context) ([]models.Proxy, error) {
	return s.filter(func(models.Proxy) bool { return true }), nil
}

func (s *MemoryProxyStore) ListActive(ctx context.Context) ([]models.Proxy, error) {
	return s.filter(func(p models.Proxy) bool { return p.Active }), nil
}

func (s *MemoryProxyStore) ListWithServerID(ctx context.Context) ([]models.Proxy, error) {
	return s.filter(func(p models.Proxy) bool { return p.ServerID != nil }), nil
}

func (s *MemoryProxyStore) ListUntriggered(ctx context.Context) ([]models.Proxy, error) {
	return s.filter(func(p models.Proxy) bool { return p.CreateRequestAt == nil }), nil
}

func (s *MemoryProxyStore) CountByProvider(ctx context.Context, provider models.Provider, exceptID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, p := range s.proxies {
		if p.Provider == provider && p.ID != exceptID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryProxyStore) Save(ctx context.Context, proxy *models.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.proxies[proxy.ID] = *proxy
	return nil
}

func (s *MemoryProxyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.proxies, id)
	return nil
}

func (s *MemoryProxyStore) MarkAllRemoved(ctx context.Context, provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.proxies {
		if p.Provider == provider {
			p.IsRemoved = true
			s.proxies[id] = p
		}
	}
	return nil
}

func (s *MemoryProxyStore) DeleteRemoved(ctx context.Context, provider models.Provider) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, p := range s.proxies {
		if p.Provider == provider && p.IsRemoved {
			delete(s.proxies, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryProxyStore) filter(keep func(models.Proxy) bool) []models.Proxy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Proxy
	for _, p := range s.proxies {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MemoryClientStore is an in-memory ClientStore
type MemoryClientStore struct {
	mu        sync.RWMutex
	clients   map[string]models.Client
	blacklist map[string]map[string]bool // client id -> proxy ids
}

// NewMemoryClientStore creates an empty MemoryClientStore
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{
		clients:   make(map[string]models.Client),
		blacklist: make(map[string]map[string]bool),
	}
}

func (s *MemoryClientStore) GetOrCreateByName(ctx context.Context, name string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.Name == name {
			c := c
			return &c, nil
		}
	}
	client := models.Client{ID: uuid.NewString(), Name: name}
	s.clients[client.ID] = client
	return &client, nil
}

// SetDefault marks a proxy as a client's default; test helper mirroring what
// the admin surface does in production.
func (s *MemoryClientStore) SetDefault(client *models.Client, proxyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.clients[client.ID]
	c.DefaultProxyID = &proxyID
	s.clients[client.ID] = c
	client.DefaultProxyID = &proxyID
}

func (s *MemoryClientStore) AddBlacklist(ctx context.Context, client *models.Client, proxy *models.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blacklist[client.ID] == nil {
		s.blacklist[client.ID] = make(map[string]bool)
	}
	s.blacklist[client.ID][proxy.ID] = true
	return nil
}

func (s *MemoryClientStore) BlacklistedIDs(ctx context.Context, client *models.Client) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id := range s.blacklist[client.ID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryClientStore) IsDefaultForAnyClient(ctx context.Context, proxyID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.DefaultProxyID != nil && *c.DefaultProxyID == proxyID {
			return true, nil
		}
	}
	return false, nil
}

// MemoryUserStore is an in-memory UserStore
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.UserAuth
}

// NewMemoryUserStore creates an empty MemoryUserStore
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.UserAuth)}
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*models.UserAuth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUserStore) Save(ctx context.Context, user *models.UserAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = *user
	return nil
}
