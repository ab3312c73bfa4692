package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// GormProxyStore is the PostgreSQL-backed ProxyStore
type GormProxyStore struct {
	db *gorm.DB
}

// NewGormProxyStore creates a GormProxyStore
func NewGormProxyStore(db *gorm.DB) *GormProxyStore {
	return &GormProxyStore{db: db}
}

// Create inserts a new proxy row. When no name is set, a random unique one
// is assigned, retrying on collision.
func (s *GormProxyStore) Create(ctx context.Context, proxy *models.Proxy) error {
	return insertWithRandomName(proxy, func(p *models.Proxy) error {
		return s.db.WithContext(ctx).Create(p).Error
	})
}

// insertWithRandomName assigns random names until insert stops reporting a
// duplicate key. Requires gorm's TranslateError so the driver's
// unique-violation surfaces as gorm.ErrDuplicatedKey.
func insertWithRandomName(proxy *models.Proxy, insert func(*models.Proxy) error) error {
	if proxy.Name != "" {
		return insert(proxy)
	}
	for i := 0; i < 10; i++ {
		proxy.Name = models.RandomProxyName()
		err := insert(proxy)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return fmt.Errorf("could not generate a unique proxy name")
}

func (s *GormProxyStore) GetByID(ctx context.Context, id string) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := s.db.WithContext(ctx).First(&proxy, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &proxy, nil
}

func (s *GormProxyStore) GetByServerID(ctx context.Context, provider models.Provider, serverID int64) (*models.Proxy, error) {
	var proxy models.Proxy
	err := s.db.WithContext(ctx).
		Where("provider = ? AND server_id = ?", provider, serverID).
		First(&proxy).Error
	if err != nil {
		return nil, translate(err)
	}
	return &proxy, nil
}

func (s *GormProxyStore) List(ctx context.Context) ([]models.Proxy, error) {
	var proxies []models.Proxy
	err := s.db.WithContext(ctx).Order("name").Find(&proxies).Error
	return proxies, err
}

func (s *GormProxyStore) ListActive(ctx context.Context) ([]models.Proxy, error) {
	var proxies []models.Proxy
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&proxies).Error
	return proxies, err
}

func (s *GormProxyStore) ListWithServerID(ctx context.Context) ([]models.Proxy, error) {
	var proxies []models.Proxy
	err := s.db.WithContext(ctx).Where("server_id IS NOT NULL").Order("name").Find(&proxies).Error
	return proxies, err
}

func (s *GormProxyStore) ListUntriggered(ctx context.Context) ([]models.Proxy, error) {
	var proxies []models.Proxy
	err := s.db.WithContext(ctx).Where("create_request_at IS NULL").Order("name").Find(&proxies).Error
	return proxies, err
}

func (s *GormProxyStore) CountByProvider(ctx context.Context, provider models.Provider, exceptID string) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.Proxy{}).Where("provider = ?", provider)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&count).Error
	return count, err
}

func (s *GormProxyStore) Save(ctx context.Context, proxy *models.Proxy) error {
	return s.db.WithContext(ctx).Save(proxy).Error
}

func (s *GormProxyStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.Proxy{}, "id = ?", id).Error
}

func (s *GormProxyStore) MarkAllRemoved(ctx context.Context, provider models.Provider) error {
	return s.db.WithContext(ctx).Model(&models.Proxy{}).
		Where("provider = ?", provider).
		Update("is_removed", true).Error
}

func (s *GormProxyStore) DeleteRemoved(ctx context.Context, provider models.Provider) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("provider = ? AND is_removed = ?", provider, true).
		Delete(&models.Proxy{})
	return res.RowsAffected, res.Error
}

// GormClientStore is the PostgreSQL-backed ClientStore
type GormClientStore struct {
	db *gorm.DB
}

// NewGormClientStore creates a GormClientStore
func NewGormClientStore(db *gorm.DB) *GormClientStore {
	return &GormClientStore{db: db}
}

func (s *GormClientStore) GetOrCreateByName(ctx context.Context, name string) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).
		Where(models.Client{Name: name}).
		FirstOrCreate(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *GormClientStore) AddBlacklist(ctx context.Context, client *models.Client, proxy *models.Proxy) error {
	return s.db.WithContext(ctx).Model(client).
		Association("BlacklistedProxies").Append(proxy)
}

func (s *GormClientStore) BlacklistedIDs(ctx context.Context, client *models.Client) ([]string, error) {
	var proxies []models.Proxy
	err := s.db.WithContext(ctx).Model(client).
		Association("BlacklistedProxies").Find(&proxies)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(proxies))
	for _, p := range proxies {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *GormClientStore) IsDefaultForAnyClient(ctx context.Context, proxyID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Client{}).
		Where("default_proxy_id = ?", proxyID).
		Count(&count).Error
	return count > 0, err
}

// GormUserStore is the PostgreSQL-backed UserStore
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a GormUserStore
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) GetByEmail(ctx context.Context, email string) (*models.UserAuth, error) {
	var user models.UserAuth
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormUserStore) Save(ctx context.Context, user *models.UserAuth) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
