package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a consumer identity. Clients are created lazily on first lookup
// by name and exclude blacklisted proxies from their visible pool.
type Client struct {
	ID                 string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name               string    `gorm:"uniqueIndex;not null" json:"name"`
	BlacklistedProxies []Proxy   `gorm:"many2many:client_blacklisted_proxies" json:"-"`
	DefaultProxyID     *string   `gorm:"type:uuid" json:"default_proxy_id"`
	DefaultProxy       *Proxy    `gorm:"foreignKey:DefaultProxyID" json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for Client
func (Client) TableName() string {
	return "clients"
}

// BeforeCreate assigns the UUID primary key
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
