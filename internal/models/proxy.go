package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider identifies the cloud vendor hosting a proxy VM
type Provider string

const (
	ProviderDigitalOcean Provider = "digitalocean"
	ProviderHetzner      Provider = "hetzner"
)

// Providers lists all supported providers in reconciliation order
var Providers = []Provider{ProviderDigitalOcean, ProviderHetzner}

// Valid reports whether p is a known provider
func (p Provider) Valid() bool {
	return p == ProviderDigitalOcean || p == ProviderHetzner
}

// Proxy represents a forward-proxy VM tracked by the fleet.
//
// ServerID is nil until the provider create call succeeded; IPAddress is set
// only while the provider reports a running instance with a public address,
// and Active only while the last health probe through the proxy succeeded.
type Proxy struct {
	ID                string         `gorm:"primaryKey;type:uuid" json:"id"`
	Name              string         `gorm:"uniqueIndex;not null" json:"name"`
	Alias             string         `json:"alias"`
	Provider          Provider       `gorm:"not null;default:'digitalocean'" json:"provider"`
	ServerID          *int64         `gorm:"index" json:"server_id"`
	IPAddress         *string        `json:"ip_address"`
	Active            bool           `gorm:"default:false" json:"active"`
	CreateRequestAt   *time.Time     `json:"create_request_at"`
	CreateResponse    datatypes.JSON `json:"create_response,omitempty"`
	LastCheckAt       *time.Time     `json:"last_check_at"`
	LastCheckResponse datatypes.JSON `json:"last_check_response,omitempty"`
	Reported          bool           `gorm:"default:false" json:"-"`
	IsRemoved         bool           `gorm:"default:false" json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Proxy
func (Proxy) TableName() string {
	return "proxies"
}

// BeforeCreate assigns the UUID primary key
func (p *Proxy) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IP returns the assigned address or the empty string
func (p *Proxy) IP() string {
	if p.IPAddress == nil {
		return ""
	}
	return *p.IPAddress
}

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// RandomProxyName generates a random 8-letter lowercase name. Callers must
// retry on a uniqueness collision; the store's Create surfaces it.
func RandomProxyName() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = nameAlphabet[rand.Intn(len(nameAlphabet))]
	}
	return string(b)
}
