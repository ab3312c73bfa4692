package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xelth-com/proxyfleet/internal/models"
)

func TestInsertWithRandomNameRetriesOnCollision(t *testing.T) {
	calls := 0
	insert := func(p *models.Proxy) error {
		calls++
		if calls < 3 {
			return gorm.ErrDuplicatedKey
		}
		return nil
	}

	proxy := &models.Proxy{}
	require.NoError(t, insertWithRandomName(proxy, insert))
	assert.Equal(t, 3, calls)
	assert.Len(t, proxy.Name, 8)
}

func TestInsertWithRandomNameGivesUp(t *testing.T) {
	calls := 0
	insert := func(p *models.Proxy) error {
		calls++
		return gorm.ErrDuplicatedKey
	}

	err := insertWithRandomName(&models.Proxy{}, insert)
	require.Error(t, err)
	assert.Equal(t, 10, calls)
}

func TestInsertWithRandomNameAbortsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	insert := func(p *models.Proxy) error {
		calls++
		return boom
	}

	err := insertWithRandomName(&models.Proxy{}, insert)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "only duplicate keys are retried")
}

func TestInsertWithRandomNameKeepsGivenName(t *testing.T) {
	proxy := &models.Proxy{Name: "chosen"}
	err := insertWithRandomName(proxy, func(p *models.Proxy) error {
		return gorm.ErrDuplicatedKey
	})

	// a caller-chosen duplicate name is the caller's error, not retried
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.Equal(t, "chosen", proxy.Name)
}
