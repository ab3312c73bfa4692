package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// Notifier raises operator-facing alerts. Mail or pager transport lives
// behind this interface; the core only decides when to alert.
type Notifier interface {
	// StuckProvisioning fires once per proxy that failed to become active
	// within the provisioning deadline.
	StuckProvisioning(proxy *models.Proxy)

	// DeleteFailed fires when a provider refused to destroy an instance
	// whose local record is already gone; the instance keeps billing until
	// an operator removes it by hand.
	DeleteFailed(proxy *models.Proxy, err error)
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct{}

func (LogNotifier) StuckProvisioning(proxy *models.Proxy) {
	log.WithFields(log.Fields{
		"proxy":    proxy.Name,
		"provider": proxy.Provider,
	}).Warn("proxy created more than 10 minutes ago but still not active")
}

func (LogNotifier) DeleteFailed(proxy *models.Proxy, err error) {
	log.WithFields(log.Fields{
		"proxy":     proxy.Name,
		"provider":  proxy.Provider,
		"server_id": proxy.ServerID,
	}).Errorf("can't delete provider instance, manual cleanup required: %v", err)
}
