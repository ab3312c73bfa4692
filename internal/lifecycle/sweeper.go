package lifecycle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/notify"
	"github.com/xelth-com/proxyfleet/internal/store"
)

const (
	// recheckInterval is how long an active proxy's last check stays fresh;
	// inactive proxies are re-checked every tick.
	recheckInterval = time.Hour

	// stuckDeadline is how long after the create request a proxy may stay
	// inactive before a stuck-provisioning alert fires.
	stuckDeadline = 10 * time.Minute

	// untriggeredGrace holds back the create retry while a freshly committed
	// row's own trigger may still be in flight; retrying inside that window
	// could issue a second instance for the same row.
	untriggeredGrace = 5 * time.Minute
)

// Sweeper re-verifies every tracked proxy on a cadence depending on its
// status and raises a one-shot alert for proxies stuck in provisioning.
type Sweeper struct {
	store    store.ProxyStore
	orch     *Orchestrator
	notifier notify.Notifier
}

// NewSweeper creates a Sweeper
func NewSweeper(st store.ProxyStore, orch *Orchestrator, notifier notify.Notifier) *Sweeper {
	return &Sweeper{store: st, orch: orch, notifier: notifier}
}

// TickAll runs one sweep over all tracked proxies
func (s *Sweeper) TickAll(ctx context.Context) {
	now := time.Now().UTC()

	// Rows committed before their create trigger ran (crashed between
	// commit and trigger) are picked up here.
	untriggered, err := s.store.ListUntriggered(ctx)
	if err != nil {
		log.Errorf("can't list untriggered proxies: %v", err)
	}
	for i := range untriggered {
		proxy := untriggered[i]
		if now.Sub(proxy.CreatedAt) < untriggeredGrace {
			continue
		}
		log.Infof("retrying create for proxy %s", proxy.Name)
		if err := s.orch.CreateServer(ctx, &proxy); err != nil {
			log.Errorf("retried create for proxy %s failed: %v", proxy.Name, err)
		}
	}

	proxies, err := s.store.ListWithServerID(ctx)
	if err != nil {
		log.Errorf("can't list proxies: %v", err)
		return
	}

	var active int
	for i := range proxies {
		proxy := proxies[i]

		if !proxy.Active || proxy.LastCheckAt == nil || proxy.LastCheckAt.Add(recheckInterval).Before(now) {
			// check every tick while inactive, otherwise once per hour
			if _, err := s.orch.CheckServer(ctx, &proxy); err != nil {
				log.Errorf("check for proxy %s failed: %v", proxy.Name, err)
			}
		}

		if proxy.Active && proxy.Reported {
			// was reported but came back, clear the flag
			proxy.Reported = false
			if err := s.store.Save(ctx, &proxy); err != nil {
				log.Errorf("can't clear reported flag for proxy %s: %v", proxy.Name, err)
			}
		}

		if !proxy.Active && !proxy.Reported &&
			proxy.CreateRequestAt != nil && proxy.CreateRequestAt.Add(stuckDeadline).Before(now) {
			proxy.Reported = true
			if err := s.store.Save(ctx, &proxy); err != nil {
				log.Errorf("can't set reported flag for proxy %s: %v", proxy.Name, err)
			} else {
				s.notifier.StuckProvisioning(&proxy)
			}
		}

		if proxy.Active {
			active++
		}
	}

	s.orch.metrics.ActiveProxies.Set(float64(active))
}
