package chrome

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// tabMonitor is the session liveness loop. Every poll interval it lists the
// browser's targets over the debugging endpoint and checks that the owned tab
// is still among them. On a missing id, a connection failure, or a request
// timeout it invokes onDetach exactly once and exits.
type tabMonitor struct {
	devURL   string
	targetID string
	interval time.Duration
	client   *http.Client
	log      logrus.FieldLogger
	onDetach func()

	stopOnce sync.Once
	stopc    chan struct{}
	donec    chan struct{}
}

func newTabMonitor(devURL, targetID string, log logrus.FieldLogger, onDetach func()) *tabMonitor {
	return &tabMonitor{
		devURL:   devURL,
		targetID: targetID,
		interval: retryBackoff,
		client:   &http.Client{Timeout: time.Second},
		log:      log.WithField("component", "chrome.monitor"),
		onDetach: onDetach,
		stopc:    make(chan struct{}),
		donec:    make(chan struct{}),
	}
}

func (m *tabMonitor) start() {
	go m.run()
}

func (m *tabMonitor) run() {
	defer close(m.donec)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopc:
			return
		case <-ticker.C:
		}

		alive, err := m.tabListed()
		if err != nil {
			m.log.WithError(err).Warn("target listing failed, marking tab detached")
			m.onDetach()
			return
		}
		if !alive {
			m.log.WithField("target", m.targetID).Warn("tab no longer listed, marking detached")
			m.onDetach()
			return
		}
	}
}

func (m *tabMonitor) tabListed() (bool, error) {
	resp, err := m.client.Get(m.devURL + "/json")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var targets []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return false, err
	}

	for _, t := range targets {
		if t.ID == m.targetID {
			return true, nil
		}
	}
	return false, nil
}

// stop asks the loop to exit and waits up to the given bound for it to do so.
// It reports whether the loop finished within the bound.
func (m *tabMonitor) stop(wait time.Duration) bool {
	m.stopOnce.Do(func() { close(m.stopc) })

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	select {
	case <-m.donec:
		return true
	case <-ctx.Done():
		return false
	}
}
