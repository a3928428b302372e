package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSessionTTL    = 2 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Janitor periodically expires idle sessions from a Store.
type Janitor struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewJanitor creates a janitor. Zero values take the defaults.
func NewJanitor(store *Store, ttl, interval time.Duration) *Janitor {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
		if ttl < interval {
			interval = ttl
		}
	}
	return &Janitor{store: store, ttl: ttl, interval: interval}
}

// Start starts the sweep loop
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.running = true
	go j.run(j.stopCh, j.doneCh)

	log.Info().
		Dur("session_ttl", j.ttl).
		Dur("interval", j.interval).
		Msg("Session janitor started")

	return nil
}

// Stop stops the sweep loop and waits for it to exit
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is not running")
	}
	close(j.stopCh)
	done := j.doneCh
	j.running = false
	j.mu.Unlock()

	<-done
	log.Info().Msg("Session janitor stopped")
	return nil
}

// IsRunning returns whether the janitor is running
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SweepNow()
		case <-stopCh:
			return
		}
	}
}

// SweepNow expires idle sessions immediately and returns how many were removed.
func (j *Janitor) SweepNow() int {
	removed := j.store.Expire(j.ttl)
	if removed > 0 {
		log.Info().Int("expired", removed).Msg("Expired idle sessions")
	}
	return removed
}
