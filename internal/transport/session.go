// internal/transport/session.go
// Device session registry. Connection state is explicit: a device gets an
// entry when its first request arrives and loses it after the idle TTL,
// so nothing relies on ambient broker state to know who is talking.
package transport

import (
	"sync"
	"time"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/metrics"
)

// SessionRegistry tracks which devices have an active request session.
type SessionRegistry struct {
	ttl     time.Duration
	mutex   sync.Mutex
	devices map[string]time.Time
	metrics *metrics.Metrics
	done    chan struct{}
	once    sync.Once
}

// NewSessionRegistry creates a registry that expires devices idle longer
// than ttl. The sweep loop runs until Close.
func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	r := &SessionRegistry{
		ttl:     ttl,
		devices: make(map[string]time.Time),
		metrics: metrics.NewMetrics(),
		done:    make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Touch records activity for a device, inserting it on first contact.
func (r *SessionRegistry) Touch(deviceKey string) {
	r.mutex.Lock()
	r.devices[deviceKey] = time.Now()
	r.metrics.ActiveDevices.Set(float64(len(r.devices)))
	r.mutex.Unlock()
}

// Remove drops a device's session entry immediately.
func (r *SessionRegistry) Remove(deviceKey string) {
	r.mutex.Lock()
	delete(r.devices, deviceKey)
	r.metrics.ActiveDevices.Set(float64(len(r.devices)))
	r.mutex.Unlock()
}

// Count returns the number of live session entries.
func (r *SessionRegistry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.devices)
}

// Close stops the sweep loop.
func (r *SessionRegistry) Close() {
	r.once.Do(func() { close(r.done) })
}

// sweepLoop expires idle devices once per TTL interval.
func (r *SessionRegistry) sweepLoop() {
	interval := r.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.mutex.Lock()
			cutoff := now.Add(-r.ttl)
			for key, lastSeen := range r.devices {
				if lastSeen.Before(cutoff) {
					delete(r.devices, key)
				}
			}
			r.metrics.ActiveDevices.Set(float64(len(r.devices)))
			r.mutex.Unlock()
		}
	}
}
