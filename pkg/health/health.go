// Package health exposes a plain Snapshot() of process health that the
// composition root can serve however it likes; no net/http surface is
// built in.
package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/protei/monitoring/pkg/stats"
)

// Snapshot is a point-in-time view of process health.
type Snapshot struct {
	Healthy           bool
	StartedAt         time.Time
	UptimeSeconds     int64
	MessagesProcessed int64
	SessionsActive    int64
	ErrorCount        int64
	LastError         string
	PersistenceDropped int64
	EventsDropped      int64
}

// Probe tracks the counters a Snapshot reports. It has no background
// goroutines of its own: the dispatcher/composition root calls
// RecordError/UpdateSessionCount as it learns things, and Snapshot() is
// computed on demand.
type Probe struct {
	startedAt time.Time

	messagesProcessed int64 // atomic
	errorCount        int64 // atomic

	mu             sync.RWMutex
	sessionsActive int64
	lastError      string
}

// NewProbe creates a Probe whose uptime is measured from now.
func NewProbe() *Probe {
	return &Probe{startedAt: time.Now()}
}

// RecordMessage increments the processed-message counter.
func (p *Probe) RecordMessage() {
	atomic.AddInt64(&p.messagesProcessed, 1)
}

// RecordError increments the error counter and records the message.
func (p *Probe) RecordError(err error) {
	atomic.AddInt64(&p.errorCount, 1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
}

// UpdateSessionCount sets the active-session gauge.
func (p *Probe) UpdateSessionCount(count int64) {
	p.mu.Lock()
	p.sessionsActive = count
	p.mu.Unlock()
}

// Snapshot builds a Snapshot from the probe's own counters plus the
// persistence/events drop counters, never mutating any of them. The st
// argument is accepted but not read.
func (p *Probe) Snapshot(st *stats.Statistics, persistenceDropped, eventsDropped int64) Snapshot {
	p.mu.RLock()
	lastError := p.lastError
	sessionsActive := p.sessionsActive
	p.mu.RUnlock()

	errCount := atomic.LoadInt64(&p.errorCount)
	return Snapshot{
		Healthy:             true,
		StartedAt:           p.startedAt,
		UptimeSeconds:       int64(time.Since(p.startedAt).Seconds()),
		MessagesProcessed:   atomic.LoadInt64(&p.messagesProcessed),
		SessionsActive:      sessionsActive,
		ErrorCount:          errCount,
		LastError:           lastError,
		PersistenceDropped:  persistenceDropped,
		EventsDropped:       eventsDropped,
	}
}
