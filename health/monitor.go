package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Probe reports the current health of one component.
type Probe func(ctx context.Context) Status

type entry struct {
	name  string
	probe Probe
}

// Monitor runs registered probes and aggregates their results. It is safe for
// concurrent use.
type Monitor struct {
	system  string
	timeout time.Duration

	mu      sync.RWMutex
	entries []entry
}

// NewMonitor creates a monitor reporting as system.
func NewMonitor(system string) *Monitor {
	return &Monitor{system: system, timeout: 2 * time.Second}
}

// Register adds or replaces the probe for name. Probes report in registration order.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].name == name {
			m.entries[i].probe = probe
			return
		}
	}
	m.entries = append(m.entries, entry{name: name, probe: probe})
}

// Remove drops the probe for name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].name == name {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// Names lists the registered components.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Check runs every probe and returns the aggregate.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	entries := append([]entry(nil), m.entries...)
	m.mu.RUnlock()

	subs := make([]Status, 0, len(entries))
	for _, e := range entries {
		s := e.probe(ctx)
		s.Component = e.name
		if s.Timestamp.IsZero() {
			s.Timestamp = time.Now()
		}
		subs = append(subs, s)
	}
	return Aggregate(m.system, subs)
}

// Report runs a bounded Check and renders it for an HTTP health endpoint: the bridge
// counts as serving unless the aggregate is unhealthy. It matches metric.HealthFunc.
func (m *Monitor) Report() (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	status := m.Check(ctx)
	body, err := json.Marshal(status)
	if err != nil {
		return !status.IsUnhealthy(), status.Status
	}
	return !status.IsUnhealthy(), string(body)
}
