// Package detect tracks whether devices are still reporting.
package detect

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Monitor records the last time each key was hooked. A key is online while it has been
// seen within its timeout.
type Monitor struct {
	Now func() time.Time

	lock     sync.Mutex
	timeouts map[int]time.Duration
	names    map[int]string
	lastSeen map[int]time.Time
	online   map[int]bool
}

func NewMonitor() *Monitor {
	return &Monitor{
		Now:      time.Now,
		timeouts: make(map[int]time.Duration),
		names:    make(map[int]string),
		lastSeen: make(map[int]time.Time),
		online:   make(map[int]bool),
	}
}

// Register adds a key to watch. Only registered keys are reported by Offline.
func (m *Monitor) Register(key int, name string, timeout time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.timeouts[key] = timeout
	m.names[key] = name
}

// Hook marks key as seen now. It never blocks for longer than a map write.
func (m *Monitor) Hook(key int) {
	now := m.Now()

	m.lock.Lock()
	m.lastSeen[key] = now
	came := !m.online[key]
	m.online[key] = true
	name := m.names[key]
	m.lock.Unlock()

	if came {
		glog.V(1).Infof("detect: %s (%d) online", name, key)
	}
}

func (m *Monitor) Online(key int) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.onlineLocked(key, m.Now())
}

func (m *Monitor) onlineLocked(key int, now time.Time) bool {
	seen, ok := m.lastSeen[key]
	if !ok {
		return false
	}
	timeout, ok := m.timeouts[key]
	if !ok {
		return true
	}
	return now.Sub(seen) <= timeout
}

// Offline lists the registered keys that have never been seen or have timed out, in key order.
func (m *Monitor) Offline() (keys []int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.Now()
	for key := range m.timeouts {
		if !m.onlineLocked(key, now) {
			keys = append(keys, key)
			if m.online[key] {
				m.online[key] = false
				glog.Warningf("detect: %s (%d) offline", m.names[key], key)
			}
		}
	}
	sort.Ints(keys)
	return
}

// LastSeen returns when key was last hooked.
func (m *Monitor) LastSeen(key int) (time.Time, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	t, ok := m.lastSeen[key]
	return t, ok
}
