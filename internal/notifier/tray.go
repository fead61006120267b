package notifier

import (
	"sort"
	"sync"
)

// Tray holds the alerts currently visible to the user, one per reminder id.
type Tray struct {
	mu       sync.Mutex
	alerts   map[int64]Alert
	channels map[string]Channel
}

func NewTray() *Tray {
	return &Tray{
		alerts:   make(map[int64]Alert),
		channels: make(map[string]Channel),
	}
}

// RegisterChannel records a delivery category. Registering twice is harmless.
func (t *Tray) RegisterChannel(ch Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[ch.ID] = ch
}

// Channels returns the registered categories.
func (t *Tray) Channels() []Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Post shows alert, replacing any alert with the same key.
func (t *Tray) Post(alert Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alerts[alert.Key] = alert
}

// Get returns the visible alert for id.
func (t *Tray) Get(id int64) (Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.alerts[id]
	return a, ok
}

// Active returns visible alerts, newest first.
func (t *Tray) Active() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Alert, 0, len(t.alerts))
	for _, a := range t.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].Key > out[j].Key
		}
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return out
}

// Dismiss removes the alert for id.
func (t *Tray) Dismiss(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.alerts, id)
}

// Open dismisses the alert for id and returns its tap target. The alert is
// auto-cancelled on tap.
func (t *Tray) Open(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.alerts[id]
	if !ok {
		return "", false
	}
	delete(t.alerts, id)
	return a.TapTarget, true
}
