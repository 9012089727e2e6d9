package bus

import "sync"

// Dedupe remembers the most recent delivery keys. It forgets the oldest key when the window is full.
// A window of zero or less disables it.
type Dedupe struct {
	mu          sync.Mutex
	window      int
	recentIDs   map[string]struct{}
	recentOrder []string
}

func NewDedupe(window int) *Dedupe {
	return &Dedupe{
		window:    window,
		recentIDs: map[string]struct{}{},
	}
}

// Seen returns whether the key has been added and not yet been forgotten.
func (d *Dedupe) Seen(key string) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.recentIDs[key]
	return ok
}

func (d *Dedupe) Add(key string) {
	if d == nil || d.window <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recentIDs[key]; ok {
		return
	}
	d.recentIDs[key] = struct{}{}
	d.recentOrder = append(d.recentOrder, key)
	if len(d.recentOrder) > d.window {
		oldest := d.recentOrder[0]
		d.recentOrder = d.recentOrder[1:]
		delete(d.recentIDs, oldest)
	}
}
