package server

import "time"

type typingKey struct {
	userId    int
	sessionId int
}

type typingTimer struct {
	timer  *time.Timer
	gen    uint64
	connId string
}

// typingExpiry is posted to the event loop when a quiet interval elapses.
type typingExpiry struct {
	key typingKey
	gen uint64
}

// typingDebouncer keeps at most one pending timer per (user, session). It is
// owned by the event loop; timer callbacks only hand an expiry to fire.
type typingDebouncer struct {
	interval time.Duration
	timers   map[typingKey]*typingTimer
	gen      uint64
	fire     func(typingExpiry)
}

func newTypingDebouncer(interval time.Duration, fire func(typingExpiry)) *typingDebouncer {
	return &typingDebouncer{
		interval: interval,
		timers:   make(map[typingKey]*typingTimer),
		fire:     fire,
	}
}

// arm replaces any pending timer for key with a fresh one.
func (d *typingDebouncer) arm(key typingKey, connId string) {
	d.cancel(key)

	d.gen++
	exp := typingExpiry{key: key, gen: d.gen}
	d.timers[key] = &typingTimer{
		timer:  time.AfterFunc(d.interval, func() { d.fire(exp) }),
		gen:    exp.gen,
		connId: connId,
	}
}

// cancel stops the pending timer for key and reports whether one existed.
func (d *typingDebouncer) cancel(key typingKey) bool {
	t, ok := d.timers[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(d.timers, key)
	return true
}

// expire resolves an expiry against the current timer. Stale expiries,
// from timers replaced or cancelled after firing, return false.
func (d *typingDebouncer) expire(exp typingExpiry) (*typingTimer, bool) {
	t, ok := d.timers[exp.key]
	if !ok || t.gen != exp.gen {
		return nil, false
	}
	delete(d.timers, exp.key)
	return t, true
}

// cancelConn stops every timer armed by connId and returns their keys.
func (d *typingDebouncer) cancelConn(connId string) []typingKey {
	var keys []typingKey
	for k, t := range d.timers {
		if t.connId == connId {
			t.timer.Stop()
			delete(d.timers, k)
			keys = append(keys, k)
		}
	}
	return keys
}

func (d *typingDebouncer) cancelSession(sessionId int) {
	for k, t := range d.timers {
		if k.sessionId == sessionId {
			t.timer.Stop()
			delete(d.timers, k)
		}
	}
}

func (d *typingDebouncer) stopAll() {
	for k, t := range d.timers {
		t.timer.Stop()
		delete(d.timers, k)
	}
}

func (d *typingDebouncer) pending() int {
	return len(d.timers)
}
