// Package sched admits window-activity signals into the capture pipeline.
//
// Signals are racy and bursty: a flashing window can emit several per
// second, and the same window can flash again while its capture is still
// running. The debouncer applies a per-target cooldown, guarantees a target
// is never queued and in-flight at the same time, and serializes all
// captures through a single worker because captures fight over one shared
// input focus.
package sched

import (
	"sync"
	"time"

	logx "chatlogd/pkg/logx"
)

const DefaultCooldown = 8 * time.Second

// Signal is one admitted window-activity event.
type Signal struct {
	TargetID string
	Code     int
}

// Handler runs one capture cycle for an admitted signal and reports whether
// the capture succeeded (text was obtained).
type Handler func(sig Signal) bool

// Debouncer is safe for concurrent use. One mutex guards all bookkeeping:
// the cooldown map, the queued set, the in-flight set and the queue itself.
type Debouncer struct {
	mu sync.Mutex

	cooldown time.Duration
	handler  Handler
	log      logx.Logger

	last     map[string]time.Time
	queued   map[string]struct{}
	inflight map[string]struct{}
	queue    []Signal

	looping   bool
	suspended bool

	// gen invalidates a draining worker after Clear() so a stale loop can
	// never run concurrently with a freshly started one.
	gen uint64

	now func() time.Time
}

func New(cooldown time.Duration, handler Handler, log logx.Logger) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Debouncer{
		cooldown: cooldown,
		handler:  handler,
		log:      log,
		last:     map[string]time.Time{},
		queued:   map[string]struct{}{},
		inflight: map[string]struct{}{},
		now:      time.Now,
	}
}

// SetCooldown adjusts the per-target cooldown (config reload).
func (d *Debouncer) SetCooldown(cd time.Duration) {
	if cd <= 0 {
		cd = DefaultCooldown
	}
	d.mu.Lock()
	d.cooldown = cd
	d.mu.Unlock()
}

// Admit applies cooldown and re-entrancy checks to a raw signal. It returns
// false with no side effect when the signal is dropped. On acceptance the
// admission time is recorded immediately — before the capture runs — so a
// burst of repeated signals for the same target is suppressed even while
// that target is still queued or in flight.
func (d *Debouncer) Admit(targetID string, code int) bool {
	if targetID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.suspended {
		return false
	}

	now := d.now()
	if last, ok := d.last[targetID]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	if _, ok := d.inflight[targetID]; ok {
		return false
	}
	if _, ok := d.queued[targetID]; ok {
		return false
	}

	d.queue = append(d.queue, Signal{TargetID: targetID, Code: code})
	d.queued[targetID] = struct{}{}
	d.last[targetID] = now

	if !d.looping {
		d.looping = true
		go d.drain(d.gen)
	}
	return true
}

// drain is the single logical consumer: it pops one signal at a time and
// runs the handler synchronously with respect to that target.
func (d *Debouncer) drain(gen uint64) {
	for {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		if len(d.queue) == 0 {
			d.looping = false
			d.mu.Unlock()
			return
		}
		sig := d.queue[0]
		d.queue = d.queue[1:]
		delete(d.queued, sig.TargetID)
		d.inflight[sig.TargetID] = struct{}{}
		d.mu.Unlock()

		ok := d.run(sig)

		d.mu.Lock()
		// A worker invalidated by Clear() must not touch the fresh
		// generation's bookkeeping: its target may already be re-admitted
		// and in flight again.
		if gen == d.gen {
			delete(d.inflight, sig.TargetID)
			if ok {
				// A successful capture re-stamps the cooldown at
				// completion time, not admission time.
				d.last[sig.TargetID] = d.now()
			}
		}
		d.mu.Unlock()
	}
}

func (d *Debouncer) run(sig Signal) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("capture handler panicked",
				logx.String("target", sig.TargetID), logx.Any("panic", r))
			ok = false
		}
	}()
	if d.handler == nil {
		return false
	}
	return d.handler(sig)
}

// Clear empties the queue, the queued/in-flight sets and the loop flag.
// Cooldown stamps survive, so a stop/start cycle does not unleash a burst.
// A capture already handed to the handler is not cancelled; it just can no
// longer touch fresh state.
func (d *Debouncer) Clear() {
	d.mu.Lock()
	d.gen++
	d.queue = nil
	d.queued = map[string]struct{}{}
	d.inflight = map[string]struct{}{}
	d.looping = false
	d.mu.Unlock()
}

// Suspend drops all incoming signals until Resume. Used while a refresh run
// is rearranging windows.
func (d *Debouncer) Suspend() {
	d.mu.Lock()
	d.suspended = true
	d.mu.Unlock()
}

func (d *Debouncer) Resume() {
	d.mu.Lock()
	d.suspended = false
	d.mu.Unlock()
}

// ReplaceTarget migrates cooldown state when a logical target reappears
// under a new identifier (window reopened).
func (d *Debouncer) ReplaceTarget(oldID, newID string) {
	if oldID == "" || newID == "" || oldID == newID {
		return
	}
	d.mu.Lock()
	if t, ok := d.last[oldID]; ok {
		delete(d.last, oldID)
		d.last[newID] = t
	}
	d.mu.Unlock()
}

// Pending reports queue depth and in-flight count (operational visibility).
func (d *Debouncer) Pending() (queued, inflight int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue), len(d.inflight)
}
