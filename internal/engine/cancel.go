package engine

import "sync"

// Canceller is the cooperative cancellation flag shared by the manager and
// its in-flight step. The hook aborts the outstanding filesystem call;
// observers are notified once the manager has finished cancelling.
type Canceller struct {
	mu        sync.Mutex
	hook      func()
	hookID    uint64
	observers []func()
	requested bool
}

// Request sets the flag, registers observer (if non-nil) and fires the
// current hook.
func (c *Canceller) Request(observer func()) {
	c.mu.Lock()
	c.requested = true
	if observer != nil {
		c.observers = append(c.observers, observer)
	}
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Requested reports whether cancellation is pending.
func (c *Canceller) Requested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// SetHook installs fn as the abort hook and returns a function removing it.
// A later SetHook replaces fn; the stale clear function is then a no-op.
func (c *Canceller) SetHook(fn func()) (clear func()) {
	c.mu.Lock()
	c.hookID++
	id := c.hookID
	c.hook = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hookID == id {
			c.hook = nil
		}
	}
}

// takeObservers returns and forgets the registered observers.
func (c *Canceller) takeObservers() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	obs := c.observers
	c.observers = nil
	return obs
}

// reset clears the flag so the manager can be reused.
func (c *Canceller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = false
}
