package app

import (
	"sync"
	"time"
)

// timerAuthority runs one cancellable countdown per ongoing session. Clients
// never report elapsed time; the authority broadcasts resync ticks at a fixed
// cadence and raises a single expiry signal when the budget runs out.
type timerAuthority struct {
	tick time.Duration

	mu     sync.Mutex
	active map[string]chan struct{}
}

func newTimerAuthority(tick time.Duration) *timerAuthority {
	if tick <= 0 {
		tick = time.Second
	}
	return &timerAuthority{tick: tick, active: make(map[string]chan struct{})}
}

// Start launches the countdown for a session. onTick fires at the resync
// cadence, onExpire exactly once when the duration elapses. Starting an
// already-running session id is a no-op.
func (t *timerAuthority) Start(sessionID string, duration time.Duration, onTick func(), onExpire func()) {
	t.mu.Lock()
	if _, running := t.active[sessionID]; running {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.active[sessionID] = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()
		expiry := time.NewTimer(duration)
		defer expiry.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onTick()
			case <-expiry.C:
				t.Stop(sessionID)
				onExpire()
				return
			}
		}
	}()
}

// Stop cancels the countdown; safe to call on every termination path.
func (t *timerAuthority) Stop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop, ok := t.active[sessionID]; ok {
		delete(t.active, sessionID)
		close(stop)
	}
}
