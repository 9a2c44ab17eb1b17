package device

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Stream once Close has started.
var ErrClosed = errors.New("device closed")

// StreamGuard orders a streaming session against Close. Close calls Shutdown,
// which stops the running session and waits for it to return, so the device
// handle is never released while Stream or its helpers still use it.
type StreamGuard struct {
	mu      sync.Mutex
	closing bool
	stop    func()
	wg      sync.WaitGroup
}

// Begin registers a session. stop must be safe to call more than once and
// from any goroutine. Every successful Begin must be paired with End.
func (g *StreamGuard) Begin(stop func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return ErrClosed
	}
	g.stop = stop
	g.wg.Add(1)
	return nil
}

func (g *StreamGuard) End() {
	g.mu.Lock()
	g.stop = nil
	g.mu.Unlock()
	g.wg.Done()
}

// Shutdown refuses new sessions, stops the current one and waits for it.
func (g *StreamGuard) Shutdown() {
	g.mu.Lock()
	g.closing = true
	stop := g.stop
	g.mu.Unlock()

	if stop != nil {
		stop()
	}
	g.wg.Wait()
}
