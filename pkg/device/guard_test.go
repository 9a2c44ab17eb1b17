package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStreamer mimics a driver whose stream runs until cancelled and whose
// handle must not be released while the stream runs.
type fakeStreamer struct {
	guard  StreamGuard
	handle atomic.Bool
	cancel chan struct{}
	once   sync.Once
}

func (f *fakeStreamer) stream(started chan<- struct{}) error {
	if err := f.guard.Begin(func() { f.once.Do(func() { close(f.cancel) }) }); err != nil {
		return err
	}
	defer f.guard.End()

	close(started)
	<-f.cancel
	// still using the handle after cancellation, like a driver draining transfers
	time.Sleep(5 * time.Millisecond)
	if !f.handle.Load() {
		return errors.New("handle released while streaming")
	}
	return nil
}

func (f *fakeStreamer) close() {
	f.guard.Shutdown()
	f.handle.Store(false)
}

func TestStreamGuardCloseWaitsForStream(t *testing.T) {
	f := &fakeStreamer{cancel: make(chan struct{})}
	f.handle.Store(true)

	started := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- f.stream(started) }()

	<-started
	f.close()
	if err := <-errc; err != nil {
		t.Error(err)
	}
}

func TestStreamGuardRejectsAfterShutdown(t *testing.T) {
	var g StreamGuard
	g.Shutdown()
	if err := g.Begin(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Begin after Shutdown = %v, want ErrClosed", err)
	}
}

func TestStreamGuardShutdownIdle(t *testing.T) {
	var g StreamGuard
	if err := g.Begin(func() { t.Errorf("stop called for a finished session") }); err != nil {
		t.Fatal(err)
	}
	g.End()

	done := make(chan struct{})
	go func() {
		g.Shutdown()
		g.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown blocked with no session running")
	}
}
