package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunWithServicesFailureKeepsCapturing(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, sink, Options{Resolution: Resolution8})

	failed := make(chan struct{})
	src := &fakeReader{packets: packets(3, 4)}
	src.onRead = func(call int) {
		if call == 1 {
			<-failed
			time.Sleep(20 * time.Millisecond)
		}
	}

	res := p.RunWithServices(context.Background(), src, Service{
		Name: "status",
		Run: func(ctx context.Context) error {
			defer close(failed)
			return errors.New("listen tcp :8080: bind: address already in use")
		},
	})
	if res.Outcome != OutcomeSourceEnded {
		t.Fatalf("outcome = %v, want source ended", res.Outcome)
	}
	if res.ExitCode() != ExitOK {
		t.Errorf("exit code = %d, want %d", res.ExitCode(), ExitOK)
	}
	if len(sink.writes) != 3 {
		t.Errorf("%d writes, want 3", len(sink.writes))
	}
}

func TestRunWithServicesStopsServices(t *testing.T) {
	p := newTestPipeline(t, &recordingSink{}, Options{Resolution: Resolution8})

	var stopped atomic.Int32
	blocking := func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Add(1)
		return nil
	}
	res := p.RunWithServices(context.Background(), &fakeReader{packets: packets(2, 4)},
		Service{Name: "stats", Run: blocking},
		Service{Name: "status", Run: blocking})

	if res.Outcome != OutcomeSourceEnded {
		t.Errorf("outcome = %v, want source ended", res.Outcome)
	}
	if stopped.Load() != 2 {
		t.Errorf("%d services stopped, want 2", stopped.Load())
	}
}

func TestRunWithServicesCancel(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, sink, Options{Resolution: Resolution8})

	cancelled := make(chan struct{})
	src := &fakeReader{packets: packets(3, 4)}
	src.onRead = func(call int) {
		if call == 1 {
			<-cancelled
		}
	}

	res := p.RunWithServices(context.Background(), src, Service{
		Name: "signals",
		Run: func(ctx context.Context) error {
			p.Cancel()
			close(cancelled)
			<-ctx.Done()
			return nil
		},
	})
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", res.Outcome)
	}
	if res.ExitCode() != ExitCancelled {
		t.Errorf("exit code = %d, want %d", res.ExitCode(), ExitCancelled)
	}
	if len(sink.writes) != 0 {
		t.Errorf("%d writes after cancel, want 0", len(sink.writes))
	}
}
