package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type PacketHandler func(Packet) error

// Source is the part of a receiver the acquisition loop drives. A source
// implements exactly one of Streamer or Reader.
type Source interface {
	Close() error
}

// Streamer is a push-model source. Stream delivers packets to h from a
// goroutine of its choosing until ctx is done, h returns an error, or the
// device fails. It must not call h concurrently with itself returning.
type Streamer interface {
	Source
	Stream(ctx context.Context, h PacketHandler) error
}

// Reader is a pull-model source. ReadPacket blocks until a packet is
// available. io.EOF reports a clean end of stream.
type Reader interface {
	Source
	ReadPacket(ctx context.Context) (Packet, error)
}

type Result struct {
	Outcome Outcome
	Err     error
	Stats   Stats
}

// Exit statuses for a finished capture. A run that ends on its sample budget
// or at the end of its source exits with ExitOK.
const (
	ExitOK         = 0
	ExitSource     = 1
	ExitConfig     = 2
	ExitSink       = 3
	ExitAllocation = 4
	// ExitCancelled follows the shell convention for a command stopped by SIGINT.
	ExitCancelled = 130
)

func (r Result) ExitCode() int {
	switch r.Outcome {
	case OutcomeCancelled:
		return ExitCancelled
	case OutcomeFailed:
	default:
		return ExitOK
	}
	stage, ok := StageOf(r.Err)
	if !ok {
		return ExitSource
	}
	switch stage {
	case StageConfig:
		return ExitConfig
	case StageSink:
		return ExitSink
	case StageAllocation:
		return ExitAllocation
	}
	return ExitSource
}

// Run drives src through the pipeline until the capture ends, then drains:
// the source is closed before the sink so that no packet arrives after the
// sink is gone.
func (p *Pipeline) Run(ctx context.Context, src Source) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var streamDone chan error
	switch s := src.(type) {
	case Reader:
		p.pull(ctx, s)
	case Streamer:
		streamDone = make(chan error, 1)
		p.push(ctx, s, streamDone)
	default:
		p.finish(OutcomeFailed, newError(StageSource, "run", fmt.Errorf("%T can neither stream nor read packets", src)))
	}

	p.logger.Debug().Msg("draining")
	cancel()
	srcErr := src.Close()
	if streamDone != nil {
		<-streamDone
	}
	sinkErr := p.drain()

	outcome, err := p.result()
	if err == nil && srcErr != nil {
		p.logger.Warn().Err(srcErr).Str("stage", StageSource.String()).Msg("error releasing source")
	}
	if err == nil && sinkErr != nil {
		p.logger.Error().Err(sinkErr).Str("stage", StageSink.String()).Msg("error closing sink")
		outcome, err = OutcomeFailed, sinkErr
	}
	return Result{Outcome: outcome, Err: err, Stats: p.Stats()}
}

func (p *Pipeline) pull(ctx context.Context, r Reader) {
	for {
		if p.cancelled.Load() || ctx.Err() != nil {
			p.finish(OutcomeCancelled, nil)
			return
		}

		pkt, err := r.ReadPacket(ctx)
		if err != nil {
			p.sourceStopped(ctx, err)
			return
		}

		if err := p.HandlePacket(pkt); err != nil {
			return
		}
		select {
		case <-p.doneCh:
			return
		default:
		}
	}
}

func (p *Pipeline) push(ctx context.Context, s Streamer, streamDone chan<- error) {
	streamErr := make(chan error, 1)
	go func() {
		err := s.Stream(ctx, p.HandlePacket)
		streamErr <- err
		streamDone <- err
	}()

	select {
	case <-p.doneCh:
	case <-p.cancelCh:
		p.finish(OutcomeCancelled, nil)
	case <-ctx.Done():
		p.finish(OutcomeCancelled, nil)
	case err := <-streamErr:
		p.sourceStopped(ctx, err)
	}
}

// sourceStopped classifies the error a source returned when it stopped on its own.
func (p *Pipeline) sourceStopped(ctx context.Context, err error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		p.finish(OutcomeSourceEnded, nil)
	case errors.Is(err, ErrDraining):
		// the pipeline already recorded why it stopped
		p.finish(OutcomeCancelled, nil)
	case p.cancelled.Load() || ctx.Err() != nil:
		p.finish(OutcomeCancelled, nil)
	default:
		if _, ok := StageOf(err); !ok {
			err = newError(StageSource, "stream", err)
		}
		p.finish(OutcomeFailed, err)
	}
}
