package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/playsdr/pkg/util"
)

type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Outcome records why a capture stopped.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCancelled
	OutcomeBudgetSatisfied
	OutcomeSourceEnded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeBudgetSatisfied:
		return "budget satisfied"
	case OutcomeSourceEnded:
		return "source ended"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type Options struct {
	Resolution Resolution
	Order      ChannelOrder
	// SampleLimit is the number of sample pairs to capture. Zero means no limit.
	SampleLimit int64
}

type PipelineOption func(p *Pipeline) error

func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithTap passes every accepted packet to fn before it is converted. fn runs
// on the delivery path and must not retain the packet.
func WithTap(fn func(Packet)) PipelineOption {
	return func(p *Pipeline) error {
		p.tap = fn
		return nil
	}
}

// Pipeline converts and writes packets one at a time. HandlePacket may be
// called from a goroutine the pipeline does not own; concurrent deliveries
// are serialised.
type Pipeline struct {
	opts   Options
	sink   io.WriteCloser
	writer *SinkWriter
	logger zerolog.Logger
	tap    func(Packet)

	mu        sync.Mutex
	buf       Buffer
	budgeted  bool
	remaining int64
	delivered bool
	nextIndex uint32

	state      atomic.Int32
	cancelled  atomic.Bool
	cancelCh   chan struct{}
	cancelOnce sync.Once
	doneCh     chan struct{}

	endMu   sync.Mutex
	outcome Outcome
	err     error

	stats counters
}

func NewPipeline(sink io.WriteCloser, opts Options, options ...PipelineOption) (*Pipeline, error) {
	if !opts.Resolution.valid() {
		return nil, newError(StageConfig, "new pipeline", fmt.Errorf("invalid resolution %d", int(opts.Resolution)))
	}
	if opts.Order != OrderIQ && opts.Order != OrderQI {
		return nil, newError(StageConfig, "new pipeline", fmt.Errorf("invalid channel order %d", int(opts.Order)))
	}
	if opts.SampleLimit < 0 {
		return nil, newError(StageConfig, "new pipeline", fmt.Errorf("negative sample limit %d", opts.SampleLimit))
	}
	if opts.SampleLimit > opts.Resolution.MaxSampleLimit() {
		return nil, newError(StageConfig, "new pipeline",
			fmt.Errorf("sample limit %d exceeds %d for %s output", opts.SampleLimit, opts.Resolution.MaxSampleLimit(), opts.Resolution))
	}
	if sink == nil {
		return nil, newError(StageConfig, "new pipeline", errors.New("no sink"))
	}

	p := &Pipeline{
		opts:     opts,
		sink:     sink,
		writer:   NewSinkWriter(sink, opts.Resolution),
		logger:   log.Logger,
		cancelCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if opts.SampleLimit > 0 {
		p.budgeted = true
		p.remaining = opts.SampleLimit * int64(opts.Resolution.PairWidth())
		p.stats.budgetLeft.Store(p.remaining)
	}

	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Cancel raises the cancellation flag. It is safe to call from a signal
// handling goroutine and more than once.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
	p.cancelOnce.Do(func() { close(p.cancelCh) })
}

func (p *Pipeline) Cancelled() bool {
	return p.cancelled.Load()
}

// Done is closed once the pipeline stops accepting packets.
func (p *Pipeline) Done() <-chan struct{} {
	return p.doneCh
}

// HandlePacket runs one acquisition cycle: ensure capacity, convert, write,
// account for the byte budget and observe cancellation. It returns
// ErrDraining once the pipeline no longer accepts packets and the fatal error
// if this packet ended the capture.
func (p *Pipeline) HandlePacket(pkt Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateIdle:
		p.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming))
	case StateStreaming:
	default:
		return ErrDraining
	}

	if p.cancelled.Load() {
		p.finish(OutcomeCancelled, nil)
		return ErrDraining
	}

	if len(pkt.I) != len(pkt.Q) {
		err := newError(StageSource, "deliver packet",
			fmt.Errorf("mismatched channel lengths: %d I, %d Q", len(pkt.I), len(pkt.Q)))
		p.finish(OutcomeFailed, err)
		return err
	}

	n := pkt.Len()
	if pkt.Reset {
		p.buf.Invalidate()
		p.stats.resets.Add(1)
		p.logger.Debug().Uint32("first_sample", pkt.FirstSample).Msg("stream reset, re-deriving buffer capacity")
	}
	if n == 0 {
		if pkt.Reset {
			// the next packet starts a new index sequence
			p.delivered = false
		}
		return nil
	}

	if !pkt.Reset && p.delivered && pkt.FirstSample != p.nextIndex {
		p.stats.gaps.Add(1)
		p.logger.Warn().
			Uint32("expected", p.nextIndex).
			Uint32("first_sample", pkt.FirstSample).
			Msg("sample index discontinuity")
	}
	p.delivered = true
	p.nextIndex = pkt.FirstSample + uint32(n)
	p.stats.lastSample.Store(pkt.FirstSample)

	if p.tap != nil {
		p.tap(pkt)
	}

	frame, err := p.buf.Ensure(n, p.opts.Resolution)
	if err != nil {
		p.finish(OutcomeFailed, err)
		return err
	}
	p.stats.allocations.Store(int64(p.buf.Allocations()))

	frame = frame[:Convert(frame, pkt, p.opts.Resolution, p.opts.Order)]

	exhausted := false
	if p.budgeted && p.remaining <= int64(len(frame)) {
		frame = frame[:p.remaining]
		exhausted = true
	}

	var written int
	micros, err := util.TimeOperationMicroseconds(func() error {
		var werr error
		written, werr = p.writer.Write(frame)
		return werr
	})
	p.stats.writeMicros.Store(micros)
	if err != nil {
		p.finish(OutcomeFailed, err)
		return err
	}

	p.stats.packets.Add(1)
	p.stats.bytes.Add(int64(written))

	if p.budgeted {
		p.remaining -= int64(written)
		p.stats.budgetLeft.Store(p.remaining)
	}

	switch {
	case exhausted:
		p.finish(OutcomeBudgetSatisfied, nil)
	case p.cancelled.Load():
		p.finish(OutcomeCancelled, nil)
	}
	return nil
}

// finish moves the pipeline to Draining. Only the first call records an outcome.
func (p *Pipeline) finish(outcome Outcome, err error) {
	p.endMu.Lock()
	defer p.endMu.Unlock()

	if p.outcome != OutcomeNone {
		return
	}
	p.outcome = outcome
	p.err = err
	if p.State() < StateDraining {
		p.state.Store(int32(StateDraining))
	}
	close(p.doneCh)

	l := p.logger.With().Str("outcome", outcome.String()).Logger()
	if err == nil {
		l.Info().Int64("bytes", p.stats.bytes.Load()).Int64("packets", p.stats.packets.Load()).Msg("capture finished")
		return
	}

	stage, _ := StageOf(err)
	ev := l.Error().Err(err).Str("stage", stage.String())
	var sw *ShortWriteError
	if errors.As(err, &sw) {
		ev = ev.Str("resolution", sw.Resolution.String()).Int("wanted", sw.Wanted).Int("written", sw.Written)
	}
	ev.Msg("capture failed")
}

func (p *Pipeline) result() (Outcome, error) {
	p.endMu.Lock()
	defer p.endMu.Unlock()
	return p.outcome, p.err
}

// Drain waits for any in-flight packet, releases the buffer, closes the sink
// and moves the pipeline to Terminated.
func (p *Pipeline) drain() error {
	p.finish(OutcomeCancelled, nil)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateTerminated {
		return nil
	}
	p.buf.Release()
	err := p.sink.Close()
	p.state.Store(int32(StateTerminated))
	if err != nil {
		return newError(StageSink, "close", err)
	}
	return nil
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		State:        p.State().String(),
		Packets:      p.stats.packets.Load(),
		Bytes:        p.stats.bytes.Load(),
		Resets:       p.stats.resets.Load(),
		Allocations:  p.stats.allocations.Load(),
		Gaps:         p.stats.gaps.Load(),
		LastSample:   p.stats.lastSample.Load(),
		BudgetLeft:   p.stats.budgetLeft.Load(),
		WriteMicros:  p.stats.writeMicros.Load(),
		Resolution:   p.opts.Resolution.String(),
		ChannelOrder: p.opts.Order.String(),
	}
}
