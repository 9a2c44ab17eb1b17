// Package sim provides a synthetic push-model receiver that emits a complex
// tone. It stands in for hardware when testing sinks and output formats.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/device"
)

const name = "sim"

type SimDevice struct {
	packetSize int
	toneHz     float64
	amplitude  float64
	limit      int
	resetEvery int
	paced      bool

	sampleRate int
	i, q       []int16
	index      uint32
	configured bool
}

type Option func(s *SimDevice)

// WithTone sets the offset of the tone from the center frequency and its
// amplitude as a fraction of full scale.
func WithTone(hz, amplitude float64) Option {
	return func(s *SimDevice) {
		s.toneHz = hz
		s.amplitude = amplitude
	}
}

// WithPacketLimit ends the stream after n packets.
func WithPacketLimit(n int) Option {
	return func(s *SimDevice) {
		s.limit = n
	}
}

// WithResetEvery flags every nth packet as a stream discontinuity.
func WithResetEvery(n int) Option {
	return func(s *SimDevice) {
		s.resetEvery = n
	}
}

func WithPacing() Option {
	return func(s *SimDevice) {
		s.paced = true
	}
}

func NewSimDevice(packetSize int, opts ...Option) *SimDevice {
	ret := &SimDevice{
		packetSize: packetSize,
		toneHz:     10e3,
		amplitude:  0.5,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *SimDevice) MaxSampleRate() int {
	return 20e6
}

func (s *SimDevice) Configure(p device.Params) (int, error) {
	if err := device.CheckSampleRate(s, name, p.SampleRate); err != nil {
		return 0, err
	}
	if s.packetSize <= 0 || p.SampleRate <= 0 {
		return 0, device.NewError(device.KindConfigure, name, "configure",
			fmt.Errorf("invalid packet size %d or sample rate %d", s.packetSize, p.SampleRate))
	}
	s.sampleRate = p.SampleRate
	s.i = make([]int16, s.packetSize)
	s.q = make([]int16, s.packetSize)
	s.configured = true
	return s.packetSize, nil
}

func (s *SimDevice) fill() {
	scale := s.amplitude * math.MaxInt16
	step := 2 * math.Pi * s.toneHz / float64(s.sampleRate)
	for k := range s.i {
		phase := step * float64(s.index+uint32(k))
		s.i[k] = int16(scale * math.Cos(phase))
		s.q[k] = int16(scale * math.Sin(phase))
	}
}

// Stream calls h from its own goroutine context until ctx is done, the packet
// limit is reached, or h returns an error.
func (s *SimDevice) Stream(ctx context.Context, h capture.PacketHandler) error {
	if !s.configured {
		return device.NewError(device.KindStream, name, "stream", fmt.Errorf("device not configured"))
	}

	var tick <-chan time.Time
	if s.paced {
		t := time.NewTicker(time.Duration(float64(s.packetSize) / float64(s.sampleRate) * float64(time.Second)))
		defer t.Stop()
		tick = t.C
	}

	for n := 0; s.limit == 0 || n < s.limit; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		s.fill()
		pkt := capture.Packet{
			I:           s.i,
			Q:           s.q,
			FirstSample: s.index,
			Reset:       n == 0 || (s.resetEvery > 0 && n%s.resetEvery == 0),
		}
		s.index += uint32(s.packetSize)
		if err := h(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SimDevice) Close() error {
	return nil
}
