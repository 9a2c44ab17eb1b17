package rtlsdr

import (
	"context"
	"fmt"
	"sync"

	gsdr "github.com/jpoirier/gortlsdr"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/device"
)

const (
	name          = "rtlsdr"
	maxSampleRate = 3.2e6
	bufLength     = gsdr.DefaultBufLength
)

// base owns the dongle and the per-delivery I/Q scratch. The dongle produces
// offset-binary 8-bit pairs which are widened so the high byte carries the
// sample.
type base struct {
	deviceIdx int
	dev       *gsdr.Context

	mu        sync.Mutex
	i, q      []int16
	delivered bool
	index     uint32
}

func (b *base) MaxSampleRate() int {
	return maxSampleRate
}

func (b *base) open() error {
	if c := gsdr.GetDeviceCount(); c == 0 {
		return device.NewError(device.KindNotFound, name, "open", fmt.Errorf("no RTL-SDR devices found"))
	} else if b.deviceIdx >= c {
		return device.NewError(device.KindNotFound, name, "open",
			fmt.Errorf("device index %d out of range (found %d devices)", b.deviceIdx, c))
	}

	dev, err := gsdr.Open(b.deviceIdx)
	if err != nil {
		return device.NewError(device.KindNotFound, name, "open", err)
	}
	b.dev = dev
	return nil
}

// configure applies p. The RTL-SDR has no switchable LNA, so p.LNA is ignored.
func (b *base) configure(d device.Device, p device.Params) (int, error) {
	if err := device.CheckSampleRate(d, name, p.SampleRate); err != nil {
		return 0, err
	}
	if p.IFKHz != 0 {
		return 0, device.NewError(device.KindUnsupported, name, "set IF", fmt.Errorf("only zero-IF is supported, got %d kHz", p.IFKHz))
	}
	if err := b.open(); err != nil {
		return 0, err
	}

	steps := []struct {
		op string
		fn func() error
	}{
		{"set center freq", func() error { return b.dev.SetCenterFreq(p.CenterFreq) }},
		{"set sample rate", func() error { return b.dev.SetSampleRate(p.SampleRate) }},
		{"set tuner bandwidth", func() error { return b.dev.SetTunerBw(p.BandwidthKHz * 1000) }},
		{"set gain mode", func() error { return b.dev.SetTunerGainMode(p.Gain.Mode == device.GainManual) }},
		{"set gain", func() error {
			if p.Gain.Mode == device.GainManual {
				// tenths of a dB
				return b.dev.SetTunerGain(int(p.Gain.Value * 10))
			}
			return b.dev.SetAgcMode(true)
		}},
		{"reset buffer", b.dev.ResetBuffer},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.dev.Close()
			b.dev = nil
			return 0, device.NewError(device.KindConfigure, name, step.op, err)
		}
	}

	return bufLength / 2, nil
}

func (b *base) packet(buf []byte) capture.Packet {
	n := len(buf) / 2
	if cap(b.i) < n {
		b.i = make([]int16, n)
		b.q = make([]int16, n)
	}
	b.i, b.q = b.i[:n], b.q[:n]
	for k := 0; k < n; k++ {
		b.i[k] = int16(int(buf[2*k])-128) << 8
		b.q[k] = int16(int(buf[2*k+1])-128) << 8
	}

	pkt := capture.Packet{I: b.i, Q: b.q, FirstSample: b.index, Reset: !b.delivered}
	b.delivered = true
	b.index += uint32(n)
	return pkt
}

// AsyncDevice delivers packets from the librtlsdr async reader.
type AsyncDevice struct {
	base
	guard device.StreamGuard
}

func NewAsyncDevice(deviceIdx int) *AsyncDevice {
	return &AsyncDevice{base: base{deviceIdx: deviceIdx}}
}

func (r *AsyncDevice) Configure(p device.Params) (int, error) {
	return r.configure(r, p)
}

// Stream returns only after the ctx watcher has exited, so Close never
// releases the handle under a pending CancelAsync.
func (r *AsyncDevice) Stream(ctx context.Context, h capture.PacketHandler) error {
	var (
		handlerErr error
		cancelOnce sync.Once
	)
	cancelAsync := func() {
		cancelOnce.Do(func() {
			if r.dev != nil {
				r.dev.CancelAsync()
			}
		})
	}
	if err := r.guard.Begin(cancelAsync); err != nil {
		return err
	}
	defer r.guard.End()

	if r.dev == nil {
		return device.NewError(device.KindStream, name, "stream", fmt.Errorf("device not configured"))
	}

	stopped := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			cancelAsync()
		case <-stopped:
		}
	}()
	defer func() {
		close(stopped)
		<-watcherDone
	}()

	cb := func(buf []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if handlerErr != nil {
			return
		}
		if err := h(r.packet(buf)); err != nil {
			handlerErr = err
			// librtlsdr allows cancelling from inside its callback
			cancelAsync()
		}
	}

	err := r.dev.ReadAsync(cb, nil, 0, bufLength)

	r.mu.Lock()
	defer r.mu.Unlock()
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil && ctx.Err() == nil {
		return device.NewError(device.KindStream, name, "read async", err)
	}
	return ctx.Err()
}

// Close stops a running Stream, waits for it to return and releases the dongle.
func (r *AsyncDevice) Close() error {
	r.guard.Shutdown()
	if r.dev == nil {
		return nil
	}
	err := r.dev.Close()
	r.dev = nil
	return err
}

// SyncDevice blocks in librtlsdr's synchronous reader for each packet.
type SyncDevice struct {
	base
	raw []byte
}

func NewSyncDevice(deviceIdx int) *SyncDevice {
	return &SyncDevice{base: base{deviceIdx: deviceIdx}}
}

func (r *SyncDevice) Configure(p device.Params) (int, error) {
	n, err := r.configure(r, p)
	if err != nil {
		return 0, err
	}
	r.raw = make([]byte, bufLength)
	return n, nil
}

// ReadPacket does not observe ctx while blocked in the driver.
func (r *SyncDevice) ReadPacket(ctx context.Context) (capture.Packet, error) {
	if r.dev == nil {
		return capture.Packet{}, device.NewError(device.KindStream, name, "read sync", fmt.Errorf("device not configured"))
	}
	n, err := r.dev.ReadSync(r.raw, len(r.raw))
	if err != nil {
		return capture.Packet{}, device.NewError(device.KindStream, name, "read sync", err)
	}
	if n < len(r.raw) {
		return capture.Packet{}, device.NewError(device.KindStream, name, "read sync",
			fmt.Errorf("short read, samples lost: %d of %d bytes", n, len(r.raw)))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packet(r.raw[:n]), nil
}

func (r *SyncDevice) Close() error {
	if r.dev == nil {
		return nil
	}
	err := r.dev.Close()
	r.dev = nil
	return err
}
