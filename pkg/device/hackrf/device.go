package hackrf

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/samuel/go-hackrf/hackrf"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/device"
)

const (
	name          = "hackrf"
	maxSampleRate = 20e6

	defaultLNAGain = 16
	defaultVGAGain = 20
)

// HackRFDevice streams signed 8-bit pairs from a HackRF. Callers must have
// run hackrf.Init before Configure.
type HackRFDevice struct {
	device *hackrf.Device
	guard  device.StreamGuard

	mu        sync.Mutex
	i, q      []int16
	delivered bool
	index     uint32
}

func NewHackRFDevice() *HackRFDevice {
	return &HackRFDevice{}
}

func (h *HackRFDevice) MaxSampleRate() int {
	return maxSampleRate
}

// SplitGain maps a total manual gain in dB onto the LNA (0-40 dB, 8 dB steps)
// and VGA (0-62 dB, 2 dB steps) stages, filling the LNA first.
func SplitGain(db float64) (lna, vga int) {
	total := int(math.Round(db))
	if total < 0 {
		total = 0
	}
	lna = total / 8 * 8
	if lna > 40 {
		lna = 40
	}
	vga = (total - lna) / 2 * 2
	if vga > 62 {
		vga = 62
	}
	return lna, vga
}

// Configure opens the first HackRF. There is no hardware AGC, so AGC mode uses
// fixed mid-range gains and leaves the set point unused.
func (h *HackRFDevice) Configure(p device.Params) (int, error) {
	if err := device.CheckSampleRate(h, name, p.SampleRate); err != nil {
		return 0, err
	}
	if p.IFKHz != 0 {
		return 0, device.NewError(device.KindUnsupported, name, "set IF", fmt.Errorf("only zero-IF is supported, got %d kHz", p.IFKHz))
	}

	dev, err := hackrf.Open()
	if err != nil {
		return 0, device.NewError(device.KindNotFound, name, "open", err)
	}
	h.device = dev

	lna, vga := defaultLNAGain, defaultVGAGain
	if p.Gain.Mode == device.GainManual {
		lna, vga = SplitGain(p.Gain.Value)
	}

	steps := []struct {
		op string
		fn func() error
	}{
		{"set freq", func() error { return h.device.SetFreq(uint64(p.CenterFreq)) }},
		{"set sample rate", func() error { return h.device.SetSampleRate(float64(p.SampleRate)) }},
		{"set baseband filter", func() error { return h.device.SetBasebandFilterBandwidth(p.BandwidthKHz * 1000) }},
		{"set lna gain", func() error { return h.device.SetLNAGain(lna) }},
		{"set vga gain", func() error { return h.device.SetVGAGain(vga) }},
		{"set amp", func() error { return h.device.SetAmpEnable(p.LNA) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			h.device.Close()
			h.device = nil
			return 0, device.NewError(device.KindConfigure, name, step.op, err)
		}
	}

	// Transfer size is chosen by libhackrf and learned from the first packet.
	return 0, nil
}

func (h *HackRFDevice) packet(buf []byte) capture.Packet {
	n := len(buf) / 2
	if cap(h.i) < n {
		h.i = make([]int16, n)
		h.q = make([]int16, n)
	}
	h.i, h.q = h.i[:n], h.q[:n]
	for k := 0; k < n; k++ {
		h.i[k] = int16(int8(buf[2*k])) << 8
		h.q[k] = int16(int8(buf[2*k+1])) << 8
	}

	pkt := capture.Packet{I: h.i, Q: h.q, FirstSample: h.index, Reset: !h.delivered}
	h.delivered = true
	h.index += uint32(n)
	return pkt
}

// Stream starts RX and blocks until ctx is done, Close is called or the
// handler refuses a packet. RX is stopped before it returns.
func (h *HackRFDevice) Stream(ctx context.Context, handle capture.PacketHandler) error {
	quit := make(chan struct{})
	var quitOnce sync.Once
	if err := h.guard.Begin(func() { quitOnce.Do(func() { close(quit) }) }); err != nil {
		return err
	}
	defer h.guard.End()

	if h.device == nil {
		return device.NewError(device.KindStream, name, "stream", fmt.Errorf("device not configured"))
	}

	stop := make(chan error, 1)
	err := h.device.StartRX(func(buf []byte) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if err := handle(h.packet(buf)); err != nil {
			select {
			case stop <- err:
			default:
			}
			return err
		}
		return nil
	})
	if err != nil {
		return device.NewError(device.KindStream, name, "start rx", err)
	}
	// StopRX fails harmlessly when the callback already ended the transfer.
	defer h.device.StopRX()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-quit:
		return device.ErrClosed
	case err := <-stop:
		return err
	}
}

// Close stops a running Stream, waits for it to return and releases the device.
func (h *HackRFDevice) Close() error {
	h.guard.Shutdown()
	if h.device == nil {
		return nil
	}
	err := h.device.Close()
	h.device = nil
	return err
}
