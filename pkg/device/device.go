package device

import (
	"fmt"

	"github.com/norasector/playsdr/pkg/capture"
)

type GainMode int

const (
	GainAGC GainMode = iota
	GainManual
)

type Gain struct {
	Mode GainMode
	// Value is the manual gain in dB.
	Value float64
	// SetPoint is the AGC target in dBFS.
	SetPoint int
}

// Params carries everything a receiver needs before it starts producing packets.
type Params struct {
	CenterFreq   int
	SampleRate   int
	BandwidthKHz int
	IFKHz        int
	LNA          bool
	Gain         Gain
}

// Device is a receiver that feeds the capture pipeline. Implementations also
// satisfy exactly one of capture.Streamer or capture.Reader.
type Device interface {
	capture.Source
	// Configure tunes the receiver and returns the number of sample pairs per
	// packet, or 0 when that is only known once streaming starts.
	Configure(p Params) (int, error)
	MaxSampleRate() int
}

type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindConfigure
	KindStream
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConfigure:
		return "configure"
	case KindStream:
		return "stream"
	case KindUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error wraps a driver failure. Vendor result codes stay in Err.
type Error struct {
	Kind   ErrorKind
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Device, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, device, op string, err error) *Error {
	return &Error{Kind: kind, Device: device, Op: op, Err: err}
}

func CheckSampleRate(d Device, device string, rate int) error {
	if rate > d.MaxSampleRate() {
		return NewError(KindConfigure, device, "set sample rate",
			fmt.Errorf("sample rate %d > device max sample rate %d", rate, d.MaxSampleRate()))
	}
	return nil
}
