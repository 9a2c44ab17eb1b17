package file

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/device"
)

const name = "file"

type Format int

const (
	// FormatCS16 is interleaved little-endian signed 16-bit I/Q.
	FormatCS16 Format = iota
	// FormatCS8 is interleaved signed 8-bit I/Q, as recorded from a HackRF.
	FormatCS8
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "cs16":
		return FormatCS16, nil
	case "cs8":
		return FormatCS8, nil
	}
	return 0, fmt.Errorf("invalid playback format %q", s)
}

func (f Format) pairWidth() int {
	if f == FormatCS8 {
		return 2
	}
	return 4
}

// FileDevice plays back a raw I/Q recording one packet per read.
type FileDevice struct {
	readFile   io.ReadCloser
	format     Format
	packetSize int
	paced      bool

	raw       []byte
	i, q      []int16
	tick      *time.Ticker
	index     uint32
	delivered bool
	eof       bool
}

type Option func(f *FileDevice)

// WithPacing delivers packets at the configured sample rate instead of as fast
// as the file can be read.
func WithPacing() Option {
	return func(f *FileDevice) {
		f.paced = true
	}
}

func NewFileDevice(file string, format Format, packetSize int, opts ...Option) (*FileDevice, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, device.NewError(device.KindNotFound, name, "open", err)
	}
	return NewReaderDevice(f, format, packetSize, opts...), nil
}

func NewReaderDevice(r io.ReadCloser, format Format, packetSize int, opts ...Option) *FileDevice {
	ret := &FileDevice{
		readFile:   r,
		format:     format,
		packetSize: packetSize,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (f *FileDevice) MaxSampleRate() int {
	return 20e6
}

func (f *FileDevice) Configure(p device.Params) (int, error) {
	if err := device.CheckSampleRate(f, name, p.SampleRate); err != nil {
		return 0, err
	}
	if f.packetSize <= 0 {
		return 0, device.NewError(device.KindConfigure, name, "configure", fmt.Errorf("invalid packet size %d", f.packetSize))
	}
	f.raw = make([]byte, f.packetSize*f.format.pairWidth())
	f.i = make([]int16, f.packetSize)
	f.q = make([]int16, f.packetSize)

	if f.paced && p.SampleRate > 0 {
		period := time.Duration(float64(f.packetSize) / float64(p.SampleRate) * float64(time.Second))
		if period > 0 {
			f.tick = time.NewTicker(period)
		}
	}
	return f.packetSize, nil
}

// ReadPacket returns the next packet. A trailing partial packet is delivered
// with fewer pairs; the read after it returns io.EOF.
func (f *FileDevice) ReadPacket(ctx context.Context) (capture.Packet, error) {
	if f.raw == nil {
		return capture.Packet{}, device.NewError(device.KindStream, name, "read", fmt.Errorf("device not configured"))
	}
	if f.eof {
		return capture.Packet{}, io.EOF
	}

	if f.tick != nil {
		select {
		case <-ctx.Done():
			return capture.Packet{}, ctx.Err()
		case <-f.tick.C:
		}
	}

	n, err := io.ReadFull(f.readFile, f.raw)
	switch {
	case errors.Is(err, io.EOF):
		return capture.Packet{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		f.eof = true
	case err != nil:
		return capture.Packet{}, device.NewError(device.KindStream, name, "read", err)
	}

	width := f.format.pairWidth()
	pairs := n / width
	if pairs == 0 {
		return capture.Packet{}, io.EOF
	}
	for k := 0; k < pairs; k++ {
		off := k * width
		if f.format == FormatCS8 {
			f.i[k] = int16(int8(f.raw[off])) << 8
			f.q[k] = int16(int8(f.raw[off+1])) << 8
			continue
		}
		f.i[k] = int16(binary.LittleEndian.Uint16(f.raw[off:]))
		f.q[k] = int16(binary.LittleEndian.Uint16(f.raw[off+2:]))
	}

	pkt := capture.Packet{
		I:           f.i[:pairs],
		Q:           f.q[:pairs],
		FirstSample: f.index,
		Reset:       !f.delivered,
	}
	f.delivered = true
	f.index += uint32(pairs)
	return pkt, nil
}

func (f *FileDevice) Close() error {
	if f.tick != nil {
		f.tick.Stop()
	}
	return f.readFile.Close()
}
