package capture

import (
	"fmt"
	"math"
)

// Resolution is the width of one output channel sample.
type Resolution int

const (
	Resolution8  Resolution = 8
	Resolution16 Resolution = 16
)

func ParseResolution(bits int) (Resolution, error) {
	switch bits {
	case 8:
		return Resolution8, nil
	case 16:
		return Resolution16, nil
	}
	return 0, fmt.Errorf("invalid I/Q resolution %d (must be 8 or 16)", bits)
}

// UnitWidth returns the number of bytes a single channel sample occupies in the output.
func (r Resolution) UnitWidth() int {
	if r == Resolution16 {
		return 2
	}
	return 1
}

// PairWidth returns the number of output bytes for one I/Q pair.
func (r Resolution) PairWidth() int {
	return 2 * r.UnitWidth()
}

// MaxSampleLimit is the largest sample pair count whose byte budget fits in an int64.
func (r Resolution) MaxSampleLimit() int64 {
	return math.MaxInt64 / int64(r.PairWidth())
}

func (r Resolution) String() string {
	switch r {
	case Resolution8:
		return "8-bit"
	case Resolution16:
		return "16-bit"
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

func (r Resolution) valid() bool {
	return r == Resolution8 || r == Resolution16
}

type ChannelOrder int

const (
	OrderIQ ChannelOrder = iota
	OrderQI
)

func OrderFromFlip(flip bool) ChannelOrder {
	if flip {
		return OrderQI
	}
	return OrderIQ
}

func (o ChannelOrder) String() string {
	if o == OrderQI {
		return "QI"
	}
	return "IQ"
}

// Packet is one batch of sample pairs delivered by a source. The slices belong
// to the source and are only valid for the duration of a single delivery.
type Packet struct {
	I           []int16
	Q           []int16
	FirstSample uint32
	Reset       bool
}

// Len returns the number of sample pairs in the packet.
func (p Packet) Len() int {
	if len(p.Q) < len(p.I) {
		return len(p.Q)
	}
	return len(p.I)
}
