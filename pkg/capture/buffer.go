package capture

import "fmt"

// MaxPacketLen bounds the number of sample pairs a single packet may carry.
const MaxPacketLen = 1 << 22

// Buffer is the reusable conversion buffer. It is reallocated only when the
// packet capacity is first learned, when it grows, or after Invalidate.
// It is not safe for concurrent use.
type Buffer struct {
	buf         []byte
	packetLen   int
	res         Resolution
	known       bool
	allocations int
}

// Ensure returns a slice of exactly packetLen*res.PairWidth() bytes.
func (b *Buffer) Ensure(packetLen int, res Resolution) ([]byte, error) {
	if packetLen <= 0 || packetLen > MaxPacketLen {
		return nil, newError(StageAllocation, "ensure capacity",
			fmt.Errorf("cannot allocate buffer for %d sample pairs (max %d)", packetLen, MaxPacketLen))
	}
	if !res.valid() {
		return nil, newError(StageAllocation, "ensure capacity", fmt.Errorf("invalid resolution %d", int(res)))
	}

	if b.known && packetLen == b.packetLen && res == b.res {
		return b.buf, nil
	}

	size := packetLen * res.PairWidth()
	if b.known && size <= cap(b.buf) {
		// Shorter frames reuse the larger backing array; capacity never shrinks.
		b.buf = b.buf[:size]
	} else {
		b.buf = make([]byte, size)
		b.allocations++
	}
	b.packetLen = packetLen
	b.res = res
	b.known = true
	return b.buf, nil
}

// Invalidate marks the capacity as unknown so the next Ensure re-derives it
// even when the packet length is unchanged.
func (b *Buffer) Invalidate() {
	b.known = false
	b.buf = nil
}

// Release drops the backing array.
func (b *Buffer) Release() {
	b.Invalidate()
	b.packetLen = 0
}

func (b *Buffer) Allocations() int {
	return b.allocations
}
