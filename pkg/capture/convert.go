package capture

import "encoding/binary"

// Convert writes the packet's sample pairs into dst in the given resolution and
// channel order, starting at offset 0, and returns the number of bytes written.
// dst must hold at least p.Len()*res.PairWidth() bytes.
//
// The 8-bit path keeps the high-order byte of each sample (arithmetic shift by
// 8) and drops the rest. The 16-bit path copies samples verbatim as
// little-endian words. Neither path rounds or clips.
func Convert(dst []byte, p Packet, res Resolution, order ChannelOrder) int {
	n := p.Len()
	first, second := p.I, p.Q
	if order == OrderQI {
		first, second = p.Q, p.I
	}

	j := 0
	if res == Resolution16 {
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(dst[j:], uint16(first[i]))
			binary.LittleEndian.PutUint16(dst[j+2:], uint16(second[i]))
			j += 4
		}
		return j
	}

	for i := 0; i < n; i++ {
		dst[j] = byte(first[i] >> 8)
		dst[j+1] = byte(second[i] >> 8)
		j += 2
	}
	return j
}
