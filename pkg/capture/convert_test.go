package capture

import (
	"reflect"
	"testing"
)

func TestConvert(t *testing.T) {
	pkt := Packet{
		I: []int16{0x1234, -1, 0x7fff, -0x8000},
		Q: []int16{0x5678, 0x00ff, 0x0100, -0x0101},
	}
	tests := []struct {
		name  string
		res   Resolution
		order ChannelOrder
		want  []byte
	}{{
		"8-bit IQ",
		Resolution8, OrderIQ,
		[]byte{0x12, 0x56, 0xff, 0x00, 0x7f, 0x01, 0x80, 0xfe},
	}, {
		"8-bit QI",
		Resolution8, OrderQI,
		[]byte{0x56, 0x12, 0x00, 0xff, 0x01, 0x7f, 0xfe, 0x80},
	}, {
		"16-bit IQ",
		Resolution16, OrderIQ,
		[]byte{
			0x34, 0x12, 0x78, 0x56,
			0xff, 0xff, 0xff, 0x00,
			0xff, 0x7f, 0x00, 0x01,
			0x00, 0x80, 0xff, 0xfe,
		},
	}, {
		"16-bit QI",
		Resolution16, OrderQI,
		[]byte{
			0x78, 0x56, 0x34, 0x12,
			0xff, 0x00, 0xff, 0xff,
			0x00, 0x01, 0xff, 0x7f,
			0xff, 0xfe, 0x00, 0x80,
		},
	},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, pkt.Len()*tt.res.PairWidth())
			n := Convert(dst, pkt, tt.res, tt.order)
			if n != len(tt.want) {
				t.Fatalf("Convert() wrote %d bytes, want %d", n, len(tt.want))
			}
			if !reflect.DeepEqual(dst, tt.want) {
				t.Errorf("Convert() = % x, want % x", dst, tt.want)
			}
		})
	}
}

// Every 16-bit value must map to its arithmetic high byte.
func TestConvert8BitHighByte(t *testing.T) {
	i := make([]int16, 0, 1<<16)
	for v := -32768; v <= 32767; v++ {
		i = append(i, int16(v))
	}
	q := make([]int16, len(i))
	for k := range q {
		q[k] = i[len(i)-1-k]
	}

	dst := make([]byte, 2*len(i))
	Convert(dst, Packet{I: i, Q: q}, Resolution8, OrderIQ)
	for k := range i {
		if want := byte((i[k] >> 8) & 0xff); dst[2*k] != want {
			t.Fatalf("I sample %d: got %#x, want %#x", i[k], dst[2*k], want)
		}
		if want := byte((q[k] >> 8) & 0xff); dst[2*k+1] != want {
			t.Fatalf("Q sample %d: got %#x, want %#x", q[k], dst[2*k+1], want)
		}
	}
}

func TestConvertDeterministic(t *testing.T) {
	pkt := Packet{I: []int16{100, -200, 300}, Q: []int16{-400, 500, -600}}
	a := make([]byte, 12)
	b := make([]byte, 12)
	for k := range b {
		b[k] = 0xaa
	}
	Convert(a, pkt, Resolution16, OrderQI)
	Convert(b, pkt, Resolution16, OrderQI)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("outputs differ: % x vs % x", a, b)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		bits    int
		want    Resolution
		wantErr bool
	}{
		{8, Resolution8, false},
		{16, Resolution16, false},
		{12, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseResolution(tt.bits)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResolution(%d) error = %v, wantErr %v", tt.bits, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%d) = %v, want %v", tt.bits, got, tt.want)
		}
	}
}
