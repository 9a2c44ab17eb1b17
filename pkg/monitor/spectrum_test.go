package monitor

import (
	"bytes"
	"math"
	"testing"

	"github.com/norasector/playsdr/pkg/capture"
)

func tone(n int, cyclesPerSample float64, start int) capture.Packet {
	p := capture.Packet{I: make([]int16, n), Q: make([]int16, n)}
	for k := 0; k < n; k++ {
		phase := 2 * math.Pi * cyclesPerSample * float64(start+k)
		p.I[k] = int16(16384 * math.Cos(phase))
		p.Q[k] = int16(16384 * math.Sin(phase))
	}
	return p
}

func TestSpectrumPeak(t *testing.T) {
	const (
		bins   = 64
		rate   = 64000
		center = 100e6
	)
	s, err := NewSpectrum(bins, center, rate)
	if err != nil {
		t.Fatal(err)
	}

	if s.Snapshot().Ready {
		t.Fatalf("snapshot ready before any samples")
	}
	// two short packets fill the window
	s.Observe(tone(40, 0.125, 0))
	if s.Snapshot().Ready {
		t.Fatalf("snapshot ready with %d of %d samples", 40, bins)
	}
	s.Observe(tone(40, 0.125, 40))

	snap := s.Snapshot()
	if !snap.Ready || len(snap.Bins) != bins {
		t.Fatalf("snapshot ready %v with %d bins", snap.Ready, len(snap.Bins))
	}

	peak := 0
	for i, b := range snap.Bins {
		if b.PowerDB > snap.Bins[peak].PowerDB {
			peak = i
		}
		if i > 0 && b.FreqHz <= snap.Bins[i-1].FreqHz {
			t.Fatalf("bins not in frequency order at %d", i)
		}
	}
	if want := center + rate/8.0; snap.Bins[peak].FreqHz != want {
		t.Errorf("peak at %v Hz, want %v", snap.Bins[peak].FreqHz, want)
	}
}

func TestSpectrumPNG(t *testing.T) {
	s, err := NewSpectrum(32, 433920000, 1e6)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PNG(); err == nil {
		t.Errorf("PNG rendered without samples")
	}
	s.Observe(tone(128, 0.25, 0))
	img, err := s.PNG()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Errorf("output is not a PNG")
	}
}

func TestNewSpectrumInvalid(t *testing.T) {
	if _, err := NewSpectrum(1, 0, 1e6); err == nil {
		t.Errorf("one-bin spectrum accepted")
	}
}
