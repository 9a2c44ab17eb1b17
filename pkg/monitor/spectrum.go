// Package monitor keeps a live view of the signal being captured.
package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/norasector/playsdr/pkg/capture"
)

const (
	mixAvg = 0.10
	// coherent gain of the Blackman window
	windowGain = 0.42
	floorDB    = -200
)

// Bin is one point of a power spectrum.
type Bin struct {
	FreqHz  float64 `json:"freq_hz"`
	PowerDB float64 `json:"power_db"`
}

type Snapshot struct {
	CenterFreq int   `json:"center_freq"`
	SampleRate int   `json:"sample_rate"`
	Ready      bool  `json:"ready"`
	Bins       []Bin `json:"bins"`
}

// Spectrum holds the most recent samples seen by the pipeline and computes an
// averaged power spectrum from them on request.
type Spectrum struct {
	mu         sync.Mutex
	bins       int
	centerFreq int
	sampleRate int
	samples    []complex128
	filled     int

	win          []float64
	fft          *fourier.CmplxFFT
	averagePower []float64
	averaged     bool
}

func NewSpectrum(bins, centerFreq, sampleRate int) (*Spectrum, error) {
	if bins < 2 {
		return nil, fmt.Errorf("invalid spectrum size %d", bins)
	}
	return &Spectrum{
		bins:         bins,
		centerFreq:   centerFreq,
		sampleRate:   sampleRate,
		samples:      make([]complex128, bins),
		win:          window.Blackman(bins),
		fft:          fourier.NewCmplxFFT(bins),
		averagePower: make([]float64, bins),
	}, nil
}

func sample(p capture.Packet, k int) complex128 {
	return complex(float64(p.I[k])/32768, float64(p.Q[k])/32768)
}

// Observe copies the tail of p. It does not retain the packet.
func (s *Spectrum) Observe(p capture.Packet) {
	n := p.Len()
	if n == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n >= s.bins {
		for k := 0; k < s.bins; k++ {
			s.samples[k] = sample(p, n-s.bins+k)
		}
		s.filled = s.bins
		return
	}
	copy(s.samples, s.samples[n:])
	for k := 0; k < n; k++ {
		s.samples[s.bins-n+k] = sample(p, k)
	}
	s.filled += n
	if s.filled > s.bins {
		s.filled = s.bins
	}
}

func (s *Spectrum) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := Snapshot{CenterFreq: s.centerFreq, SampleRate: s.sampleRate}
	if s.filled < s.bins {
		return ret
	}
	ret.Ready = true

	data := make([]complex128, s.bins)
	scale := complex(windowGain*float64(s.bins), 0)
	for i := range data {
		data[i] = s.samples[i] * complex(s.win[i], 0) / scale
	}
	coeffs := s.fft.Coefficients(nil, data)

	ret.Bins = make([]Bin, s.bins)
	for i := 0; i < s.bins; i++ {
		idx := s.fft.ShiftIdx(i)
		mag := cmplx.Abs(coeffs[idx])
		if s.averaged {
			s.averagePower[i] = (1.0-mixAvg)*s.averagePower[i] + mixAvg*mag
		} else {
			s.averagePower[i] = mag
		}

		power := float64(floorDB)
		if s.averagePower[i] > 0 {
			power = math.Max(20*math.Log10(s.averagePower[i]), floorDB)
		}
		ret.Bins[i] = Bin{
			FreqHz:  float64(s.centerFreq) + s.fft.Freq(idx)*float64(s.sampleRate),
			PowerDB: power,
		}
	}
	s.averaged = true
	return ret
}

func plotWithDefaults() *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Color = color.White
	p.X.Label.TextStyle.Color = color.White
	p.X.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.X.Tick.Color = color.White
	p.Y.Tick.Color = color.White
	p.X.Tick.Label.Color = color.White
	p.Y.Tick.Label.Color = color.White
	return p
}

// PNG renders the current spectrum.
func (s *Spectrum) PNG() ([]byte, error) {
	snap := s.Snapshot()
	if !snap.Ready {
		return nil, fmt.Errorf("not enough samples yet")
	}

	p := plotWithDefaults()
	p.Title.Text = fmt.Sprintf("%0.4f MHz", float64(snap.CenterFreq)/1e6)
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Max = 0
	p.Y.Min = -120
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(snap.Bins))
	for i, b := range snap.Bins {
		xys[i] = plotter.XY{X: b.FreqHz, Y: b.PowerDB}
	}
	if err := plotutil.AddLines(p, "spectrum", xys); err != nil {
		return nil, err
	}

	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
