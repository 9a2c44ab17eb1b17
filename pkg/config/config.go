// Package config holds the capture configuration read from YAML and
// overridden by command line flags.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DeviceRTLSDR = "rtlsdr"
	DeviceHackRF = "hackrf"
	DeviceFile   = "file"
	DeviceSim    = "sim"

	GainModeAGC    = "agc"
	GainModeManual = "manual"
)

// Bandwidths lists the accepted IF filter bandwidths in kHz.
var Bandwidths = []int{200, 300, 600, 1536, 5000, 6000, 7000, 8000}

// IFrequencies lists the accepted intermediate frequencies in kHz. Zero is zero-IF.
var IFrequencies = []int{0, 450, 1620, 2048}

type Config struct {
	Device           string `yaml:"device"`
	DeviceIndex      int    `yaml:"device_index"`
	Pull             bool   `yaml:"pull"`
	PlaybackLocation string `yaml:"playback_location"`
	PlaybackFormat   string `yaml:"playback_format"`
	PacketSize       int    `yaml:"packet_size"`

	CenterFreq int  `yaml:"center_freq"`
	SampleRate int  `yaml:"sample_rate"`
	Bandwidth  int  `yaml:"bandwidth_khz"`
	IF         int  `yaml:"if_khz"`
	LNA        bool `yaml:"lna"`
	Gain       Gain `yaml:"gain"`

	Output  Output `yaml:"output"`
	Verbose bool   `yaml:"verbose"`

	StatusServer struct {
		Port int `yaml:"port"`
		// SpectrumBins sizes the live spectrum view. Zero disables it.
		SpectrumBins int `yaml:"spectrum_bins"`
	} `yaml:"status_server"`
	InfluxDB InfluxDB `yaml:"influxdb"`
}

type Gain struct {
	Mode string `yaml:"mode"`
	// Value is the manual gain in dB.
	Value float64 `yaml:"value"`
	// SetPoint is the AGC target in dBFS, normally between 0 and -50.
	SetPoint int `yaml:"set_point"`
}

type Output struct {
	Resolution  int   `yaml:"resolution"`
	FlipIQ      bool  `yaml:"flip_iq"`
	SampleLimit int64 `yaml:"sample_limit"`
	NoClobber   bool  `yaml:"no_clobber"`
}

type InfluxDB struct {
	Host         string        `yaml:"host"`
	Token        string        `yaml:"token"`
	Organization string        `yaml:"organization"`
	Bucket       string        `yaml:"bucket"`
	Interval     time.Duration `yaml:"interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Device:         DeviceRTLSDR,
		PlaybackFormat: "cs16",
		PacketSize:     16384,
		CenterFreq:     100000000,
		SampleRate:     2048000,
		Bandwidth:      1536,
		IF:             0,
		Gain: Gain{
			Mode:     GainModeAGC,
			SetPoint: -30,
		},
		Output: Output{
			Resolution: 8,
		},
		InfluxDB: InfluxDB{
			Interval: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error
// when optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	contents, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling yaml file: %w", err)
	}
	return cfg, nil
}

func contains(set []int, v int) bool {
	i := sort.SearchInts(set, v)
	return i < len(set) && set[i] == v
}

func (c *Config) Validate() error {
	switch c.Device {
	case DeviceRTLSDR, DeviceHackRF, DeviceSim:
	case DeviceFile:
		if c.PlaybackLocation == "" {
			return fmt.Errorf("file device requires a playback location")
		}
		if c.PlaybackFormat != "cs16" && c.PlaybackFormat != "cs8" {
			return fmt.Errorf("invalid playback format %q (must be cs16 or cs8)", c.PlaybackFormat)
		}
	default:
		return fmt.Errorf("invalid device %q", c.Device)
	}

	if c.Output.Resolution != 8 && c.Output.Resolution != 16 {
		return fmt.Errorf("invalid result I/Q resolution %d (must be 8 or 16)", c.Output.Resolution)
	}
	if !contains(Bandwidths, c.Bandwidth) {
		return fmt.Errorf("invalid bandwidth %d kHz (must be one of %v)", c.Bandwidth, Bandwidths)
	}
	if !contains(IFrequencies, c.IF) {
		return fmt.Errorf("invalid IF frequency %d kHz (must be one of %v)", c.IF, IFrequencies)
	}
	if c.Gain.Mode != GainModeAGC && c.Gain.Mode != GainModeManual {
		return fmt.Errorf("invalid gain mode %q", c.Gain.Mode)
	}
	if c.CenterFreq <= 0 || c.SampleRate <= 0 {
		return fmt.Errorf("must specify center freq and sample rate")
	}
	if c.Output.SampleLimit < 0 {
		return fmt.Errorf("invalid sample count %d", c.Output.SampleLimit)
	}
	// 2 channels per pair, Resolution/8 bytes per channel
	if maxLimit := math.MaxInt64 / int64(c.Output.Resolution/4); c.Output.SampleLimit > maxLimit {
		return fmt.Errorf("sample count %d too large for %d-bit output (max %d)", c.Output.SampleLimit, c.Output.Resolution, maxLimit)
	}
	if c.StatusServer.SpectrumBins < 0 || c.StatusServer.SpectrumBins == 1 {
		return fmt.Errorf("invalid spectrum size %d", c.StatusServer.SpectrumBins)
	}
	if c.StatusServer.SpectrumBins > 0 && c.StatusServer.Port == 0 {
		return fmt.Errorf("spectrum view needs a status server port")
	}
	if c.PacketSize <= 0 {
		return fmt.Errorf("invalid packet size %d", c.PacketSize)
	}
	return nil
}
