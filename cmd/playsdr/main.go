// playsdr records raw I/Q samples from an SDR receiver to a file or stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samuel/go-hackrf/hackrf"
	"github.com/spf13/cobra"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/config"
	"github.com/norasector/playsdr/pkg/device"
	"github.com/norasector/playsdr/pkg/device/file"
	hackrfDevice "github.com/norasector/playsdr/pkg/device/hackrf"
	"github.com/norasector/playsdr/pkg/device/rtlsdr"
	"github.com/norasector/playsdr/pkg/device/sim"
	"github.com/norasector/playsdr/pkg/monitor"
	"github.com/norasector/playsdr/pkg/status"
	"github.com/norasector/playsdr/pkg/util"
)

var (
	cfgFile     string
	flagCfg     = config.DefaultConfig()
	lnaFlag     int
	flipFlag    int
	verboseFlag int
	gainFlag    float64
	pace        bool
	exitCode    int
)

var rootCmd = &cobra.Command{
	Use:   "playsdr [flags] filename",
	Short: "an I/Q recorder for SDR receivers",
	Long: `playsdr records raw interleaved I/Q samples from an SDR receiver.

The output has no header: unsigned 8-bit (high byte of each 16-bit sample) or
signed 16-bit little-endian samples, in I,Q or Q,I order. A filename of '-'
writes samples to stdout.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = run(cmd, args[0])
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "playsdr.yaml", "YAML config file")
	f.VarP(config.NewSuffixedInt(&flagCfg.CenterFreq), "frequency", "f", "frequency to tune to (Hz, k/M/G suffixes)")
	f.VarP(config.NewSuffixedInt(&flagCfg.SampleRate), "samplerate", "s", "sample rate (Hz, k/M/G suffixes)")
	f.IntVarP(&flagCfg.Bandwidth, "bandwidth", "b", flagCfg.Bandwidth, fmt.Sprintf("bandwidth in kHz, one of %v", config.Bandwidths))
	f.IntVarP(&flagCfg.IF, "if", "i", flagCfg.IF, fmt.Sprintf("IF in kHz (0 = zero IF), one of %v", config.IFrequencies))
	f.Float64VarP(&gainFlag, "gain", "g", 0, "manual gain in dB (disables AGC)")
	f.IntVarP(&flagCfg.Gain.SetPoint, "setpoint", "r", flagCfg.Gain.SetPoint, "AGC set point in dBFS, normally 0 to -50")
	f.IntVarP(&lnaFlag, "lna", "l", 0, "LNA enable (0 disabled, 1 enabled)")
	f.IntVarP(&flipFlag, "flip", "y", 0, "flip complex I-Q => Q-I (0 disabled, 1 enabled)")
	f.IntVarP(&flagCfg.Output.Resolution, "resolution", "x", flagCfg.Output.Resolution, "result I/Q bit resolution, 8 (uint8) or 16 (int16)")
	f.VarP(config.NewSuffixedInt64(&flagCfg.Output.SampleLimit), "samples", "n", "number of sample pairs to read (0 = infinite)")
	f.IntVarP(&verboseFlag, "verbose", "v", 0, "verbose mode, prints debug information (0 disabled, 1 enabled)")

	f.StringVar(&flagCfg.Device, "device", flagCfg.Device, "receiver: rtlsdr, hackrf, file or sim")
	f.IntVarP(&flagCfg.DeviceIndex, "device-index", "d", 0, "RTL-SDR device index")
	f.BoolVar(&flagCfg.Pull, "pull", false, "read packets synchronously instead of by callback (rtlsdr)")
	f.StringVar(&flagCfg.PlaybackLocation, "playback", "", "raw I/Q file to play back (implies --device=file)")
	f.StringVar(&flagCfg.PlaybackFormat, "playback-format", flagCfg.PlaybackFormat, "playback file format: cs16 or cs8")
	f.IntVar(&flagCfg.PacketSize, "packet-size", flagCfg.PacketSize, "sample pairs per packet for file and sim devices")
	f.BoolVar(&pace, "pace", false, "deliver file and sim packets at the sample rate")
	f.BoolVar(&flagCfg.Output.NoClobber, "no-clobber", false, "refuse to overwrite an existing output file")
	f.IntVar(&flagCfg.StatusServer.Port, "status-port", 0, "serve capture stats over HTTP on this port (0 disabled)")
	f.IntVar(&flagCfg.StatusServer.SpectrumBins, "spectrum-bins", 0, "FFT size of the live spectrum on the status server (0 disabled, needs --status-port)")
	f.StringVar(&flagCfg.InfluxDB.Host, "influx-host", "", "InfluxDB URL for capture metrics")
	f.StringVar(&flagCfg.InfluxDB.Token, "influx-token", "", "InfluxDB token")
	f.StringVar(&flagCfg.InfluxDB.Organization, "influx-org", "", "InfluxDB organization")
	f.StringVar(&flagCfg.InfluxDB.Bucket, "influx-bucket", "", "InfluxDB bucket")
}

// loadConfig reads the config file and applies any flag the user set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"frequency", func() { cfg.CenterFreq = flagCfg.CenterFreq }},
		{"samplerate", func() { cfg.SampleRate = flagCfg.SampleRate }},
		{"bandwidth", func() { cfg.Bandwidth = flagCfg.Bandwidth }},
		{"if", func() { cfg.IF = flagCfg.IF }},
		{"gain", func() { cfg.Gain.Mode, cfg.Gain.Value = config.GainModeManual, gainFlag }},
		{"setpoint", func() { cfg.Gain.Mode, cfg.Gain.SetPoint = config.GainModeAGC, flagCfg.Gain.SetPoint }},
		{"lna", func() { cfg.LNA = lnaFlag == 1 }},
		{"flip", func() { cfg.Output.FlipIQ = flipFlag == 1 }},
		{"resolution", func() { cfg.Output.Resolution = flagCfg.Output.Resolution }},
		{"samples", func() { cfg.Output.SampleLimit = flagCfg.Output.SampleLimit }},
		{"verbose", func() { cfg.Verbose = verboseFlag == 1 }},
		{"device", func() { cfg.Device = flagCfg.Device }},
		{"device-index", func() { cfg.DeviceIndex = flagCfg.DeviceIndex }},
		{"pull", func() { cfg.Pull = flagCfg.Pull }},
		{"playback", func() { cfg.PlaybackLocation = flagCfg.PlaybackLocation }},
		{"playback-format", func() { cfg.PlaybackFormat = flagCfg.PlaybackFormat }},
		{"packet-size", func() { cfg.PacketSize = flagCfg.PacketSize }},
		{"no-clobber", func() { cfg.Output.NoClobber = flagCfg.Output.NoClobber }},
		{"status-port", func() { cfg.StatusServer.Port = flagCfg.StatusServer.Port }},
		{"spectrum-bins", func() { cfg.StatusServer.SpectrumBins = flagCfg.StatusServer.SpectrumBins }},
		{"influx-host", func() { cfg.InfluxDB.Host = flagCfg.InfluxDB.Host }},
		{"influx-token", func() { cfg.InfluxDB.Token = flagCfg.InfluxDB.Token }},
		{"influx-org", func() { cfg.InfluxDB.Organization = flagCfg.InfluxDB.Organization }},
		{"influx-bucket", func() { cfg.InfluxDB.Bucket = flagCfg.InfluxDB.Bucket }},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			o.apply()
		}
	}

	if cfg.PlaybackLocation != "" {
		cfg.Device = config.DeviceFile
	}
	return cfg, nil
}

func logSummary(cfg *config.Config) {
	log.Debug().
		Str("device", cfg.Device).
		Bool("lna", cfg.LNA).
		Int("samp_rate", cfg.SampleRate).
		Str("gain_mode", cfg.Gain.Mode).
		Float64("gain", cfg.Gain.Value).
		Int("agc_set_point", cfg.Gain.SetPoint).
		Int("frequency_hz", cfg.CenterFreq).
		Str("frequency", util.MHzToString(cfg.CenterFreq)).
		Int("bandwidth_khz", cfg.Bandwidth).
		Int("if_khz", cfg.IF).
		Int("resolution_bits", cfg.Output.Resolution).
		Bool("flip_iq", cfg.Output.FlipIQ).
		Int64("sample_limit", cfg.Output.SampleLimit).
		Msg("init summary")
}

func newDevice(cfg *config.Config) (device.Device, error) {
	switch cfg.Device {
	case config.DeviceRTLSDR:
		if cfg.Pull {
			return rtlsdr.NewSyncDevice(cfg.DeviceIndex), nil
		}
		return rtlsdr.NewAsyncDevice(cfg.DeviceIndex), nil
	case config.DeviceHackRF:
		return hackrfDevice.NewHackRFDevice(), nil
	case config.DeviceFile:
		format, err := file.ParseFormat(cfg.PlaybackFormat)
		if err != nil {
			return nil, err
		}
		var opts []file.Option
		if pace {
			opts = append(opts, file.WithPacing())
		}
		return file.NewFileDevice(cfg.PlaybackLocation, format, cfg.PacketSize, opts...)
	case config.DeviceSim:
		var opts []sim.Option
		if pace {
			opts = append(opts, sim.WithPacing())
		}
		return sim.NewSimDevice(cfg.PacketSize, opts...), nil
	}
	return nil, fmt.Errorf("invalid device %q", cfg.Device)
}

func deviceParams(cfg *config.Config) device.Params {
	p := device.Params{
		CenterFreq:   cfg.CenterFreq,
		SampleRate:   cfg.SampleRate,
		BandwidthKHz: cfg.Bandwidth,
		IFKHz:        cfg.IF,
		LNA:          cfg.LNA,
		Gain: device.Gain{
			Mode:     device.GainAGC,
			Value:    cfg.Gain.Value,
			SetPoint: cfg.Gain.SetPoint,
		},
	}
	if cfg.Gain.Mode == config.GainModeManual {
		p.Gain.Mode = device.GainManual
	}
	return p
}

func run(cmd *cobra.Command, filename string) int {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error().Err(err).Str("stage", capture.StageConfig.String()).Msg("failed to load configuration")
		return capture.ExitConfig
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Str("stage", capture.StageConfig.String()).Msg("invalid configuration")
		return capture.ExitConfig
	}
	if cfg.Verbose {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}
	logSummary(cfg)

	if cfg.Device == config.DeviceHackRF {
		if err := hackrf.Init(); err != nil {
			log.Error().Err(err).Str("device", cfg.Device).Str("stage", capture.StageSource.String()).Msg("failed to initialize hackRF")
			return capture.ExitSource
		}
		defer hackrf.Exit()
	}

	log.Info().Str("device", cfg.Device).Msg("initializing device...")
	dev, err := newDevice(cfg)
	if err != nil {
		log.Error().Err(err).Str("device", cfg.Device).Str("stage", capture.StageSource.String()).Msg("failed to create device")
		return capture.ExitSource
	}
	samplesPerPacket, err := dev.Configure(deviceParams(cfg))
	if err != nil {
		dev.Close()
		log.Error().Err(err).Str("device", cfg.Device).Str("stage", capture.StageSource.String()).Msg("failed to start device")
		return capture.ExitSource
	}
	log.Debug().Int("samples_per_packet", samplesPerPacket).Msg("device configured")

	sink, err := capture.OpenSink(filename, capture.SinkOptions{NoClobber: cfg.Output.NoClobber})
	if err != nil {
		dev.Close()
		log.Error().Err(err).Str("stage", capture.StageSink.String()).Msgf("Failed to open %s", filename)
		return capture.ExitSink
	}

	pipelineOpts := []capture.PipelineOption{capture.WithLogger(log.Logger)}
	var spectrum *monitor.Spectrum
	if cfg.StatusServer.SpectrumBins > 0 {
		// validated above
		spectrum, _ = monitor.NewSpectrum(cfg.StatusServer.SpectrumBins, cfg.CenterFreq, cfg.SampleRate)
		pipelineOpts = append(pipelineOpts, capture.WithTap(spectrum.Observe))
	}

	res, _ := capture.ParseResolution(cfg.Output.Resolution)
	pipeline, err := capture.NewPipeline(sink, capture.Options{
		Resolution:  res,
		Order:       capture.OrderFromFlip(cfg.Output.FlipIQ),
		SampleLimit: cfg.Output.SampleLimit,
	}, pipelineOpts...)
	if err != nil {
		dev.Close()
		sink.Close()
		log.Error().Err(err).Str("stage", capture.StageConfig.String()).Msg("failed to create pipeline")
		return capture.ExitConfig
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE)
	defer signal.Stop(sigChan)

	services := []capture.Service{{
		Name: "signals",
		Run: func(ctx context.Context) error {
			select {
			case sig := <-sigChan:
				log.Info().Str("signal", sig.String()).Msg("Signal caught, exiting!")
				pipeline.Cancel()
			case <-ctx.Done():
			}
			return nil
		},
	}}

	if cfg.InfluxDB.Host != "" {
		client := influxdb2.NewClient(cfg.InfluxDB.Host, cfg.InfluxDB.Token)
		defer client.Close()
		reporter := capture.NewStatsReporter(pipeline,
			client.WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket),
			cfg.InfluxDB.Interval,
			map[string]string{
				"device":    cfg.Device,
				"frequency": util.MHzToString(cfg.CenterFreq),
			})
		services = append(services, capture.Service{Name: "influxdb", Run: reporter.Run})
	}

	if cfg.StatusServer.Port != 0 {
		var srvOpts []status.ServerOption
		if spectrum != nil {
			srvOpts = append(srvOpts, status.WithSpectrum(spectrum))
		}
		srv := status.NewServer(cfg.StatusServer.Port, pipeline, srvOpts...)
		services = append(services, capture.Service{Name: "status server", Run: srv.Run})
	}

	log.Info().Str("resolution", res.String()).Str("order", capture.OrderFromFlip(cfg.Output.FlipIQ).String()).Msg("Writing samples...")
	result := pipeline.RunWithServices(context.Background(), dev, services...)

	switch {
	case result.Outcome == capture.OutcomeCancelled:
		log.Info().Msg("User cancel, exiting...")
	case result.Outcome == capture.OutcomeFailed && errors.Is(result.Err, syscall.EPIPE):
		log.Info().Msg("Output closed, exiting...")
		return capture.ExitOK
	case result.Outcome == capture.OutcomeFailed:
		stage, _ := capture.StageOf(result.Err)
		log.Error().Err(result.Err).Str("stage", stage.String()).Msg("Library error, exiting...")
	}
	log.Info().
		Str("outcome", result.Outcome.String()).
		Int64("bytes", result.Stats.Bytes).
		Int64("packets", result.Stats.Packets).
		Msg("done")
	return result.ExitCode()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Str("stage", capture.StageConfig.String()).Msg("invalid arguments")
		rootCmd.Usage()
		os.Exit(capture.ExitConfig)
	}
	os.Exit(exitCode)
}
