// Package config loads the construction-time parameters the beamform
// pipeline needs: array geometry, FFT size, and the theta/phi sweep.
// Values come from a YAML file with CLI flag overrides layered on top,
// mirroring how the rest of the retrieval pack wires config.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/emer/beamcam/steering"
)

// Sweep mirrors steering.Sweep with YAML tags; steering.Sweep itself
// stays free of serialization concerns.
type Sweep struct {
	Min  float32 `yaml:"min"`
	Max  float32 `yaml:"max"`
	Step float32 `yaml:"step"`
}

func (s Sweep) toSteering() steering.Sweep {
	return steering.Sweep{Min: s.Min, Max: s.Max, Step: s.Step}
}

// Config is the on-disk shape of a beamcam config file.
type Config struct {
	FFTSize      int     `yaml:"fft_size"`
	SampleRate   int     `yaml:"sample_rate"`
	M            int     `yaml:"m"`
	N            int     `yaml:"n"`
	MicSpacing   float32 `yaml:"mic_spacing"`
	SpeedOfSound float32 `yaml:"speed_of_sound"`
	Theta        Sweep   `yaml:"theta"`
	Phi          Sweep   `yaml:"phi"`
	Workers      int     `yaml:"workers"`

	// WavFile, when set, selects the wavsource producer over live
	// capture; InputDevice names the PortAudio device for capture.
	WavFile     string `yaml:"wav_file"`
	InputDevice string `yaml:"input_device"`
}

// Default returns the stock configuration: a 4x4 grid, 1024-point
// FFT, 343 m/s speed of sound, and a +-45 degree sweep at 3 degree
// resolution on both axes. A full-circle sweep at fine resolution is
// possible but makes the steering table enormous; the sweep is the
// knob to widen deliberately, per deployment.
func Default() Config {
	return Config{
		FFTSize:      1024,
		SampleRate:   44100,
		M:            4,
		N:            4,
		MicSpacing:   0.05,
		SpeedOfSound: 343.0,
		Theta:        Sweep{Min: -45, Max: 45, Step: 3},
		Phi:          Sweep{Min: -45, Max: 45, Step: 3},
		Workers:      0,
	}
}

// Load reads path, overlaying its fields onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// BindFlags registers pflag overrides for every scalar field onto fs,
// using cfg's current values as defaults. The theta and phi sweeps
// have no flags and come only from the file or the defaults. Call Load first, then BindFlags,
// then fs.Parse, so CLI flags win over the file.
func BindFlags(cfg *Config, fs *pflag.FlagSet) {
	fs.IntVar(&cfg.FFTSize, "fft-size", cfg.FFTSize, "FFT block size (power of two)")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "audio sample rate in Hz")
	fs.IntVar(&cfg.M, "m", cfg.M, "microphone rows")
	fs.IntVar(&cfg.N, "n", cfg.N, "microphone columns")
	fs.Float32Var(&cfg.MicSpacing, "mic-spacing", cfg.MicSpacing, "microphone spacing in meters")
	fs.Float32Var(&cfg.SpeedOfSound, "speed-of-sound", cfg.SpeedOfSound, "speed of sound in m/s")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker pool size (0 = runtime.NumCPU())")
	fs.StringVar(&cfg.WavFile, "wav-file", cfg.WavFile, "replay from this WAV file instead of live capture")
	fs.StringVar(&cfg.InputDevice, "input-device", cfg.InputDevice, "PortAudio input device name")
}

// Overlay copies every field whose flag the user explicitly set on fs
// from cli onto cfg, so the effective precedence is CLI flag > config
// file > default. Call it after fs.Parse, with cli being the Config
// that BindFlags bound the flags to.
func Overlay(cfg *Config, cli Config, fs *pflag.FlagSet) {
	if fs.Changed("fft-size") {
		cfg.FFTSize = cli.FFTSize
	}
	if fs.Changed("sample-rate") {
		cfg.SampleRate = cli.SampleRate
	}
	if fs.Changed("m") {
		cfg.M = cli.M
	}
	if fs.Changed("n") {
		cfg.N = cli.N
	}
	if fs.Changed("mic-spacing") {
		cfg.MicSpacing = cli.MicSpacing
	}
	if fs.Changed("speed-of-sound") {
		cfg.SpeedOfSound = cli.SpeedOfSound
	}
	if fs.Changed("workers") {
		cfg.Workers = cli.Workers
	}
	if fs.Changed("wav-file") {
		cfg.WavFile = cli.WavFile
	}
	if fs.Changed("input-device") {
		cfg.InputDevice = cli.InputDevice
	}
}

// ThetaSweep and PhiSweep translate the loaded config into
// steering.Sweep values (the YAML Sweep alias stays serialization-only).
func (c Config) ThetaSweep() steering.Sweep { return c.Theta.toSteering() }
func (c Config) PhiSweep() steering.Sweep   { return c.Phi.toSteering() }
