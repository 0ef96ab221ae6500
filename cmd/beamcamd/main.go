// Command beamcamd drives the beamforming core end to end: it loads a
// config file, builds the array geometry and FFT plan, pulls blocks
// from either a WAV file or a live microphone array, and logs a
// summary of the power map for each processed block. It performs no
// rendering; a video/heatmap consumer belongs in a separate process.
package main

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/emer/beamcam/beamform"
	"github.com/emer/beamcam/capture"
	"github.com/emer/beamcam/config"
	"github.com/emer/beamcam/tensor"
	"github.com/emer/beamcam/wavsource"
)

// audioSource is satisfied by both wavsource.Source and
// capture.Source; cmd/beamcamd selects one at startup based on
// whether a WAV file was configured.
type audioSource interface {
	NextBlock(dst *tensor.Dense[float32]) error
	Close() error
}

func main() {
	logger := log.New(os.Stderr)

	configPath := pflag.StringP("config", "c", "", "path to beamcam YAML config file")
	fLo := pflag.Int("f-lo", 0, "lower Hz bound of the collapsed band")
	fHi := pflag.Int("f-hi", 0, "upper Hz bound of the collapsed band (0 = Nyquist)")
	cli := config.Default()
	config.BindFlags(&cli, pflag.CommandLine)
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("loading config", "err", err)
		}
		cfg = loaded
	}
	config.Overlay(&cfg, cli, pflag.CommandLine)

	pipeline := beamform.NewPipeline(beamform.Config{
		FFTSize:      cfg.FFTSize,
		SampleRate:   cfg.SampleRate,
		M:            cfg.M,
		N:            cfg.N,
		MicSpacing:   cfg.MicSpacing,
		SpeedOfSound: cfg.SpeedOfSound,
		Theta:        cfg.ThetaSweep(),
		Phi:          cfg.PhiSweep(),
		Workers:      cfg.Workers,
	})
	if err := pipeline.Setup(); err != nil {
		logger.Fatal("pipeline setup", "err", err)
	}
	defer pipeline.Close()

	src, err := openSource(cfg)
	if err != nil {
		logger.Fatal("opening audio source", "err", err)
	}
	defer src.Close()

	if *fHi == 0 {
		*fHi = cfg.SampleRate / 2
	}

	logger.Info("beamcamd started",
		"m", cfg.M, "n", cfg.N, "fft_size", cfg.FFTSize,
		"theta_steps", pipeline.NumTheta(), "phi_steps", pipeline.NumPhi())

	audioIn, err := tensor.New[float32](cfg.M, cfg.N, cfg.FFTSize)
	if err != nil {
		logger.Fatal("allocating audio block", "err", err)
	}
	mapOut, err := tensor.New[float32](pipeline.NumTheta(), pipeline.NumPhi())
	if err != nil {
		logger.Fatal("allocating output map", "err", err)
	}

	frame := 0
	for {
		if err := src.NextBlock(audioIn); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("audio source exhausted", "frames", frame)
				return
			}
			logger.Fatal("reading audio block", "err", err)
		}

		if err := pipeline.ProcessBlock(audioIn, *fLo, *fHi, beamform.PostProcessDBFS, mapOut); err != nil {
			logger.Fatal("processing block", "err", err)
		}

		peakTheta, peakPhi, peakDB := argmax(mapOut)
		durations := pipeline.LastStageDurations()
		logger.Info("frame processed",
			"frame", frame, "peak_theta_idx", peakTheta, "peak_phi_idx", peakPhi, "peak_db", peakDB,
			"total", durations.Total, "fft", durations.ChannelTransform,
			"steer", durations.SteeredSum, "collapse", durations.CollapseConvert)
		frame++
	}
}

func openSource(cfg config.Config) (audioSource, error) {
	if cfg.WavFile != "" {
		order := wavsource.Sequential(cfg.M, cfg.N)
		return wavsource.Open(cfg.WavFile, cfg.M, cfg.N, cfg.FFTSize, order)
	}
	order := make([][]int, cfg.M)
	for m := range order {
		order[m] = make([]int, cfg.N)
		for n := range order[m] {
			order[m][n] = m*cfg.N + n
		}
	}
	return capture.Open(cfg.InputDevice, cfg.SampleRate, cfg.M, cfg.N, cfg.FFTSize, order)
}

func argmax(m *tensor.Dense[float32]) (ti, pi int, peak float32) {
	numTheta, numPhi := m.Dim(0), m.Dim(1)
	peak = m.At(0, 0)
	for t := 0; t < numTheta; t++ {
		for p := 0; p < numPhi; p++ {
			v := m.At(t, p)
			if v > peak {
				peak = v
				ti, pi = t, p
			}
		}
	}
	return ti, pi, peak
}
