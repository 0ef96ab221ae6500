// Package capture implements the live-microphone audio producer,
// using a blocking PortAudio stream so it can sit behind the same
// pull-based NextBlock contract as wavsource.
package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/emer/beamcam/tensor"
)

// Source is a blocking PortAudio input stream delivering interleaved
// float32 frames, de-interleaved on read into (M, N, blockSize)
// tensors via a channel_order permutation, the same contract
// wavsource.Source satisfies.
type Source struct {
	stream      *portaudio.Stream
	interleaved []float32
	order       [][]int
	m, n, b     int
}

// Open starts a blocking PortAudio input stream on the named device
// (empty string selects the default input device) at sampleRate,
// reading blockSize-frame blocks across m*n channels arranged per
// order.
func Open(deviceName string, sampleRate, m, n, blockSize int, order [][]int) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initializing portaudio: %w", err)
	}

	dev, err := inputDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	numChans := m * n
	interleaved := make([]float32, blockSize*numChans)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: numChans,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: blockSize,
	}

	stream, err := portaudio.OpenStream(params, interleaved)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: starting stream: %w", err)
	}

	return &Source{
		stream:      stream,
		interleaved: interleaved,
		order:       order,
		m:           m,
		n:           n,
		b:           blockSize,
	}, nil
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: listing devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("capture: no input device named %q", name)
}

// NextBlock blocks until one block of audio has been captured,
// writing it channel-permuted into dst, an (M, N, blockSize) tensor
// matching the shape Open was called with.
func (s *Source) NextBlock(dst *tensor.Dense[float32]) error {
	if err := s.stream.Read(); err != nil {
		return fmt.Errorf("capture: reading stream: %w", err)
	}

	numChans := s.m * s.n
	for m := 0; m < s.m; m++ {
		for n := 0; n < s.n; n++ {
			raw := s.order[m][n]
			fib := dst.Fiber(m, n)
			for b := 0; b < s.b; b++ {
				fib[b] = s.interleaved[b*numChans+raw]
			}
		}
	}
	return nil
}

// Close stops the stream and releases the PortAudio library handle.
func (s *Source) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: stopping stream: %w", err)
	}
	if err := s.stream.Close(); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("capture: closing stream: %w", err)
	}
	return portaudio.Terminate()
}
