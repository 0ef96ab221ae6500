// Package wavsource implements the WAV-file playback producer: it
// satisfies the same (M, N, B) audio-block contract the live capture
// driver does, so a recording can be replayed through the beamforming
// pipeline.
package wavsource

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/emer/beamcam/tensor"
)

// ChannelOrder maps grid position (m, n) to the interleaved PCM
// channel index that microphone occupies in the WAV file. It is
// passed to Open once and never mutated by the Source afterward.
type ChannelOrder [][]int

// Sequential builds the common case: raw channel index = m*N + n,
// i.e. the WAV file's channels are already laid out row-major over
// the (M, N) grid.
func Sequential(m, n int) ChannelOrder {
	order := make(ChannelOrder, m)
	for mi := range order {
		order[mi] = make([]int, n)
		for ni := range order[mi] {
			order[mi][ni] = mi*n + ni
		}
	}
	return order
}

// Source reads sequential (M, N, B) blocks from a multichannel WAV
// file, applying the channel permutation and normalizing samples to
// [-1, +1].
type Source struct {
	file      *os.File
	decoder   *wav.Decoder
	buf       *audio.IntBuffer
	order     ChannelOrder
	m, n, b   int
	fullScale float64
}

// Open opens path and prepares it to be read in (m, n, blockSize)
// blocks using order to permute raw WAV channels onto the microphone
// grid. The WAV file's channel count must be at least m*n.
func Open(path string, m, n, blockSize int, order ChannelOrder) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavsource: opening %s: %w", path, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("wavsource: %s is not a valid WAV file", path)
	}
	if int(dec.NumChans) < m*n {
		f.Close()
		return nil, fmt.Errorf("wavsource: file has %d channels, need at least %d", dec.NumChans, m*n)
	}

	format := &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)}
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, blockSize*int(dec.NumChans)),
		SourceBitDepth: int(dec.BitDepth),
	}

	return &Source{
		file:      f,
		decoder:   dec,
		buf:       buf,
		order:     order,
		m:         m,
		n:         n,
		b:         blockSize,
		fullScale: float64(int64(1) << (dec.BitDepth - 1)),
	}, nil
}

// SampleRate returns the WAV file's sample rate in Hz.
func (s *Source) SampleRate() int { return int(s.decoder.SampleRate) }

// NextBlock reads the next blockSize frames and writes them,
// channel-permuted and normalized to [-1, +1], into dst, an (M, N,
// blockSize) tensor matching the shape Open was called with. Returns
// io.EOF once the file is exhausted.
func (s *Source) NextBlock(dst *tensor.Dense[float32]) error {
	read, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return fmt.Errorf("wavsource: reading PCM: %w", err)
	}
	if read == 0 {
		return io.EOF
	}

	// A short final read leaves the tail of the block zero-padded.
	numChans := s.buf.Format.NumChannels
	for m := 0; m < s.m; m++ {
		for n := 0; n < s.n; n++ {
			raw := s.order[m][n]
			fib := dst.Fiber(m, n)
			for b := 0; b < s.b; b++ {
				idx := b*numChans + raw
				if idx >= read {
					fib[b] = 0
					continue
				}
				fib[b] = float32(float64(s.buf.Data[idx]) / s.fullScale)
			}
		}
	}
	return nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error { return s.file.Close() }
