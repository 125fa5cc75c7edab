// Package audio defines the canonical PCM frame format shared by the
// segmenter, speech adapters, and the orchestrator's WebSocket transport.
package audio

import "math"

// Audio constants. All inbound and outbound PCM on a call channel is
// 16 kHz mono signed 16-bit little-endian, framed at 100 ms.
const (
	SampleRate      = 16000                              // 16 kHz
	Channels        = 1                                  // mono
	BytesPerSample  = 2                                  // int16 LE
	FrameDurationMS = 100                                // canonical frame duration
	FrameSamples    = SampleRate * FrameDurationMS / 1000 // 1600 samples
	FrameBytes      = FrameSamples * BytesPerSample       // 3200 bytes

	// MaxFrameBytes is the largest frame the orchestrator accepts on the
	// wire; frames smaller than FrameBytes are permitted at utterance
	// boundaries but nothing larger than this is.
	MaxFrameBytes = 16000
)

// DecodeInt16LE unpacks little-endian PCM bytes into int16 samples.
// Complexity: O(n)
func DecodeInt16LE(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		lo := uint16(pcm[2*i])
		hi := uint16(pcm[2*i+1])
		out[i] = int16(lo | hi<<8)
	}
	return out
}

// EncodeInt16LE packs int16 samples into little-endian PCM bytes.
// Complexity: O(n)
func EncodeInt16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		u := uint16(s)
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}

// Int16ToFloat64 converts PCM int16 samples to float64 in [-1.0, 1.0].
// Complexity: O(n)
func Int16ToFloat64(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// RMS computes the root-mean-square energy of a block of int16 samples,
// expressed in the same units as the raw samples (not dB, not normalized).
// An empty block has zero energy.
// Complexity: O(n)
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// DurationMS returns the playback duration, in milliseconds, of a block
// of raw PCM bytes at the canonical sample rate.
func DurationMS(pcmBytes int) int64 {
	samples := pcmBytes / BytesPerSample
	return int64(samples) * 1000 / SampleRate
}
