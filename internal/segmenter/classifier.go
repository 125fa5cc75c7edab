package segmenter

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/voxbridge/callcore/internal/audio"
)

// ClassifierConfig tunes the voice-activity classifier (§4.C).
type ClassifierConfig struct {
	RMSThreshold     float64 // int16 RMS floor for "voice" (default 300)
	WindowMS         int     // sliding window length for RMS + spectral ratio (default 400)
	SpeechBandLowHz  float64 // default 80
	SpeechBandHighHz float64 // default 4000
	NoiseBandHz      float64 // default 5000
	SpectralRatio    float64 // speech-band energy must exceed noise-band energy by this factor (default 2.0)
}

// DefaultClassifierConfig returns the §4.C defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		RMSThreshold:     300,
		WindowMS:         400,
		SpeechBandLowHz:  80,
		SpeechBandHighHz: 4000,
		NoiseBandHz:      5000,
		SpectralRatio:    2.0,
	}
}

// Classifier implements the per-frame voice-activity test of §4.C: RMS
// energy over a sliding window plus a spectral check that suppresses
// high-frequency noise (keyboards, fans) that would otherwise trip a
// pure energy threshold.
type Classifier struct {
	cfg        ClassifierConfig
	windowSamp int
	minSamp    int // 100ms floor below which the window is "too young" to judge
	fft        *fourier.FFT
}

// NewClassifier builds a Classifier for the canonical 16kHz frame rate.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.RMSThreshold <= 0 {
		cfg = DefaultClassifierConfig()
	}
	windowSamp := cfg.WindowMS * audio.SampleRate / 1000
	minSamp := 100 * audio.SampleRate / 1000
	return &Classifier{
		cfg:        cfg,
		windowSamp: windowSamp,
		minSamp:    minSamp,
		fft:        fourier.NewFFT(windowSamp),
	}
}

// Classify decides whether the trailing window (the last WindowMS of
// audio, oldest-first) contains voice. window may be shorter than the
// configured window length near call start; per §4.C, a window with
// under 100ms of audio is optimistically classified as voice to avoid
// clipping speech onsets.
func (c *Classifier) Classify(window []int16) bool {
	if len(window) < c.minSamp {
		return true
	}

	rms := audio.RMS(window)
	if rms < c.cfg.RMSThreshold {
		return false
	}

	return c.spectralRatioOK(window)
}

// spectralRatioOK reports whether the speech-band [low,high] energy
// exceeds the above-noise-band energy by at least SpectralRatio.
func (c *Classifier) spectralRatioOK(window []int16) bool {
	samples := audio.Int16ToFloat64(window)

	n := c.windowSamp
	if len(samples) != n {
		// Use a correctly sized FFT for a short trailing window rather
		// than padding/truncating, which would distort the spectrum.
		n = len(samples)
	}
	fft := c.fft
	if n != c.windowSamp {
		fft = fourier.NewFFT(n)
	}

	coeffs := fft.Coefficients(nil, samples[:n])

	binHz := audio.SampleRate / float64(n)

	var speechEnergy, noiseEnergy float64
	for i, coef := range coeffs {
		freq := float64(i) * binHz
		mag := real(coef)*real(coef) + imag(coef)*imag(coef)
		switch {
		case freq >= c.cfg.SpeechBandLowHz && freq <= c.cfg.SpeechBandHighHz:
			speechEnergy += mag
		case freq > c.cfg.NoiseBandHz:
			noiseEnergy += mag
		}
	}

	if noiseEnergy <= 0 {
		return speechEnergy > 0
	}
	return speechEnergy > c.cfg.SpectralRatio*noiseEnergy
}

// WindowSamples returns how many int16 samples make up the configured
// sliding window, so callers can size their ring buffer.
func (c *Classifier) WindowSamples() int {
	return c.windowSamp
}
