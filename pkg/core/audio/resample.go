package audio

import (
	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// TargetSampleRate is the sample rate the upstream wire contract requires
// for microphone audio.
const TargetSampleRate = 16000

// CaptureChunkSize is the fixed number of native-rate samples per capture
// buffer. Each buffer yields exactly one outbound audio frame.
const CaptureChunkSize = 4096

// WireMimeType identifies outbound microphone audio payloads.
const WireMimeType = "audio/pcm;rate=16000"

// Resampler converts captured float samples at the device's native rate to
// 16kHz mono 16-bit signed PCM.
//
// Downsampling is nearest-neighbor (source index floor(i*ratio) for output
// index i), with no anti-aliasing filter. That is an accepted quality
// trade-off for simplicity; the upstream speech models tolerate it.
type Resampler struct {
	nativeRate int
}

// NewResampler creates a resampler for the given capture device rate.
func NewResampler(nativeRate int) (*Resampler, error) {
	if nativeRate < TargetSampleRate {
		return nil, core.NewConfigurationErrorWithParam(
			"capture sample rate must be at least 16000 Hz", "nativeRate")
	}
	return &Resampler{nativeRate: nativeRate}, nil
}

// NativeRate returns the configured device sample rate.
func (r *Resampler) NativeRate() int {
	return r.nativeRate
}

// Downsample converts one capture buffer of float samples in [-1, 1] to
// 16kHz PCM16. Output length is floor(len(samples) / (nativeRate/16000)).
func (r *Resampler) Downsample(samples []float32) []int16 {
	ratio := float64(r.nativeRate) / float64(TargetSampleRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		out[i] = floatToPCM16(samples[int(float64(i)*ratio)])
	}
	return out
}

// floatToPCM16 clamps a float sample to [-1, 1] and scales it into int16
// range. Negative samples scale by 0x8000 and non-negative by 0x7fff so the
// full asymmetric two's-complement range is used; this matches the wire
// contract exactly and must not be "fixed" to symmetric scaling.
func floatToPCM16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7fff)
}

// PCM16Bytes serializes samples as little-endian 16-bit PCM.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 parses little-endian 16-bit PCM into samples. Payloads with an
// odd byte count are rejected rather than silently truncated.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, core.NewDecodeError("pcm16 payload has odd byte count", nil)
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}
