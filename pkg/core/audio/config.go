// Package audio implements the PCM capture and playback pipeline for a
// realtime voice session: resampling and encoding of microphone samples to
// the upstream wire format, and gapless scheduling of streamed playback
// buffers.
package audio

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureConfig returns the wire format the upstream endpoint expects for
// microphone audio.
func CaptureConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// PlaybackConfig returns the format the upstream endpoint streams back.
func PlaybackConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// Seconds returns the playback duration of sampleCount samples.
func (c Config) Seconds(sampleCount int) float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(sampleCount) / float64(c.SampleRate*max(c.Channels, 1))
}
