package audio

import (
	"math"
	"testing"
)

func TestResampler_OutputLength(t *testing.T) {
	tests := []struct {
		nativeRate int
		inputLen   int
		wantLen    int
	}{
		{48000, 4096, 1365}, // floor(4096 / 3)
		{44100, 4096, 1486}, // floor(4096 / 2.75625)
		{32000, 4096, 2048},
		{16000, 4096, 4096},
		{48000, 0, 0},
		{48000, 1, 0},
	}

	for _, tt := range tests {
		r, err := NewResampler(tt.nativeRate)
		if err != nil {
			t.Fatalf("NewResampler(%d): %v", tt.nativeRate, err)
		}
		out := r.Downsample(make([]float32, tt.inputLen))
		if len(out) != tt.wantLen {
			t.Errorf("Downsample len(%d@%dHz) = %d, want %d",
				tt.inputLen, tt.nativeRate, len(out), tt.wantLen)
		}
	}
}

func TestResampler_RejectsUpsampling(t *testing.T) {
	if _, err := NewResampler(8000); err == nil {
		t.Fatal("expected error for 8kHz capture rate")
	}
}

func TestFloatToPCM16_Scaling(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},   // clamped
		{-2, -32768}, // clamped
		{0.5, 16383},
		{-0.5, -16384},
	}

	for _, tt := range tests {
		if got := floatToPCM16(tt.in); got != tt.want {
			t.Errorf("floatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDownsample_RangeProperty(t *testing.T) {
	r, err := NewResampler(48000)
	if err != nil {
		t.Fatal(err)
	}

	// Sweep well past full scale to exercise clamping.
	in := make([]float32, 4096)
	for i := range in {
		in[i] = float32(2.5 * math.Sin(float64(i)/7.0))
	}
	out := r.Downsample(in)
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	for i, s := range out {
		if s < -32768 || s > 32767 {
			t.Fatalf("sample %d out of int16 range: %d", i, s)
		}
	}
}

func TestDownsample_WireRoundTrip(t *testing.T) {
	r, err := NewResampler(16000)
	if err != nil {
		t.Fatal(err)
	}

	in := []float32{0, 0.5, -0.5, 1, -1}
	samples, err := DecodePCM16(PCM16Bytes(r.Downsample(in)))
	if err != nil {
		t.Fatal(err)
	}

	want := []int16{0, 16383, -16384, 32767, -32768}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected decode error for odd byte count")
	}
}
