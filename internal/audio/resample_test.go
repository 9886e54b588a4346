package audio

import "testing"

func TestResampleIdentity(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	out := Resample(samples, 8000, 8000)
	if &out[0] != &samples[0] {
		t.Error("Resample with equal rates should return the input slice")
	}
}

func TestResampleOutputLength(t *testing.T) {
	tests := []struct {
		inLen    int
		src, dst int
		want     int
	}{
		{16000, 16000, 8000, 8000},
		{16000, 8000, 16000, 32000},
		{100, 16000, 8000, 50},
		{101, 16000, 8000, 50}, // floor
		{3, 16000, 8000, 1},
		{0, 16000, 8000, 0},
		{480, 24000, 8000, 160},
	}
	for _, tt := range tests {
		in := make([]int16, tt.inLen)
		out := Resample(in, tt.src, tt.dst)
		if len(out) != tt.want {
			t.Errorf("Resample(len=%d, %d->%d) length = %d, want %d",
				tt.inLen, tt.src, tt.dst, len(out), tt.want)
		}
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Upsampling 2x should place interpolated values between neighbors.
	in := []int16{0, 100, 200, 300}
	out := Resample(in, 8000, 16000)
	if len(out) != 8 {
		t.Fatalf("output length = %d, want 8", len(out))
	}
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("out[%d] = %d, want %d", i, out[i], w)
		}
	}
}

func TestResampleDownsample(t *testing.T) {
	in := []int16{0, 10, 20, 30, 40, 50, 60, 70}
	out := Resample(in, 16000, 8000)
	want := []int16{0, 20, 40, 60}
	if len(out) != len(want) {
		t.Fatalf("output length = %d, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("out[%d] = %d, want %d", i, out[i], w)
		}
	}
}

func TestResampleDeterministic(t *testing.T) {
	in := []int16{3, -7, 120, 9000, -12345, 42}
	a := Resample(in, 16000, 8000)
	b := Resample(in, 16000, 8000)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("resample not deterministic at index %d", i)
		}
	}
}
