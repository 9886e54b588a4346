// Package audio provides the in-process audio path for corrections:
// G.711 μ-law companding, linear resampling, whisper attenuation and
// fixed-size framing for Twilio Media Streams.
package audio

// G.711 μ-law constants. These must match the standard exactly so that
// Twilio's decoder (and any other standards-compliant endpoint) can play
// what we encode.
const (
	muLawBias = 0x84  // 132, added before segment search
	muLawClip = 32635 // maximum magnitude before companding
)

// TelephonySampleRate is the sample rate of Twilio Media Streams audio.
const TelephonySampleRate = 8000

// EncodeMuLaw compands 16-bit linear samples into μ-law bytes, one byte per
// sample. Out-of-range samples are clipped to the companding maximum.
func EncodeMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeSample(s)
	}
	return out
}

// DecodeMuLaw expands μ-law bytes back into 16-bit linear samples, one
// sample per byte. The round trip through EncodeMuLaw is lossy but sign
// preserving.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = decodeSample(b)
	}
	return out
}

// Attenuate scales μ-law audio by factor and returns a new buffer of the
// same length. This is what turns a correction into a whisper: the audio is
// expanded to linear, scaled with round-to-nearest, and companded again.
func Attenuate(data []byte, factor float64) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		scaled := float64(decodeSample(b)) * factor
		var rounded int32
		if scaled < 0 {
			rounded = int32(scaled - 0.5)
		} else {
			rounded = int32(scaled + 0.5)
		}
		if rounded > 32767 {
			rounded = 32767
		} else if rounded < -32768 {
			rounded = -32768
		}
		out[i] = encodeSample(int16(rounded))
	}
	return out
}

func encodeSample(sample int16) byte {
	// Extract sign, work with magnitude.
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	// Find the segment (exponent): position of the highest set bit above
	// bit 7. Eight segments, 0..7.
	exponent := 7
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; exponent-- {
		mask >>= 1
	}

	mantissa := byte((s >> (uint(exponent) + 3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}

func decodeSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	s := (int32(mantissa)<<3 + muLawBias) << uint(exponent)
	s -= muLawBias

	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}
