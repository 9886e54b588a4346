package audio

// Resample converts linear samples from srcRate to dstRate using linear
// interpolation. Equal rates return the input slice unchanged, so callers
// must not mutate the result. Output length is
// floor(len(samples) * dstRate / srcRate).
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate {
		return samples
	}
	if len(samples) == 0 {
		return []int16{}
	}

	outLen := len(samples) * dstRate / srcRate
	out := make([]int16, outLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			// Past the last sample pair: nearest neighbor.
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
