package audio

import "iter"

// FrameSize is the outbound frame size for Twilio Media Streams: 20ms of
// μ-law audio at 8kHz is 160 bytes.
const FrameSize = 160

// Frames splits buf into consecutive frames of frameSize bytes. The final
// frame holds the remainder and may be shorter; an empty buffer yields no
// frames. The sequence is lazy and consumed once - frames alias buf, so the
// caller must not modify buf while iterating.
func Frames(buf []byte, frameSize int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if frameSize <= 0 {
			return
		}
		for off := 0; off < len(buf); off += frameSize {
			end := off + frameSize
			if end > len(buf) {
				end = len(buf)
			}
			if !yield(buf[off:end]) {
				return
			}
		}
	}
}
