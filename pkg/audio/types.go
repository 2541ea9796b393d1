package audio

import "time"

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono returns a single-channel format at rate.
func Mono(rate int) Format {
	return Format{SampleRate: rate, Channels: 1}
}

// BytesPerSecond is the PCM16 byte rate of f.
func (f Format) BytesPerSecond() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * ch * 2
}

// FrameBytes returns the byte length of a frame lasting chunkMs milliseconds.
// The pipeline frames are mono, so at 48 kHz and 20 ms this is 1920.
func (f Format) FrameBytes(chunkMs int) int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * chunkMs / 1000 * ch * 2
}

// Duration reports how long n bytes of PCM16 last in format f.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
