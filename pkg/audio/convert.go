package audio

import (
	"encoding/binary"
	"math"
)

// Samples decodes little-endian PCM16 into int16 samples. A trailing odd byte
// is ignored.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// PCM encodes int16 samples as little-endian PCM16.
func PCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32 converts PCM16 to float32 samples normalised to [-1.0, 1.0].
func Float32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// DownmixToMono averages interleaved PCM16 across channels. With channels <= 1
// the input is returned unchanged.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[i*stride+ch*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(sum/int32(channels))))
	}
	return out
}

// RMS returns the root-mean-square energy of PCM16 audio normalised to
// [0.0, 1.0]. Empty input has zero energy.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
