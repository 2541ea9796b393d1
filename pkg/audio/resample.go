package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono PCM16 from srcRate to dstRate with a windowed-sinc
// resampler. Equal rates return pcm unchanged.
//
// A fresh resampler is built per call; utterances are independent so no
// filter state carries over between them.
func Resample(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	n := len(pcm) / 2
	in := make([]float64, n)
	for i, s := range Samples(pcm) {
		in[i] = float64(s) / 32768.0
	}

	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d -> %d: %w", srcRate, dstRate, err)
	}

	samples := make([]int16, len(out))
	for i, v := range out {
		samples[i] = clamp16(int32(math.Round(v * 32767.0)))
	}
	return PCM(samples), nil
}
