package convert

import "slices"

// opus accepts these input rates only
var opusSampleRates = []int{8000, 12000, 16000, 24000, 48000}

func IsSampleRateValid(sampleRate int) bool {
	return slices.Contains(opusSampleRates, sampleRate)
}

// IsFrameSizeValid reports whether frameSize corresponds to 2.5/5/10/20/40/60 ms at sampleRate.
func IsFrameSizeValid(sampleRate, frameSize int) bool {
	if !IsSampleRateValid(sampleRate) {
		return false
	}
	ms25 := sampleRate / 400
	valid := []int{ms25, ms25 * 2, ms25 * 4, ms25 * 8, ms25 * 16, ms25 * 24}
	return slices.Contains(valid, frameSize)
}
