package tools

import "time"

// FrameSamples converts a frame duration into a sample count for the
// given rate and channel layout.
func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(channels) * float64(rate))
}
