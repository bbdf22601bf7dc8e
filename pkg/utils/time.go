package utils

import (
	"math/rand"
	"time"
)

// Now returns current time (useful for mocking in tests)
var Now = time.Now

// Since returns time since given time
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Seconds converts a duration into fractional seconds of media time
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// RandomOriginX picks a horizontal position in [0, 100) for a reaction
func RandomOriginX() float64 {
	return rand.Float64() * 100
}
