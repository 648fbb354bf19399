// Package timex holds the small clock helpers shared by host and MCU code.
package timex

import "time"

// NowMs returns Unix milliseconds as int64, the timestamp unit used on the
// bus and in telemetry records.
func NowMs() int64 { return time.Now().UnixMilli() }

// DurationFromHz returns the period for a requested frequency, for tickers
// and timers. freqHz==0 is coerced to 1 to avoid division by zero.
func DurationFromHz(freqHz uint32) time.Duration {
	if freqHz == 0 {
		freqHz = 1
	}
	return time.Second / time.Duration(freqHz)
}
