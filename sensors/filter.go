package sensors

import (
	"rtcore-go/errcode"
	"rtcore-go/x/mathx"
)

// Filter selects a smoothing method for Filtered reads.
type Filter uint8

const (
	MovingAverage Filter = iota
	Exponential
)

func (f Filter) String() string {
	switch f {
	case MovingAverage:
		return "moving_average"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseFilter maps a config/console spelling to a Filter.
func ParseFilter(s string) (Filter, bool) {
	switch s {
	case "ma", "avg", "moving_average":
		return MovingAverage, true
	case "ema", "exp", "exponential":
		return Exponential, true
	default:
		return MovingAverage, false
	}
}

// Filtered returns a smoothed value over the newest window samples of the
// sensor's history. MovingAverage is their arithmetic mean. Exponential folds
// the same slice with alpha = 2/(window+1), seeded with its first element.
// With an empty history it falls back to a plain Read. An unrecognised
// filter is an error, never a silent pass-through.
func (r *Registry) Filtered(name string, kind Filter, window int) (float64, error) {
	s, ok := r.sensors[name]
	if !ok {
		return 0, errcode.SensorNotFound
	}
	if window <= 0 {
		return 0, errcode.InvalidParams
	}
	if s.histLen == 0 {
		return r.Read(name)
	}

	r.scratch = s.appendTail(r.scratch[:0], window)
	switch kind {
	case MovingAverage:
		return mathx.Mean(r.scratch), nil
	case Exponential:
		alpha := 2.0 / (float64(window) + 1.0)
		return mathx.EMA(r.scratch, alpha), nil
	default:
		return 0, errcode.InvalidParams
	}
}
