package mathx

import "golang.org/x/exp/constraints"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean[T constraints.Float](xs []T) T {
	if len(xs) == 0 {
		return 0
	}
	var sum T
	for _, x := range xs {
		sum += x
	}
	return sum / T(len(xs))
}

// EMA folds xs left-to-right with smoothing factor alpha, seeded with the
// first element.
func EMA[T constraints.Float](xs []T, alpha T) T {
	if len(xs) == 0 {
		return 0
	}
	ema := xs[0]
	for _, x := range xs[1:] {
		ema += alpha * (x - ema)
	}
	return ema
}
