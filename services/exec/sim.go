package exec

import "rtcore-go/sensors"

// SimSource returns a deterministic sample source for rigs without hardware.
// Each sensor name walks a small triangle wave around a per-name base, so
// filters and telemetry see realistic motion without a random seed.
func SimSource() sensors.Source {
	counts := map[string]int{}
	return sensors.SourceFunc(func(name string) (float64, error) {
		n := counts[name]
		counts[name] = n + 1
		base := 20.0 + float64(len(name)%8)
		step := n % 16
		if step > 8 {
			step = 16 - step
		}
		return base + float64(step)*0.25, nil
	})
}
