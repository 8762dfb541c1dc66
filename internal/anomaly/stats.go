package anomaly

import "math"

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev returns the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// zScore standardizes an observation against a baseline. A degenerate
// baseline (zero spread) yields 0 so flat histories never alert.
func zScore(observed float64, baseline []float64) float64 {
	sd := stddev(baseline)
	if sd == 0 {
		return 0
	}
	return (observed - mean(baseline)) / sd
}

// pctChange returns the percent change from previous to current.
func pctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
