package indicator

// RMA returns the Wilder-style moving average of xs with alpha = 1/length,
// seeded by the simple mean of the entire xs slice and then smoothed across
// xs[1:], matching the original recursive rma(data, length) definition
// (length controls only the smoothing factor, not the window size — RMA is
// always evaluated over the full xs passed in).
func RMA(xs []float64, length int) (float64, error) {
	if length <= 0 || len(xs) == 0 {
		return 0, ErrInvalidInput
	}
	alpha := 1.0 / float64(length)
	current, err := SMA(xs)
	if err != nil {
		return 0, err
	}
	for _, x := range xs[1:] {
		current = x*alpha + current*(1-alpha)
	}
	return current, nil
}
