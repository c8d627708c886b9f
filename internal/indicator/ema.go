package indicator

// EMA returns the exponential moving average of xs with the given length,
// seeded by xs[0] and smoothed with alpha = 2/(length+1).
func EMA(xs []float64, length int) (float64, error) {
	if length <= 0 || len(xs) == 0 {
		return 0, ErrInvalidInput
	}
	alpha := 2.0 / float64(length+1)
	current := xs[0]
	for _, x := range xs[1:] {
		current = alpha*x + (1-alpha)*current
	}
	return current, nil
}
