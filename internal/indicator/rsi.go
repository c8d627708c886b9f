package indicator

// RSI returns the Relative Strength Index of closes over length. Reports
// 50.0 (neutral) when both the up and down averages are zero — a flat
// series — rather than dividing by zero as the original implementation
// does.
func RSI(closes []float64, length int) (float64, error) {
	if len(closes) < 2 || length <= 0 {
		return 0, ErrInvalidInput
	}

	ups := make([]float64, 0, len(closes)-1)
	downs := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			ups = append(ups, diff)
			downs = append(downs, 0)
		} else {
			ups = append(ups, 0)
			downs = append(downs, -diff)
		}
	}

	avgUp, err := RMA(ups, length)
	if err != nil {
		return 0, err
	}
	avgDown, err := RMA(downs, length)
	if err != nil {
		return 0, err
	}

	if avgUp+avgDown == 0 {
		return 50.0, nil
	}
	return avgUp / (avgUp + avgDown) * 100, nil
}
