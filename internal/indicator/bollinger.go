package indicator

// BollingerBand returns (basis, upper, lower) for closes with width
// coefficient k: basis is the simple mean, upper/lower are basis plus/minus
// k times the population standard deviation.
func BollingerBand(closes []float64, k float64) (basis, upper, lower float64, err error) {
	basis, err = SMA(closes)
	if err != nil {
		return 0, 0, 0, err
	}
	stdev, err := PStdev(closes)
	if err != nil {
		return 0, 0, 0, err
	}
	return basis, basis + stdev*k, basis - stdev*k, nil
}
