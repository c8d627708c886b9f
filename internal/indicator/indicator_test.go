package indicator

import "testing"

func closeEnough(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

func TestSMA(t *testing.T) {
	v, err := SMA([]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(v, 2.5) {
		t.Fatalf("got %v, want 2.5", v)
	}
}

func TestSMAEmptyInput(t *testing.T) {
	if _, err := SMA(nil); err != ErrInvalidInput {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestPStdevConstantSeriesIsZero(t *testing.T) {
	v, err := PStdev([]float64{5, 5, 5, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(v, 0) {
		t.Fatalf("got %v, want 0", v)
	}
}

func TestBollingerBandConstantSeries(t *testing.T) {
	basis, upper, lower, err := BollingerBand([]float64{10, 10, 10, 10}, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(basis, 10) || !closeEnough(upper, 10) || !closeEnough(lower, 10) {
		t.Fatalf("got (%v,%v,%v), want (10,10,10)", basis, upper, lower)
	}
}

func TestBollingerBandInsufficientInput(t *testing.T) {
	if _, _, _, err := BollingerBand(nil, 2.0); err != ErrInvalidInput {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestRSIFlatSeriesIsNeutral(t *testing.T) {
	v, err := RSI([]float64{10, 10, 10, 10, 10}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(v, 50.0) {
		t.Fatalf("got %v, want 50.0", v)
	}
}

func TestRSIMonotonicUptrendApproaches100(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	v, err := RSI(closes, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v <= 90 {
		t.Fatalf("got %v, want close to 100 for a strict uptrend", v)
	}
}

func TestRSIInsufficientInput(t *testing.T) {
	if _, err := RSI([]float64{1}, 3); err != ErrInvalidInput {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestEMASeededByFirstValue(t *testing.T) {
	v, err := EMA([]float64{10}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(v, 10) {
		t.Fatalf("got %v, want 10 (single-point series seeds and returns unchanged)", v)
	}
}

func TestRMASeededBySMAOfFullInput(t *testing.T) {
	v, err := RMA([]float64{5}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closeEnough(v, 5) {
		t.Fatalf("got %v, want 5", v)
	}
}
