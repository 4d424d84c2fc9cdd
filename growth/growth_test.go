package growth

import (
	"errors"
	"math"
	"testing"

	"github.com/borealgrowth/metamodel/metaerr"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestChapmanRichardsZeroAtOrigin(t *testing.T) {
	for _, name := range []string{ChapmanRichards, ChapmanRichardsDerivative} {
		s, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		b := []float64{100, 0.02, 2}
		mu := s.Predict(0, 0, 0, b)
		if !almostEqual(mu, 0, 1e-9) {
			t.Fatalf("%s: expected mu(0)=0, got %v", name, mu)
		}
	}
}

func TestChapmanRichardsMonotoneNonDecreasing(t *testing.T) {
	s, err := Get(ChapmanRichards)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b := []float64{100, 0.02, 2}
	prev := s.Predict(0, 0, 0, b)
	for age := 1.0; age <= 200; age++ {
		cur := s.Predict(age, 0, 0, b)
		if cur < prev-1e-9 {
			t.Fatalf("expected monotone non-decreasing prediction, got %v after %v at age %v", cur, prev, age)
		}
		prev = cur
	}
}

func TestExponentialMonotoneNonIncreasing(t *testing.T) {
	s, err := Get(Exponential)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b := []float64{2000, 0.01}
	prev := s.Predict(0, 0, 0, b)
	for age := 1.0; age <= 200; age++ {
		cur := s.Predict(age, 0, 0, b)
		if cur > prev+1e-9 {
			t.Fatalf("expected monotone non-increasing prediction, got %v after %v at age %v", cur, prev, age)
		}
		prev = cur
	}
}

func TestPredictWithLagMatchesZeroLagWhenInactive(t *testing.T) {
	s, _ := Get(ChapmanRichardsDerivative)
	b := []float64{1000, 0.02, 2}
	withLag := PredictWithLag(s, 30, 10, 0, b, 5, false)
	withoutLag := s.Predict(30, 10, 0, b)
	if withLag != withoutLag {
		t.Fatalf("expected PredictWithLag(lagActive=false) to match raw Predict, got %v vs %v", withLag, withoutLag)
	}
}

func TestPredictWithLagBoundary(t *testing.T) {
	s, _ := Get(ChapmanRichardsDerivative)
	b := []float64{1000, 0.02, 2}
	got := PredictWithLag(s, 5, 0, 0, b, 10, true)
	if got != 0 {
		t.Fatalf("expected 0 prediction for effective age <= 0, got %v", got)
	}
}

func TestPredictionsAreDeterministic(t *testing.T) {
	s, _ := Get(ModifiedChapmanRichardsDerivative)
	b := []float64{5000, 0.006, 0.02, 1}
	a := s.Predict(40, 10, 0, b)
	c := s.Predict(40, 10, 0, b)
	if a != c {
		t.Fatalf("expected bit-identical repeated predictions, got %v and %v", a, c)
	}
}

func TestVarianceDueToRandomEffectNonNegative(t *testing.T) {
	s, _ := Get(ExponentialWithRandomEffect)
	b := []float64{2000, 0.01}
	v := VarianceDueToRandomEffect(s, 30, 5, b, 50)
	if v < 0 {
		t.Fatalf("expected non-negative variance contribution, got %v", v)
	}
}

func TestAllFormsRegistered(t *testing.T) {
	for _, name := range Names() {
		if _, err := Get(name); err != nil {
			t.Fatalf("expected %s to be registered: %v", name, err)
		}
	}
}

func TestUnknownFormIsConfigurationError(t *testing.T) {
	if _, err := Get("NotAForm"); !errors.Is(err, metaerr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown form name, got %v", err)
	}
}
