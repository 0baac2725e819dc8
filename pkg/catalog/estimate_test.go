package catalog

import (
	"math"
	"testing"

	"github.com/pario-ai/pricer/pkg/models"
)

func TestEstimateWeightedAverage(t *testing.T) {
	a := verified("a", 0.002, 0.010)
	a.Special.PerToolCall = 0.01
	b := verified("b", 0.004, 0.020)

	est := Estimate(models.ModelCostRecord{ModelID: "x", ProviderID: "acme"}, models.ReasonNewModel, []Candidate{
		{Record: a, Similarity: 0.9},
		{Record: b, Similarity: 0.6},
	})

	if math.Abs(est.BaseCosts.InputPer1K-0.0028) > 1e-12 {
		t.Errorf("expected input 0.0028, got %v", est.BaseCosts.InputPer1K)
	}
	if math.Abs(est.BaseCosts.OutputPer1K-0.014) > 1e-12 {
		t.Errorf("expected output 0.014, got %v", est.BaseCosts.OutputPer1K)
	}
	if math.Abs(est.Special.PerToolCall-0.006) > 1e-12 {
		t.Errorf("expected tool call 0.006, got %v", est.Special.PerToolCall)
	}

	e := est.Estimation
	if e == nil || e.Method != models.MethodWeightedSimilarity || !e.AwaitingRealCost {
		t.Fatalf("unexpected estimation block %+v", e)
	}
	if math.Abs(e.SourceModels[0].Weight-0.6) > 1e-12 || math.Abs(e.SourceModels[1].Weight-0.4) > 1e-12 {
		t.Errorf("unexpected weights %+v", e.SourceModels)
	}
	if err := Validate(est); err != nil {
		t.Errorf("estimated record should validate: %v", err)
	}
}

func TestEstimateIgnoresUnusableCandidates(t *testing.T) {
	estimated := verified("e", 1, 1)
	estimated.Estimation = &models.Estimation{Reason: models.ReasonNewModel}

	est := Estimate(models.ModelCostRecord{ModelID: "x", ProviderID: "acme"}, models.ReasonNewModel, []Candidate{
		{Record: estimated, Similarity: 0.9},
		{Record: verified("zero", 1, 1), Similarity: 0},
		{Record: verified("over", 1, 1), Similarity: 1.5},
		{Record: verified("nan", 1, 1), Similarity: math.NaN()},
	})
	if !est.Estimation.CannotEstimate() {
		t.Errorf("expected cannot-estimate, got %+v", est.Estimation)
	}
	if est.BaseCosts != (models.BaseCosts{}) {
		t.Errorf("costs must not be invented: %+v", est.BaseCosts)
	}
}

func TestConfidence(t *testing.T) {
	// two candidates, best similarity 0.9, totals 0.002 and 0.004 (cv = 1/3)
	got := Confidence(0.9, []float64{0.002, 0.004})
	if math.Abs(got-0.50625) > 1e-9 {
		t.Errorf("expected 0.50625, got %v", got)
	}

	if Confidence(0.9, nil) != 0 {
		t.Error("no candidates must give zero confidence")
	}

	one := Confidence(1, []float64{0.01})
	three := Confidence(1, []float64{0.01, 0.01, 0.01})
	if !(three > one) {
		t.Errorf("more agreeing candidates should raise confidence: %v vs %v", one, three)
	}

	spread := Confidence(1, []float64{0.001, 0.01, 0.1})
	if !(spread < three) {
		t.Errorf("dispersion should lower confidence: %v vs %v", spread, three)
	}

	if Confidence(0.9, []float64{0.002, 0.004}) != got {
		t.Error("confidence must be deterministic")
	}
}
