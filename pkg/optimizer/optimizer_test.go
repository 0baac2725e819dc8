package optimizer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pario-ai/pricer/pkg/models"
)

func priced(id string, price, quality float64) Candidate {
	cost := price / 1.4
	return Candidate{
		ModelID:      id,
		ProviderID:   "acme",
		Capabilities: []string{"chat"},
		Available:    true,
		QualityScore: quality,
		Price: models.PriceBreakdown{
			TotalPrice: price,
			AdminCostInfo: models.AdminCostInfo{
				TotalCost:     cost,
				MarkupPercent: 40,
				MarginAmount:  price - cost,
			},
		},
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ModelID
	}
	return out
}

func TestScenarioDBudgetExcludesSoleCandidate(t *testing.T) {
	_, err := Optimize([]Candidate{priced("model-a", 14.70, 0.9)}, Request{MaxPricePerRequest: 5}, DefaultOptions())
	if !errors.Is(err, ErrNoEligibleCandidate) {
		t.Fatalf("expected ErrNoEligibleCandidate, got %v", err)
	}
	var nec *NoEligibleCandidateError
	if !errors.As(err, &nec) {
		t.Fatalf("expected *NoEligibleCandidateError, got %T", err)
	}
	if nec.Stage != StageBudget || nec.Considered != 1 {
		t.Errorf("unexpected error detail %+v", nec)
	}
}

func TestEachStageNarrows(t *testing.T) {
	noChat := priced("no-chat", 1, 0.9)
	noChat.Capabilities = []string{"embed"}
	down := priced("down", 1, 0.9)
	down.Available = false
	est := priced("estimated", 1, 0.9)
	est.Estimated = true
	weak := priced("weak", 1, 0.2)
	pricey := priced("pricey", 20, 0.9)
	ok := priced("ok", 2, 0.8)

	d, err := Optimize([]Candidate{noChat, down, est, weak, pricey, ok}, Request{
		RequiredCapabilities: []string{"chat"},
		MinQualityScore:      0.5,
		MaxPricePerRequest:   10,
	}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(d.Ranked); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Errorf("expected only ok to survive, got %v", got)
	}
	want := []StageResult{
		{StageCapability, 6, 5},
		{StageAvailability, 5, 4},
		{StageEstimated, 4, 3},
		{StageQuality, 3, 2},
		{StageBudget, 2, 1},
	}
	if !reflect.DeepEqual(d.Stages, want) {
		t.Errorf("unexpected stages %+v", d.Stages)
	}
}

func TestEmptyStageReported(t *testing.T) {
	est := priced("estimated", 1, 0.9)
	est.Estimated = true
	_, err := Optimize([]Candidate{est}, Request{}, DefaultOptions())
	var nec *NoEligibleCandidateError
	if !errors.As(err, &nec) || nec.Stage != StageEstimated {
		t.Errorf("expected estimated-price stage error, got %v", err)
	}

	_, err = Optimize(nil, Request{}, DefaultOptions())
	if !errors.As(err, &nec) || nec.Stage != StageCapability || nec.Considered != 0 {
		t.Errorf("expected capability stage error on empty input, got %v", err)
	}
}

func TestMinimizeTieBreak(t *testing.T) {
	d, err := Optimize([]Candidate{
		priced("c", 2, 0.7),
		priced("b", 1, 0.7),
		priced("a", 1, 0.7),
		priced("d", 1, 0.9),
	}, Request{Strategy: StrategyMinimize}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(d.Ranked); !reflect.DeepEqual(got, []string{"d", "a", "b", "c"}) {
		t.Errorf("unexpected order %v", got)
	}
	if d.Selected.ModelID != "d" {
		t.Errorf("expected d selected, got %s", d.Selected.ModelID)
	}
}

func TestBalanceRanksByValue(t *testing.T) {
	d, err := Optimize([]Candidate{
		priced("cheap-weak", 1, 0.5),   // 0.5
		priced("pricey-good", 4, 0.96), // 0.24
		priced("mid", 2, 0.8),          // 0.4
		priced("free", 0, 0.3),         // +Inf
	}, Request{Strategy: StrategyBalance}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(d.Ranked); !reflect.DeepEqual(got, []string{"free", "cheap-weak", "mid", "pricey-good"}) {
		t.Errorf("unexpected order %v", got)
	}
}

func TestIgnorePreservesOrder(t *testing.T) {
	in := []Candidate{priced("z", 3, 0.1), priced("a", 1, 0.9), priced("m", 2, 0.5)}
	d, err := Optimize(in, Request{Strategy: StrategyIgnore}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(d.Ranked); !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Errorf("unexpected order %v", got)
	}
	if in[0].ModelID != "z" {
		t.Error("input slice mutated")
	}
}

func TestDeterministic(t *testing.T) {
	in := []Candidate{priced("b", 1, 0.5), priced("a", 1, 0.5), priced("c", 0.5, 0.1)}
	first, err := Optimize(in, Request{}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		again, _ := Optimize(in, Request{}, DefaultOptions())
		if !reflect.DeepEqual(first, again) {
			t.Fatal("optimize is not deterministic")
		}
	}
}

func TestUnknownStrategy(t *testing.T) {
	_, err := Optimize([]Candidate{priced("a", 1, 1)}, Request{Strategy: "cheapest"}, DefaultOptions())
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	_, err = Optimize([]Candidate{priced("a", 1, 1)}, Request{MaxPricePerRequest: -1}, DefaultOptions())
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestWarningsAreSegmented(t *testing.T) {
	c := priced("m", 4.5, 0.9)
	c.Estimated = true
	c.WarmupSeconds = 30
	c.Price.WarmupApplied = true
	// 10% margin
	c.Price.AdminCostInfo = models.AdminCostInfo{TotalCost: 4.05, MarkupPercent: 11.11, MarginAmount: 0.45}

	d, err := Optimize([]Candidate{c}, Request{
		AllowEstimated:        true,
		MaxPricePerRequest:    5,
		ExpectedMonthlyVolume: 250000,
	}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	clientCodes := map[string]bool{}
	for _, w := range d.ClientWarnings {
		clientCodes[w.Code] = true
	}
	for _, code := range []string{WarnEstimatedPrice, WarnWarmupDelay, WarnNearBudget} {
		if !clientCodes[code] {
			t.Errorf("missing client warning %s", code)
		}
	}
	adminCodes := map[string]bool{}
	for _, w := range d.AdminWarnings {
		adminCodes[w.Code] = true
	}
	for _, code := range []string{WarnLowMargin, WarnEstimatedCost, WarnVolumeDiscount} {
		if !adminCodes[code] {
			t.Errorf("missing admin warning %s", code)
		}
	}
	for code := range clientCodes {
		if adminCodes[code] {
			t.Errorf("warning %s appears in both audiences", code)
		}
	}
}

func TestNoWarningsForComfortableSelection(t *testing.T) {
	d, err := Optimize([]Candidate{priced("m", 1, 0.9)}, Request{MaxPricePerRequest: 5}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.ClientWarnings) != 0 || len(d.AdminWarnings) != 0 {
		t.Errorf("unexpected warnings: %+v %+v", d.ClientWarnings, d.AdminWarnings)
	}
}
