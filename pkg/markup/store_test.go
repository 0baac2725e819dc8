package markup

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/pricer/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(models.MarkupConfig{
		Defaults: models.MarkupDefaults{ExternalPercent: 40, SelfHostedPercent: 75},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now }
	return s
}

func TestNewStoreRejectsNegative(t *testing.T) {
	_, err := NewStore(models.MarkupConfig{Defaults: models.MarkupDefaults{ExternalPercent: -5}})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestStoreOverrideLifecycle(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SetProviderOverride("openai", 25, "alice", "contract"); err != nil {
		t.Fatal(err)
	}
	if got := s.Resolve("gpt-4o", "openai", true); got.Percent != 25 || got.Source != models.MarkupFromProvider {
		t.Errorf("unexpected provider resolution %+v", got)
	}

	exp := now.Add(time.Hour)
	o, err := s.SetModelOverride("gpt-4o", 12, "bob", "launch promo", &exp)
	if err != nil {
		t.Fatal(err)
	}
	if !o.SetAt.Equal(now) || o.SetBy != "bob" {
		t.Errorf("unexpected override metadata %+v", o)
	}
	if got := s.Resolve("gpt-4o", "openai", true); got.Percent != 12 {
		t.Errorf("expected model override 12, got %+v", got)
	}

	if !s.ClearModelOverride("gpt-4o") {
		t.Error("expected override to exist")
	}
	if s.ClearModelOverride("gpt-4o") {
		t.Error("expected second clear to report nothing removed")
	}
	if !s.ClearProviderOverride("openai") {
		t.Error("expected provider override to exist")
	}
	if got := s.Resolve("gpt-4o", "openai", true); got.Source != models.MarkupFromDefault {
		t.Errorf("expected default after clearing, got %+v", got)
	}
}

func TestStoreRejectsNegativeOverride(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetModelOverride("m", -1, "x", "", nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if len(s.Snapshot().ModelOverrides) != 0 {
		t.Error("rejected override must not be stored")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	before := s.Snapshot()
	if _, err := s.SetProviderOverride("openai", 10, "x", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := before.ProviderOverrides["openai"]; ok {
		t.Error("earlier snapshot observed a later write")
	}
}

func TestStoreConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SetProviderOverride(string(rune('a'+i)), float64(i), "x", "")
			_ = s.Resolve("m", string(rune('a'+i)), true)
		}()
	}
	wg.Wait()
	if n := len(s.Snapshot().ProviderOverrides); n != 20 {
		t.Errorf("expected 20 overrides, got %d", n)
	}
}
