package ephemeris

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// countingProvider hands out a fixed element set and counts fetches.
type countingProvider struct {
	elements map[string]*model.OrbitalElements
	calls    int
}

func (p *countingProvider) Elements(_ context.Context, satID string, _ time.Time) (*model.OrbitalElements, error) {
	p.calls++
	eph, ok := p.elements[satID]
	if !ok {
		return nil, ErrNotFound
	}
	return eph, nil
}

func windowedElements(satID string, from, until time.Time) *model.OrbitalElements {
	return &model.OrbitalElements{
		SatID:      satID,
		SqrtA:      5153.6,
		FetchedFor: from,
		ValidUntil: until,
	}
}

func TestCacheReusesValidEntry(t *testing.T) {
	from := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	provider := &countingProvider{elements: map[string]*model.OrbitalElements{
		"G01": windowedElements("G01", from, from.Add(2*time.Hour)),
	}}
	cache := NewCache(provider)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := cache.Elements(ctx, "G01", from.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}

	if provider.calls != 1 {
		t.Errorf("provider fetched %d times, want 1", provider.calls)
	}
	hits, misses := cache.Stats()
	if hits != 4 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 4 / 1", hits, misses)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestCacheRefreshesLapsedEntry(t *testing.T) {
	from := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	provider := &countingProvider{elements: map[string]*model.OrbitalElements{
		"G01": windowedElements("G01", from, from.Add(time.Hour)),
	}}
	cache := NewCache(provider)

	ctx := context.Background()
	if _, err := cache.Elements(ctx, "G01", from); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	// Beyond ValidUntil the entry lapses and the provider is hit again.
	if _, err := cache.Elements(ctx, "G01", from.Add(3*time.Hour)); err != nil {
		t.Fatalf("lapsed lookup: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider fetched %d times, want 2", provider.calls)
	}
}

func TestCachePropagatesNotFound(t *testing.T) {
	provider := &countingProvider{elements: map[string]*model.OrbitalElements{}}
	cache := NewCache(provider)

	_, err := cache.Elements(context.Background(), "G99", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
