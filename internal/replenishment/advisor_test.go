package replenishment

import (
	"context"
	"testing"
	"time"

	"stockcaisse/backend/internal/domain"
)

type countingCache struct {
	reports map[string]domain.RestockReport
	hits    int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.RestockReport, bool, error) {
	report, ok := c.reports[key]
	if ok {
		c.hits++
	}
	return &report, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.RestockReport, _ time.Duration) error {
	c.reports[key] = *value
	return nil
}

func testProducts() map[string]domain.Product {
	return map[string]domain.Product{
		"prd-a": {ID: "prd-a", Name: "Tilapia", LowStockThreshold: 4},
		"prd-b": {ID: "prd-b", Name: "Capitaine", LowStockThreshold: 2},
		"prd-c": {ID: "prd-c", Name: "Boeuf", LowStockThreshold: 2},
		"prd-d": {ID: "prd-d", Name: "Mouton", LowStockThreshold: 2},
	}
}

func TestSuggestOrdersByPriorityAndCapsByPrincipal(t *testing.T) {
	advisor := NewAdvisor(nil, time.Minute)
	secondary := domain.Store{ID: "shop", Items: map[string]int{"prd-a": 0, "prd-b": 1, "prd-c": 9}}
	principal := &domain.Store{ID: "main", Items: map[string]int{"prd-a": 5, "prd-b": 40, "prd-c": 3}}

	report := advisor.Suggest(context.Background(), secondary, principal, testProducts())

	if report.PrincipalStoreID != "main" {
		t.Fatalf("expected principal main, got %q", report.PrincipalStoreID)
	}
	if len(report.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", report.Suggestions)
	}
	first := report.Suggestions[0]
	if first.ProductID != "prd-a" || first.Priority != PriorityCritical {
		t.Fatalf("expected critical tilapia first, got %+v", first)
	}
	if first.SuggestedQuantity != 5 {
		t.Fatalf("expected suggestion capped at principal stock 5, got %d", first.SuggestedQuantity)
	}
	second := report.Suggestions[1]
	if second.ProductID != "prd-b" || second.SuggestedQuantity != 5 {
		t.Fatalf("expected capitaine top-up to 6, got %+v", second)
	}
}

func TestSuggestServesCachedReportForSameStock(t *testing.T) {
	c := &countingCache{reports: map[string]domain.RestockReport{}}
	advisor := NewAdvisor(c, time.Minute)
	secondary := domain.Store{ID: "shop", Items: map[string]int{"prd-a": 1}}

	advisor.Suggest(context.Background(), secondary, nil, testProducts())
	advisor.Suggest(context.Background(), secondary, nil, testProducts())
	if c.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", c.hits)
	}

	secondary.Items["prd-a"] = 0
	advisor.Suggest(context.Background(), secondary, nil, testProducts())
	if c.hits != 1 {
		t.Fatalf("expected changed stock to miss the cache, got %d hits", c.hits)
	}
}
