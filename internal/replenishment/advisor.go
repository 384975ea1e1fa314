package replenishment

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockcaisse/backend/internal/cache"
	"stockcaisse/backend/internal/domain"
)

const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityNormal   = "normal"
)

// Advisor proposes RESTOCK quantities for a secondary store from the stock
// of its point of sale's principal store. It never moves stock.
type Advisor struct {
	cache            cache.RestockCache
	cacheTTL         time.Duration
	targetMultiplier int
}

func NewAdvisor(cacheStore cache.RestockCache, cacheTTL time.Duration) *Advisor {
	if cacheStore == nil {
		cacheStore = cache.NoopRestockCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Advisor{
		cache:            cacheStore,
		cacheTTL:         cacheTTL,
		targetMultiplier: 3,
	}
}

// Suggest lists every product at or under its low stock threshold in
// secondary. Only products the store has carried, or that the principal
// store can supply, are considered. principal may be nil.
func (a *Advisor) Suggest(ctx context.Context, secondary domain.Store, principal *domain.Store, products map[string]domain.Product) domain.RestockReport {
	cacheKey := buildCacheKey(secondary, principal, products)
	if cached, ok, err := a.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	report := domain.RestockReport{
		StoreID:     secondary.ID,
		Suggestions: make([]domain.RestockSuggestion, 0, 8),
		GeneratedAt: time.Now().UTC(),
	}
	if principal != nil {
		report.PrincipalStoreID = principal.ID
	}

	for productID, product := range products {
		qty, carried := secondary.Items[productID]
		available := 0
		if principal != nil {
			available = principal.Quantity(productID)
		}
		if !carried && available == 0 {
			continue
		}

		threshold := product.LowStockThreshold
		if threshold <= 0 {
			threshold = domain.DefaultLowStockThreshold
		}
		if qty > threshold {
			continue
		}

		target := threshold * a.targetMultiplier
		report.Suggestions = append(report.Suggestions, domain.RestockSuggestion{
			ProductID:          productID,
			ProductName:        product.Name,
			Quantity:           qty,
			Threshold:          threshold,
			PrincipalAvailable: available,
			SuggestedQuantity:  min(target-qty, available),
			Priority:           priorityFor(qty, threshold),
		})
	}

	sort.Slice(report.Suggestions, func(i, j int) bool {
		ri, rj := priorityRank(report.Suggestions[i].Priority), priorityRank(report.Suggestions[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return report.Suggestions[i].ProductName < report.Suggestions[j].ProductName
	})

	_ = a.cache.Set(ctx, cacheKey, &report, a.cacheTTL)
	return report
}

func priorityFor(qty int, threshold int) string {
	switch {
	case qty == 0:
		return PriorityCritical
	case qty*2 <= threshold:
		return PriorityHigh
	}
	return PriorityNormal
}

func priorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	}
	return 2
}

// buildCacheKey hashes everything the report depends on, so a cached
// report can only be served for identical stock and thresholds.
func buildCacheKey(secondary domain.Store, principal *domain.Store, products map[string]domain.Product) string {
	parts := make([]string, 0, len(products)+2)
	parts = append(parts, "s:"+secondary.ID)
	if principal != nil {
		parts = append(parts, "p:"+principal.ID)
	}

	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		principalQty := 0
		if principal != nil {
			principalQty = principal.Quantity(id)
		}
		qty, carried := secondary.Items[id]
		parts = append(parts, fmt.Sprintf("%s:%d:%t:%d:%d", id, qty, carried, principalQty, products[id].LowStockThreshold))
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "stockcaisse:restock:" + hex.EncodeToString(hash[:])
}
