package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
)

func TestConditionalStockAndRegisterUpdates(t *testing.T) {
	databaseURL := os.Getenv("STOCKCAISSE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKCAISSE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, 3)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	now := time.Now().UTC()
	posID := fmt.Sprintf("pos-it-%d", stamp)
	storeID := fmt.Sprintf("store-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM store_items WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM points_of_sale WHERE id = $1`, posID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreatePointOfSale(ctx, domain.PointOfSale{ID: posID, Name: "IT branch " + posID, CreatedAt: now}); err != nil {
		t.Fatalf("create point of sale: %v", err)
	}
	if _, err := s.CreateStore(ctx, domain.Store{ID: storeID, Name: "IT store", PointOfSaleID: posID, Type: domain.StoreTypeSecondary, CreatedAt: now}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "IT product " + productID, Category: domain.ProductCategoryFish, SellingPrice: 1000, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		qty, err := tx.AdjustStock(ctx, storeID, productID, 10)
		if err != nil {
			return err
		}
		if qty != 10 {
			return fmt.Errorf("expected 10 after upsert, got %d", qty)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, storeID, productID, -11)
		return err
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	reg, err := s.GetCashRegister(ctx)
	if err != nil {
		t.Fatalf("get register: %v", err)
	}
	err = s.Atomic(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustCashRegister(ctx, domain.RegisterDelta{Balance: -(reg.CurrentBalance + 1), Out: reg.CurrentBalance + 1}, now)
		return err
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	sto, err := s.GetStore(ctx, storeID)
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	if got := sto.Quantity(productID); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
}
