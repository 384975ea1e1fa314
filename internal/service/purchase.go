package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

const purchaseExpenseLabel = "Achat marchandises"

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	draft, err := s.purchaseDraft(req)
	if err != nil {
		return domain.Purchase{}, err
	}

	var created domain.Purchase
	id, replayed, err := s.once(ctx, "purchase", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			p := draft
			p.ID = xid.New("pur")
			p.Items = clonePurchaseItems(draft.Items)
			p.CreatedAt = u.Now()
			p.UpdatedAt = u.Now()
			if p.PurchasedAt.IsZero() {
				p.PurchasedAt = u.Now()
			}
			if err := applyPurchase(ctx, u, &p); err != nil {
				return err
			}
			if err := syncPurchaseExpense(ctx, u, &p); err != nil {
				return err
			}
			if err := u.Tx().SavePurchase(ctx, p); err != nil {
				return err
			}
			created = p
			return nil
		})
		return created.ID, err
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	if replayed {
		return s.GetPurchase(ctx, id)
	}

	s.logAudit(ctx, "purchase_create", "purchase", created.ID, fmt.Sprintf("supplier=%s,store=%s,funding=%s,total=%d", created.SupplierID, created.StoreID, created.FundingMode, created.TotalAmount))
	return created, nil
}

// UpdatePurchase reverses the stored purchase and applies req in its place
// within one unit. The purchase keeps its id and linked expense.
func (s *Service) UpdatePurchase(ctx context.Context, purchaseID string, req domain.PurchaseRequest) (domain.Purchase, error) {
	draft, err := s.purchaseDraft(req)
	if err != nil {
		return domain.Purchase{}, err
	}

	var updated domain.Purchase
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReversePurchase(*existing)); err != nil {
			return err
		}

		p := draft
		p.ID = existing.ID
		p.Items = clonePurchaseItems(draft.Items)
		p.ExpenseID = existing.ExpenseID
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = u.Now()
		if p.PurchasedAt.IsZero() {
			p.PurchasedAt = existing.PurchasedAt
		}
		if err := applyPurchase(ctx, u, &p); err != nil {
			return err
		}
		if err := syncPurchaseExpense(ctx, u, &p); err != nil {
			return err
		}
		if err := u.Tx().SavePurchase(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "purchase_update", "purchase", updated.ID, fmt.Sprintf("funding=%s,total=%d,lines=%d", updated.FundingMode, updated.TotalAmount, len(updated.Items)))
	return updated, nil
}

func (s *Service) DeletePurchase(ctx context.Context, purchaseID string) error {
	var deleted domain.Purchase
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if err := deletePurchase(ctx, u, *existing); err != nil {
			return err
		}
		deleted = *existing
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "purchase_delete", "purchase", deleted.ID, fmt.Sprintf("total=%d", deleted.TotalAmount))
	return nil
}

// RemovePurchaseItem cancels a single line. Removing the last line deletes
// the purchase. The returned bool reports whether the purchase still exists.
func (s *Service) RemovePurchaseItem(ctx context.Context, purchaseID string, productID string) (domain.Purchase, bool, error) {
	var result domain.Purchase
	remaining := true
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetPurchaseForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		intents, ok := ledger.ReversePurchaseLine(*existing, productID)
		if !ok {
			return &store.NotFoundError{Kind: "purchase item", ID: productID}
		}
		if len(existing.Items) == 1 {
			remaining = false
			result = *existing
			return deletePurchase(ctx, u, *existing)
		}

		if err := u.Revert(ctx, intents); err != nil {
			return err
		}
		p := *existing
		p.Items = make([]domain.PurchaseItem, 0, len(existing.Items)-1)
		p.TotalAmount = 0
		for _, item := range existing.Items {
			if item.ProductID == productID {
				continue
			}
			p.Items = append(p.Items, item)
			p.TotalAmount += item.LineTotal()
		}
		p.UpdatedAt = u.Now()
		if err := syncPurchaseExpense(ctx, u, &p); err != nil {
			return err
		}
		if err := u.Tx().SavePurchase(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return domain.Purchase{}, false, err
	}

	s.logAudit(ctx, "purchase_item_remove", "purchase", purchaseID, fmt.Sprintf("product=%s,remaining=%t", productID, remaining))
	return result, remaining, nil
}

func (s *Service) GetPurchase(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	p, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *p, nil
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, limit)
}

// purchaseDraft validates req and merges lines naming the same product.
func (s *Service) purchaseDraft(req domain.PurchaseRequest) (domain.Purchase, error) {
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	if req.SupplierID == "" {
		return domain.Purchase{}, store.Invalid("supplier_id", "is required")
	}
	if req.StoreID == "" {
		return domain.Purchase{}, store.Invalid("store_id", "is required")
	}
	funding := req.FundingMode
	if funding == "" {
		funding = s.defaultFunding
	}
	if !funding.Valid() {
		return domain.Purchase{}, store.Invalid("funding_mode", "must be cash_register or supplier_credit")
	}
	if len(req.Items) == 0 {
		return domain.Purchase{}, store.Invalid("items", "at least one line is required")
	}

	items := make([]domain.PurchaseItem, 0, len(req.Items))
	index := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Purchase{}, store.Invalid("product_id", "is required")
		}
		if line.Quantity <= 0 {
			return domain.Purchase{}, store.Invalid("quantity", "must be positive")
		}
		if line.UnitPurchasePrice <= 0 {
			return domain.Purchase{}, store.Invalid("unit_purchase_price", "must be positive")
		}
		if i, seen := index[productID]; seen {
			if items[i].UnitPurchasePrice != line.UnitPurchasePrice {
				return domain.Purchase{}, store.Invalid("items", fmt.Sprintf("product %s listed with two prices", productID))
			}
			items[i].Quantity += line.Quantity
			continue
		}
		index[productID] = len(items)
		items = append(items, domain.PurchaseItem{
			ProductID:         productID,
			Quantity:          line.Quantity,
			UnitPurchasePrice: line.UnitPurchasePrice,
		})
	}

	p := domain.Purchase{
		SupplierID:  req.SupplierID,
		StoreID:     req.StoreID,
		FundingMode: funding,
		Items:       items,
		Buyer:       strings.TrimSpace(req.Buyer),
		Description: strings.TrimSpace(req.Description),
	}
	if req.PurchasedAt != nil {
		p.PurchasedAt = req.PurchasedAt.UTC()
	}
	return p, nil
}

// applyPurchase receives p's lines into its principal store and funds it
// from the register or on supplier credit. It fills product names and the
// total.
func applyPurchase(ctx context.Context, u *ledger.Unit, p *domain.Purchase) error {
	sto, err := u.Store(ctx, p.StoreID)
	if err != nil {
		return err
	}
	if sto.Type != domain.StoreTypePrincipal {
		return store.Invalid("store_id", "purchases are received into a principal store")
	}
	supplier, err := u.Supplier(ctx, p.SupplierID)
	if err != nil {
		return err
	}

	ref := xid.Short(p.ID)
	p.TotalAmount = 0
	for i := range p.Items {
		item := &p.Items[i]
		product, err := u.Product(ctx, item.ProductID)
		if err != nil {
			return err
		}
		item.ProductName = product.Name
		if err := u.Increment(ctx, p.StoreID, item.ProductID, item.Quantity, ledger.Movement{
			Kind:        domain.StockPurchaseIn,
			Description: fmt.Sprintf("purchase REF %s: %d ctn of %s from %s", ref, item.Quantity, product.Name, supplier.Name),
			ReferenceID: p.ID,
		}); err != nil {
			return err
		}
		if err := u.SetPurchasePrice(ctx, item.ProductID, item.UnitPurchasePrice); err != nil {
			return err
		}
		p.TotalAmount += item.LineTotal()
	}

	switch p.FundingMode {
	case domain.FundingSupplierCredit:
		_, err = u.ApplySupplier(ctx, p.SupplierID, p.TotalAmount)
	default:
		_, err = u.ApplyCash(ctx, ledger.CashEntry{
			Direction:   domain.CashOut,
			Amount:      p.TotalAmount,
			Category:    domain.CashCategoryExpense,
			Description: fmt.Sprintf("purchase REF %s from %s", ref, supplier.Name),
			Refs:        domain.CashRefs{PurchaseID: p.ID, SupplierID: p.SupplierID, StoreID: p.StoreID},
		})
	}
	return err
}

// syncPurchaseExpense creates or updates the expense record that mirrors
// p in the expense ledger. The cash itself is moved by applyPurchase.
func syncPurchaseExpense(ctx context.Context, u *ledger.Unit, p *domain.Purchase) error {
	tx := u.Tx()
	if p.ExpenseID != "" {
		expense, err := tx.GetExpenseForUpdate(ctx, p.ExpenseID)
		switch {
		case err == nil:
			expense.Amount = p.TotalAmount
			expense.Date = p.PurchasedAt
			return tx.SaveExpense(ctx, *expense)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	category, err := tx.EnsureExpenseCategory(ctx, domain.PurchaseExpenseCategory, domain.PurchaseExpenseColor)
	if err != nil {
		return err
	}
	expense := domain.Expense{
		ID:         xid.New("exp"),
		Label:      purchaseExpenseLabel,
		Amount:     p.TotalAmount,
		CategoryID: category.ID,
		PurchaseID: p.ID,
		Note:       "ACHAT REF: " + xid.Short(p.ID),
		Actor:      u.Actor(),
		Date:       p.PurchasedAt,
		CreatedAt:  u.Now(),
	}
	if err := tx.SaveExpense(ctx, expense); err != nil {
		return err
	}
	p.ExpenseID = expense.ID
	return nil
}

func deletePurchase(ctx context.Context, u *ledger.Unit, p domain.Purchase) error {
	if err := u.Revert(ctx, ledger.ReversePurchase(p)); err != nil {
		return err
	}
	if p.ExpenseID != "" {
		if err := u.Tx().DeleteExpense(ctx, p.ExpenseID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return u.Tx().DeletePurchase(ctx, p.ID)
}

func clonePurchaseItems(items []domain.PurchaseItem) []domain.PurchaseItem {
	out := make([]domain.PurchaseItem, len(items))
	copy(out, items)
	return out
}
