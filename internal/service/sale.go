package service

import (
	"context"
	"fmt"
	"strings"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

type saleDraft struct {
	sale     domain.DaySale
	override bool
}

func (s *Service) CreateDaySale(ctx context.Context, req domain.DaySaleRequest) (domain.DaySale, error) {
	draft, err := daySaleDraft(ctx, req)
	if err != nil {
		return domain.DaySale{}, err
	}

	var created domain.DaySale
	id, replayed, err := s.once(ctx, "day_sale", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			sale := draft.sale
			sale.ID = xid.New("sale")
			sale.Items = cloneSaleItems(draft.sale.Items)
			sale.CreatedAt = u.Now()
			sale.UpdatedAt = u.Now()
			if sale.SaleDate.IsZero() {
				sale.SaleDate = u.Now()
			}
			if err := applyDaySale(ctx, u, &sale, draft.override); err != nil {
				return err
			}
			if err := u.Tx().SaveDaySale(ctx, sale); err != nil {
				return err
			}
			created = sale
			return nil
		})
		return created.ID, err
	})
	if err != nil {
		return domain.DaySale{}, err
	}
	if replayed {
		return s.GetDaySale(ctx, id)
	}

	s.logAudit(ctx, "day_sale_create", "day_sale", created.ID, saleDetail(created, draft.override))
	return created, nil
}

// UpdateDaySale reverses the stored sale and books req in its place. Guards
// run against the balances as they stand after the reversal.
func (s *Service) UpdateDaySale(ctx context.Context, saleID string, req domain.DaySaleRequest) (domain.DaySale, error) {
	draft, err := daySaleDraft(ctx, req)
	if err != nil {
		return domain.DaySale{}, err
	}

	var updated domain.DaySale
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetDaySaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseDaySale(*existing)); err != nil {
			return err
		}

		sale := draft.sale
		sale.ID = existing.ID
		sale.Items = cloneSaleItems(draft.sale.Items)
		sale.CreatedAt = existing.CreatedAt
		sale.UpdatedAt = u.Now()
		if sale.SaleDate.IsZero() {
			sale.SaleDate = existing.SaleDate
		}
		if err := applyDaySale(ctx, u, &sale, draft.override); err != nil {
			return err
		}
		if err := u.Tx().SaveDaySale(ctx, sale); err != nil {
			return err
		}
		updated = sale
		return nil
	})
	if err != nil {
		return domain.DaySale{}, err
	}

	s.logAudit(ctx, "day_sale_update", "day_sale", updated.ID, saleDetail(updated, draft.override))
	return updated, nil
}

func (s *Service) DeleteDaySale(ctx context.Context, saleID string) error {
	var deleted domain.DaySale
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetDaySaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseDaySale(*existing)); err != nil {
			return err
		}
		deleted = *existing
		return u.Tx().DeleteDaySale(ctx, existing.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "day_sale_delete", "day_sale", deleted.ID, fmt.Sprintf("total=%d,credit=%t", deleted.TotalAmount, deleted.IsCredit))
	return nil
}

func (s *Service) GetDaySale(ctx context.Context, saleID string) (domain.DaySale, error) {
	sale, err := s.repo.GetDaySale(ctx, saleID)
	if err != nil {
		return domain.DaySale{}, err
	}
	return *sale, nil
}

func (s *Service) ListDaySales(ctx context.Context, pointOfSaleID string, limit int) ([]domain.DaySale, error) {
	return s.repo.ListDaySales(ctx, pointOfSaleID, limit)
}

func daySaleDraft(ctx context.Context, req domain.DaySaleRequest) (saleDraft, error) {
	req.PointOfSaleID = strings.TrimSpace(req.PointOfSaleID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.PointOfSaleID == "" {
		return saleDraft{}, store.Invalid("point_of_sale_id", "is required")
	}
	if req.StoreID == "" {
		return saleDraft{}, store.Invalid("store_id", "is required")
	}
	if req.IsCredit && req.ClientID == "" {
		return saleDraft{}, store.Invalid("client_id", "is required for a credit sale")
	}
	if !req.IsCredit {
		req.ClientID = ""
		req.OverrideCreditLimit = false
	}
	if req.OverrideCreditLimit {
		if err := requireAdmin(ctx, "override_credit_limit"); err != nil {
			return saleDraft{}, err
		}
	}
	if len(req.Items) == 0 {
		return saleDraft{}, store.Invalid("items", "at least one line is required")
	}

	items := make([]domain.DaySaleItem, 0, len(req.Items))
	index := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return saleDraft{}, store.Invalid("product_id", "is required")
		}
		if line.QuantityCartons <= 0 {
			return saleDraft{}, store.Invalid("quantity_cartons", "must be positive")
		}
		if i, seen := index[productID]; seen {
			items[i].QuantityCartons += line.QuantityCartons
			continue
		}
		index[productID] = len(items)
		items = append(items, domain.DaySaleItem{ProductID: productID, QuantityCartons: line.QuantityCartons})
	}

	sale := domain.DaySale{
		PointOfSaleID: req.PointOfSaleID,
		StoreID:       req.StoreID,
		Seller:        defaultString(req.Seller, actorName(ctx)),
		IsCredit:      req.IsCredit,
		ClientID:      req.ClientID,
		Items:         items,
		Note:          strings.TrimSpace(req.Note),
	}
	if req.SaleDate != nil {
		sale.SaleDate = req.SaleDate.UTC()
	}
	return saleDraft{sale: sale, override: req.OverrideCreditLimit}, nil
}

// applyDaySale prices every line at the product's selling price, takes the
// cartons out of the store and books the total into the till: solde for
// cash, client debt and impayer for credit. Stock is checked before credit.
func applyDaySale(ctx context.Context, u *ledger.Unit, sale *domain.DaySale, override bool) error {
	sto, err := u.Store(ctx, sale.StoreID)
	if err != nil {
		return err
	}
	if sto.PointOfSaleID != sale.PointOfSaleID {
		return store.Invalid("store_id", "store does not belong to this point of sale")
	}
	if _, err := u.PointOfSale(ctx, sale.PointOfSaleID); err != nil {
		return err
	}

	ref := xid.Short(sale.ID)
	sale.TotalAmount = 0
	for i := range sale.Items {
		item := &sale.Items[i]
		product, err := u.Product(ctx, item.ProductID)
		if err != nil {
			return err
		}
		item.ProductName = product.Name
		item.UnitPrice = product.SellingPrice
		item.SubTotal = int64(item.QuantityCartons) * product.SellingPrice
		if err := u.Decrement(ctx, sale.StoreID, item.ProductID, item.QuantityCartons, ledger.Movement{
			Kind:        domain.StockSaleOut,
			Description: fmt.Sprintf("sale #%s: %d ctn of %s", ref, item.QuantityCartons, product.Name),
			ReferenceID: sale.ID,
		}); err != nil {
			return err
		}
		sale.TotalAmount += item.SubTotal
	}
	if sale.TotalAmount == 0 {
		return nil
	}

	if !sale.IsCredit {
		_, err = u.ApplyTill(ctx, ledger.TillEntry{
			PointOfSaleID: sale.PointOfSaleID,
			Delta:         domain.TillDelta{Solde: sale.TotalAmount},
		})
		return err
	}

	if _, err := u.ApplyClientDebt(ctx, ledger.DebtEntry{
		ClientID:      sale.ClientID,
		Type:          domain.ClientCreditPurchase,
		Amount:        sale.TotalAmount,
		Description:   fmt.Sprintf("credit sale #%s", ref),
		DaySaleID:     sale.ID,
		PointOfSaleID: sale.PointOfSaleID,
		Override:      override,
	}); err != nil {
		return err
	}
	_, err = u.ApplyTill(ctx, ledger.TillEntry{
		PointOfSaleID: sale.PointOfSaleID,
		Delta:         domain.TillDelta{Impayer: sale.TotalAmount},
	})
	return err
}

func saleDetail(sale domain.DaySale, override bool) string {
	detail := fmt.Sprintf("pos=%s,store=%s,total=%d,credit=%t", sale.PointOfSaleID, sale.StoreID, sale.TotalAmount, sale.IsCredit)
	if sale.IsCredit {
		detail += ",client=" + sale.ClientID
	}
	if override {
		detail += ",override=true"
	}
	return detail
}

func cloneSaleItems(items []domain.DaySaleItem) []domain.DaySaleItem {
	out := make([]domain.DaySaleItem, len(items))
	copy(out, items)
	return out
}
