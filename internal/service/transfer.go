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

// CreateTransfer moves stock between two stores. A RESTOCK also sells the
// goods to the destination's point of sale at selling price, raising what
// that till owes the owner.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResponse, error) {
	draft, err := transferDraft(req)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	var created domain.TransferResponse
	id, replayed, err := s.once(ctx, "transfer", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			t := draft
			t.ID = xid.New("trf")
			t.Lines = make([]domain.TransferLine, len(draft.Lines))
			copy(t.Lines, draft.Lines)
			t.Actor = u.Actor()
			t.CreatedAt = u.Now()

			sale, err := applyTransfer(ctx, u, &t)
			if err != nil {
				return err
			}
			if sale != nil {
				if err := u.Tx().SaveTransferSale(ctx, *sale); err != nil {
					return err
				}
			}
			if err := u.Tx().SaveTransfer(ctx, t); err != nil {
				return err
			}
			created = domain.TransferResponse{Transfer: t, TransferSale: sale}
			return nil
		})
		return created.Transfer.ID, err
	})
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if replayed {
		return s.GetTransfer(ctx, id)
	}

	t := created.Transfer
	s.logAudit(ctx, "transfer_create", "transfer", t.ID, fmt.Sprintf("kind=%s,from=%s,to=%s,lines=%d", t.Kind, t.FromStoreID, t.ToStoreID, len(t.Lines)))
	return created, nil
}

// UpdateTransfer moves the old lines back, then applies the edited transfer
// against the restored quantities. A restock's notional sale is rewritten to
// match.
func (s *Service) UpdateTransfer(ctx context.Context, transferID string, req domain.TransferRequest) (domain.TransferResponse, error) {
	draft, err := transferDraft(req)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	var updated domain.TransferResponse
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		oldSale, err := transferSaleOf(ctx, u, *existing)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseTransfer(*existing, oldSale)); err != nil {
			return err
		}
		if existing.TransferSaleID != "" {
			if err := u.Tx().DeleteTransferSale(ctx, existing.TransferSaleID); err != nil {
				return err
			}
		}

		t := draft
		t.ID = existing.ID
		t.Lines = make([]domain.TransferLine, len(draft.Lines))
		copy(t.Lines, draft.Lines)
		t.Actor = existing.Actor
		t.CreatedAt = existing.CreatedAt

		sale, err := applyTransfer(ctx, u, &t)
		if err != nil {
			return err
		}
		if sale != nil {
			if oldSale != nil {
				sale.ID = oldSale.ID
				sale.CreatedAt = oldSale.CreatedAt
				t.TransferSaleID = oldSale.ID
			}
			if err := u.Tx().SaveTransferSale(ctx, *sale); err != nil {
				return err
			}
		}
		if err := u.Tx().SaveTransfer(ctx, t); err != nil {
			return err
		}
		updated = domain.TransferResponse{Transfer: t, TransferSale: sale}
		return nil
	})
	if err != nil {
		return domain.TransferResponse{}, err
	}

	t := updated.Transfer
	s.logAudit(ctx, "transfer_update", "transfer", t.ID, fmt.Sprintf("kind=%s,from=%s,to=%s,lines=%d", t.Kind, t.FromStoreID, t.ToStoreID, len(t.Lines)))
	return updated, nil
}

func (s *Service) DeleteTransfer(ctx context.Context, transferID string) error {
	var deleted domain.Transfer
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		sale, err := transferSaleOf(ctx, u, *existing)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseTransfer(*existing, sale)); err != nil {
			return err
		}
		if existing.TransferSaleID != "" {
			if err := u.Tx().DeleteTransferSale(ctx, existing.TransferSaleID); err != nil {
				return err
			}
		}
		deleted = *existing
		return u.Tx().DeleteTransfer(ctx, existing.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "transfer_delete", "transfer", deleted.ID, fmt.Sprintf("kind=%s", deleted.Kind))
	return nil
}

func (s *Service) GetTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	resp := domain.TransferResponse{Transfer: *t}
	if t.TransferSaleID != "" {
		sale, err := s.repo.GetTransferSale(ctx, t.TransferSaleID)
		if err != nil {
			return domain.TransferResponse{}, err
		}
		resp.TransferSale = sale
	}
	return resp, nil
}

func (s *Service) ListTransfers(ctx context.Context, storeID string, limit int) ([]domain.Transfer, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListTransfers(ctx, strings.TrimSpace(storeID), limit)
}

// transferSaleOf loads the notional sale a restock produced. A missing row
// yields nil so the stock side can still be reversed.
func transferSaleOf(ctx context.Context, u *ledger.Unit, t domain.Transfer) (*domain.TransferSale, error) {
	if t.TransferSaleID == "" {
		return nil, nil
	}
	sale, err := u.Tx().GetTransferSale(ctx, t.TransferSaleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return sale, err
}

func transferDraft(req domain.TransferRequest) (domain.Transfer, error) {
	req.FromStoreID = strings.TrimSpace(req.FromStoreID)
	req.ToStoreID = strings.TrimSpace(req.ToStoreID)
	if _, _, ok := req.Kind.StoreTypes(); !ok {
		return domain.Transfer{}, store.Invalid("kind", "must be RESTOCK, BRANCH_TRANSFER or RETURN")
	}
	if req.FromStoreID == "" || req.ToStoreID == "" {
		return domain.Transfer{}, store.Invalid("store_id", "source and destination are required")
	}
	if req.FromStoreID == req.ToStoreID {
		return domain.Transfer{}, store.Invalid("to_store_id", "source and destination must differ")
	}
	if len(req.Lines) == 0 {
		return domain.Transfer{}, store.Invalid("lines", "at least one line is required")
	}

	lines := make([]domain.TransferLine, 0, len(req.Lines))
	index := make(map[string]int, len(req.Lines))
	for _, line := range req.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Transfer{}, store.Invalid("product_id", "is required")
		}
		if line.Quantity <= 0 {
			return domain.Transfer{}, store.Invalid("quantity", "must be positive")
		}
		if i, seen := index[productID]; seen {
			lines[i].Quantity += line.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, domain.TransferLine{ProductID: productID, Quantity: line.Quantity})
	}

	return domain.Transfer{
		Kind:        req.Kind,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Lines:       lines,
		Note:        strings.TrimSpace(req.Note),
	}, nil
}

// applyTransfer checks the store types against the kind and moves every
// line. It returns the notional sale for a RESTOCK and nil otherwise.
func applyTransfer(ctx context.Context, u *ledger.Unit, t *domain.Transfer) (*domain.TransferSale, error) {
	wantFrom, wantTo, _ := t.Kind.StoreTypes()
	from, err := u.Store(ctx, t.FromStoreID)
	if err != nil {
		return nil, err
	}
	to, err := u.Store(ctx, t.ToStoreID)
	if err != nil {
		return nil, err
	}
	if from.Type != wantFrom || to.Type != wantTo {
		return nil, store.Invalid("kind", fmt.Sprintf("%s moves stock from a %s store to a %s store", t.Kind, wantFrom, wantTo))
	}

	kind := domain.StockReturn
	if t.Kind == domain.TransferRestock {
		kind = domain.StockTransfer
	}

	ref := xid.Short(t.ID)
	var sale *domain.TransferSale
	if t.Kind == domain.TransferRestock {
		sale = &domain.TransferSale{
			ID:            xid.New("tsl"),
			PointOfSaleID: to.PointOfSaleID,
			TransferID:    t.ID,
			Items:         make([]domain.TransferSaleItem, 0, len(t.Lines)),
			CreatedAt:     u.Now(),
		}
		t.TransferSaleID = sale.ID
	}

	for i := range t.Lines {
		line := &t.Lines[i]
		product, err := u.Product(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		line.ProductName = product.Name
		if err := u.Move(ctx, t.FromStoreID, t.ToStoreID, line.ProductID, line.Quantity, ledger.Movement{
			Kind:        kind,
			Description: fmt.Sprintf("transfer REF %s: %d ctn of %s from %s to %s", ref, line.Quantity, product.Name, from.Name, to.Name),
			ReferenceID: t.ID,
		}); err != nil {
			return nil, err
		}
		if sale != nil {
			subTotal := int64(line.Quantity) * product.SellingPrice
			sale.Items = append(sale.Items, domain.TransferSaleItem{
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.SellingPrice,
				SubTotal:    subTotal,
			})
			sale.TotalAmount += subTotal
		}
	}

	if sale != nil && sale.TotalAmount != 0 {
		if _, err := u.ApplyTill(ctx, ledger.TillEntry{
			PointOfSaleID: sale.PointOfSaleID,
			Delta:         domain.TillDelta{DebtToOwner: sale.TotalAmount},
		}); err != nil {
			return nil, err
		}
	}
	return sale, nil
}

func (s *Service) RecordLoss(ctx context.Context, req domain.LossRequest) (domain.Loss, error) {
	draft, err := lossDraft(req)
	if err != nil {
		return domain.Loss{}, err
	}

	var created domain.Loss
	id, replayed, err := s.once(ctx, "loss", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			loss := draft
			loss.ID = xid.New("loss")
			loss.Actor = u.Actor()
			loss.CreatedAt = u.Now()
			if err := applyLoss(ctx, u, loss); err != nil {
				return err
			}
			if err := u.Tx().SaveLoss(ctx, loss); err != nil {
				return err
			}
			created = loss
			return nil
		})
		return created.ID, err
	})
	if err != nil {
		return domain.Loss{}, err
	}
	if replayed {
		return s.GetLoss(ctx, id)
	}

	s.logAudit(ctx, "loss_create", "loss", created.ID, fmt.Sprintf("store=%s,product=%s,qty=%d,reason=%s", created.StoreID, created.ProductID, created.Quantity, created.Reason))
	return created, nil
}

// UpdateLoss puts the recorded cartons back, then writes off the edited
// quantity against the restored stock.
func (s *Service) UpdateLoss(ctx context.Context, lossID string, req domain.LossRequest) (domain.Loss, error) {
	draft, err := lossDraft(req)
	if err != nil {
		return domain.Loss{}, err
	}

	var updated domain.Loss
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetLossForUpdate(ctx, lossID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseLoss(*existing)); err != nil {
			return err
		}
		loss := draft
		loss.ID = existing.ID
		loss.Actor = existing.Actor
		loss.CreatedAt = existing.CreatedAt
		if err := applyLoss(ctx, u, loss); err != nil {
			return err
		}
		if err := u.Tx().SaveLoss(ctx, loss); err != nil {
			return err
		}
		updated = loss
		return nil
	})
	if err != nil {
		return domain.Loss{}, err
	}

	s.logAudit(ctx, "loss_update", "loss", updated.ID, fmt.Sprintf("store=%s,product=%s,qty=%d,reason=%s", updated.StoreID, updated.ProductID, updated.Quantity, updated.Reason))
	return updated, nil
}

func (s *Service) DeleteLoss(ctx context.Context, lossID string) error {
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetLossForUpdate(ctx, lossID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseLoss(*existing)); err != nil {
			return err
		}
		return u.Tx().DeleteLoss(ctx, existing.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "loss_delete", "loss", lossID, "")
	return nil
}

func (s *Service) GetLoss(ctx context.Context, lossID string) (domain.Loss, error) {
	loss, err := s.repo.GetLoss(ctx, lossID)
	if err != nil {
		return domain.Loss{}, err
	}
	return *loss, nil
}

func (s *Service) ListLosses(ctx context.Context, storeID string, limit int) ([]domain.Loss, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListLosses(ctx, strings.TrimSpace(storeID), limit)
}

func lossDraft(req domain.LossRequest) (domain.Loss, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.StoreID == "":
		return domain.Loss{}, store.Invalid("store_id", "is required")
	case req.ProductID == "":
		return domain.Loss{}, store.Invalid("product_id", "is required")
	case req.Quantity <= 0:
		return domain.Loss{}, store.Invalid("quantity", "must be positive")
	case req.Reason == "":
		return domain.Loss{}, store.Invalid("reason", "is required")
	}
	return domain.Loss{
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
	}, nil
}

func applyLoss(ctx context.Context, u *ledger.Unit, loss domain.Loss) error {
	product, err := u.Product(ctx, loss.ProductID)
	if err != nil {
		return err
	}
	return u.Decrement(ctx, loss.StoreID, loss.ProductID, loss.Quantity, ledger.Movement{
		Kind:        domain.StockLoss,
		Description: fmt.Sprintf("loss REF %s: %d ctn of %s (%s)", xid.Short(loss.ID), loss.Quantity, product.Name, loss.Reason),
		ReferenceID: loss.ID,
	})
}
