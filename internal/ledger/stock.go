package ledger

import (
	"context"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

// Movement classifies the StockMovement row written by a stock call.
type Movement struct {
	Kind        domain.StockMovementKind
	Description string
	ReferenceID string

	reversal bool
}

// Increment adds qty cartons to a store line, creating the line if the
// product is not yet held there.
func (u *Unit) Increment(ctx context.Context, storeID string, productID string, qty int, m Movement) error {
	if qty <= 0 {
		return store.Invalid("quantity", "must be positive")
	}
	line, err := u.line(ctx, storeID, productID)
	if err != nil {
		return err
	}
	line.qty += qty
	u.recordStock(productID, "", storeID, qty, m)
	return nil
}

// Decrement removes qty cartons and fails with InsufficientStock when the
// working quantity does not cover it. Reversal steps skip the guard; the
// final state is still checked at flush.
func (u *Unit) Decrement(ctx context.Context, storeID string, productID string, qty int, m Movement) error {
	if qty <= 0 {
		return store.Invalid("quantity", "must be positive")
	}
	line, err := u.line(ctx, storeID, productID)
	if err != nil {
		return err
	}
	if !m.reversal && line.qty < qty {
		return u.insufficientStock(storeID, productID, line.qty, qty)
	}
	line.qty -= qty
	u.recordStock(productID, storeID, "", qty, m)
	return nil
}

// Move transfers qty cartons between two stores as one movement.
func (u *Unit) Move(ctx context.Context, fromStoreID string, toStoreID string, productID string, qty int, m Movement) error {
	if qty <= 0 {
		return store.Invalid("quantity", "must be positive")
	}
	if fromStoreID == toStoreID {
		return store.Invalid("to_store_id", "source and destination must differ")
	}
	if _, err := u.Store(ctx, fromStoreID); err != nil {
		return err
	}
	if _, err := u.Store(ctx, toStoreID); err != nil {
		return err
	}
	from, err := u.line(ctx, fromStoreID, productID)
	if err != nil {
		return err
	}
	to, err := u.line(ctx, toStoreID, productID)
	if err != nil {
		return err
	}
	if !m.reversal && from.qty < qty {
		return u.insufficientStock(fromStoreID, productID, from.qty, qty)
	}
	from.qty -= qty
	to.qty += qty
	u.recordStock(productID, fromStoreID, toStoreID, qty, m)
	return nil
}

func (u *Unit) recordStock(productID string, fromStoreID string, toStoreID string, qty int, m Movement) {
	u.stockMoves = append(u.stockMoves, domain.StockMovement{
		ID:          xid.New("smv"),
		ProductID:   productID,
		FromStoreID: fromStoreID,
		ToStoreID:   toStoreID,
		Quantity:    qty,
		Kind:        m.Kind,
		Description: m.Description,
		ReferenceID: m.ReferenceID,
		Reversal:    m.reversal,
		Actor:       u.actor,
		CreatedAt:   u.now,
	})
}
