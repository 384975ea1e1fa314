package ledger

import (
	"context"
	"fmt"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/xid"
)

// Intent is one effect to undo. The Reverse* functions below derive intent
// lists from committed records without touching any state; Unit.Revert
// applies them inside the same unit as the replacement operation.
type Intent interface {
	revert(ctx context.Context, u *Unit) error
}

// StockDelta adds Quantity (negative removes) to a store line.
type StockDelta struct {
	StoreID     string
	ProductID   string
	Quantity    int
	Kind        domain.StockMovementKind
	Description string
	ReferenceID string
}

func (d StockDelta) revert(ctx context.Context, u *Unit) error {
	m := Movement{Kind: d.Kind, Description: d.Description, ReferenceID: d.ReferenceID, reversal: true}
	if d.Quantity >= 0 {
		return u.Increment(ctx, d.StoreID, d.ProductID, d.Quantity, m)
	}
	return u.Decrement(ctx, d.StoreID, d.ProductID, -d.Quantity, m)
}

type StockMove struct {
	FromStoreID string
	ToStoreID   string
	ProductID   string
	Quantity    int
	Kind        domain.StockMovementKind
	Description string
	ReferenceID string
}

func (d StockMove) revert(ctx context.Context, u *Unit) error {
	m := Movement{Kind: d.Kind, Description: d.Description, ReferenceID: d.ReferenceID, reversal: true}
	return u.Move(ctx, d.FromStoreID, d.ToStoreID, d.ProductID, d.Quantity, m)
}

// CashDelta writes a counter movement in Direction.
type CashDelta struct {
	Direction   domain.CashDirection
	Amount      int64
	Category    domain.CashCategory
	Description string
	Refs        domain.CashRefs
}

func (d CashDelta) revert(ctx context.Context, u *Unit) error {
	_, err := u.ApplyCash(ctx, CashEntry{
		Direction:   d.Direction,
		Amount:      d.Amount,
		Category:    d.Category,
		Description: d.Description,
		Refs:        d.Refs,
		reversal:    true,
	})
	return err
}

type SupplierDelta struct {
	SupplierID string
	Amount     int64
}

func (d SupplierDelta) revert(ctx context.Context, u *Unit) error {
	_, err := u.ApplySupplier(ctx, d.SupplierID, d.Amount)
	return err
}

// ClientDebtDelta records a negated ClientTransaction of the original type.
type ClientDebtDelta struct {
	ClientID      string
	Type          domain.ClientTransactionType
	Amount        int64
	Description   string
	DaySaleID     string
	PointOfSaleID string
}

func (d ClientDebtDelta) revert(ctx context.Context, u *Unit) error {
	_, err := u.ApplyClientDebt(ctx, DebtEntry{
		ClientID:      d.ClientID,
		Type:          d.Type,
		Amount:        d.Amount,
		Description:   d.Description,
		DaySaleID:     d.DaySaleID,
		PointOfSaleID: d.PointOfSaleID,
		reversal:      true,
	})
	return err
}

type TillChange struct {
	PointOfSaleID string
	Delta         domain.TillDelta
}

func (d TillChange) revert(ctx context.Context, u *Unit) error {
	_, err := u.ApplyTill(ctx, TillEntry{PointOfSaleID: d.PointOfSaleID, Delta: d.Delta})
	return err
}

// Revert applies intents in order. Guards are not evaluated per step; the
// unit's final state is checked before anything is persisted.
func (u *Unit) Revert(ctx context.Context, intents []Intent) error {
	for _, intent := range intents {
		if err := intent.revert(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func ReversePurchase(p domain.Purchase) []Intent {
	intents := make([]Intent, 0, len(p.Items)+1)
	for _, item := range p.Items {
		intents = append(intents, purchaseLineStock(p, item))
	}
	if funding := purchaseFunding(p, p.TotalAmount); funding != nil {
		intents = append(intents, funding)
	}
	return intents
}

// ReversePurchaseLine undoes a single line of a purchase. ok is false when
// the purchase has no line for productID.
func ReversePurchaseLine(p domain.Purchase, productID string) (intents []Intent, ok bool) {
	for _, item := range p.Items {
		if item.ProductID != productID {
			continue
		}
		intents = append(intents, purchaseLineStock(p, item))
		if funding := purchaseFunding(p, item.LineTotal()); funding != nil {
			intents = append(intents, funding)
		}
		return intents, true
	}
	return nil, false
}

func purchaseLineStock(p domain.Purchase, item domain.PurchaseItem) Intent {
	return StockDelta{
		StoreID:     p.StoreID,
		ProductID:   item.ProductID,
		Quantity:    -item.Quantity,
		Kind:        domain.StockReturn,
		Description: fmt.Sprintf("purchase REF %s cancelled: %d ctn of %s", xid.Short(p.ID), item.Quantity, item.ProductName),
		ReferenceID: p.ID,
	}
}

func purchaseFunding(p domain.Purchase, amount int64) Intent {
	if amount <= 0 {
		return nil
	}
	if p.FundingMode == domain.FundingSupplierCredit {
		return SupplierDelta{SupplierID: p.SupplierID, Amount: -amount}
	}
	return CashDelta{
		Direction:   domain.CashIn,
		Amount:      amount,
		Category:    domain.CashCategoryExpense,
		Description: fmt.Sprintf("purchase REF %s cancelled", xid.Short(p.ID)),
		Refs:        domain.CashRefs{PurchaseID: p.ID, SupplierID: p.SupplierID, StoreID: p.StoreID},
	}
}

func ReverseDaySale(s domain.DaySale) []Intent {
	ref := xid.Short(s.ID)
	intents := make([]Intent, 0, len(s.Items)+2)
	for _, item := range s.Items {
		intents = append(intents, StockDelta{
			StoreID:     s.StoreID,
			ProductID:   item.ProductID,
			Quantity:    item.QuantityCartons,
			Kind:        domain.StockReturn,
			Description: fmt.Sprintf("sale #%s cancelled: %d ctn of %s", ref, item.QuantityCartons, item.ProductName),
			ReferenceID: s.ID,
		})
	}
	if s.TotalAmount == 0 {
		return intents
	}
	if s.IsCredit {
		intents = append(intents,
			ClientDebtDelta{
				ClientID:      s.ClientID,
				Type:          domain.ClientCreditPurchase,
				Amount:        -s.TotalAmount,
				Description:   fmt.Sprintf("sale #%s cancelled", ref),
				DaySaleID:     s.ID,
				PointOfSaleID: s.PointOfSaleID,
			},
			TillChange{PointOfSaleID: s.PointOfSaleID, Delta: domain.TillDelta{Impayer: -s.TotalAmount}},
		)
		return intents
	}
	return append(intents, TillChange{PointOfSaleID: s.PointOfSaleID, Delta: domain.TillDelta{Solde: -s.TotalAmount}})
}

func ReverseOwnerPayment(p domain.OwnerPayment) []Intent {
	return []Intent{
		TillChange{PointOfSaleID: p.PointOfSaleID, Delta: domain.TillDelta{Solde: p.Amount}},
		CashDelta{
			Direction:   domain.CashOut,
			Amount:      p.Amount,
			Category:    domain.CashCategoryBranchRemittance,
			Description: fmt.Sprintf("remittance REF %s cancelled", xid.Short(p.ID)),
			Refs:        domain.CashRefs{PointOfSaleID: p.PointOfSaleID, OwnerPaymentID: p.ID},
		},
	}
}

// ReverseTransfer moves every line back. sale is the restock's notional
// sale, nil for returns and branch transfers.
func ReverseTransfer(t domain.Transfer, sale *domain.TransferSale) []Intent {
	kind := domain.StockReturn
	if t.Kind != domain.TransferRestock {
		kind = domain.StockTransfer
	}
	intents := make([]Intent, 0, len(t.Lines)+1)
	for _, line := range t.Lines {
		intents = append(intents, StockMove{
			FromStoreID: t.ToStoreID,
			ToStoreID:   t.FromStoreID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			Kind:        kind,
			Description: fmt.Sprintf("transfer REF %s cancelled: %d ctn of %s", xid.Short(t.ID), line.Quantity, line.ProductName),
			ReferenceID: t.ID,
		})
	}
	if sale != nil && sale.TotalAmount != 0 {
		intents = append(intents, TillChange{
			PointOfSaleID: sale.PointOfSaleID,
			Delta:         domain.TillDelta{DebtToOwner: -sale.TotalAmount},
		})
	}
	return intents
}

func ReverseLoss(l domain.Loss) []Intent {
	return []Intent{StockDelta{
		StoreID:     l.StoreID,
		ProductID:   l.ProductID,
		Quantity:    l.Quantity,
		Kind:        domain.StockAdjustment,
		Description: fmt.Sprintf("loss REF %s cancelled", xid.Short(l.ID)),
		ReferenceID: l.ID,
	}}
}

// ReverseExpense refunds a register-paid expense. Purchase-linked expenses
// carry no cash movement of their own and yield nothing.
func ReverseExpense(e domain.Expense) []Intent {
	if e.CashMovementID == "" || e.Amount <= 0 {
		return nil
	}
	return []Intent{CashDelta{
		Direction:   domain.CashIn,
		Amount:      e.Amount,
		Category:    domain.CashCategoryExpense,
		Description: fmt.Sprintf("expense %q cancelled", e.Label),
		Refs:        domain.CashRefs{ExpenseID: e.ID},
	}}
}
