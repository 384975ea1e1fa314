package ledger

import (
	"context"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

type CashEntry struct {
	Direction   domain.CashDirection
	Amount      int64
	Category    domain.CashCategory
	Description string
	Refs        domain.CashRefs

	reversal bool
}

// ApplyCash moves money in or out of the central register and queues one
// CashMovement with the resulting balance. Outflows are guarded against
// the working balance.
//
// A reversal entry undoes an earlier movement of the opposite direction:
// the balance moves by the entry's direction but the cumulative counter of
// the original direction is reduced, so counters and balance return to
// their pre-operation values.
func (u *Unit) ApplyCash(ctx context.Context, e CashEntry) (domain.CashMovement, error) {
	if e.Amount <= 0 {
		return domain.CashMovement{}, store.Invalid("amount", "must be positive")
	}
	if e.Direction != domain.CashIn && e.Direction != domain.CashOut {
		return domain.CashMovement{}, store.Invalid("direction", "must be IN or OUT")
	}
	reg, err := u.registerState(ctx)
	if err != nil {
		return domain.CashMovement{}, err
	}

	switch {
	case e.Direction == domain.CashIn && !e.reversal:
		reg.cur.CurrentBalance += e.Amount
		reg.cur.CumulativeIn += e.Amount
	case e.Direction == domain.CashOut && !e.reversal:
		if reg.cur.CurrentBalance < e.Amount {
			return domain.CashMovement{}, &store.InsufficientFundsError{
				Account:   "cash_register",
				Available: reg.cur.CurrentBalance,
				Requested: e.Amount,
			}
		}
		reg.cur.CurrentBalance -= e.Amount
		reg.cur.CumulativeOut += e.Amount
	case e.Direction == domain.CashIn:
		reg.cur.CurrentBalance += e.Amount
		reg.cur.CumulativeOut -= e.Amount
	default:
		reg.cur.CurrentBalance -= e.Amount
		reg.cur.CumulativeIn -= e.Amount
	}
	reg.cur.LastUpdated = u.now

	movement := domain.CashMovement{
		ID:           xid.New("cmv"),
		Direction:    e.Direction,
		Category:     e.Category,
		Amount:       e.Amount,
		BalanceAfter: reg.cur.CurrentBalance,
		Description:  e.Description,
		Reversal:     e.reversal,
		CashRefs:     e.Refs,
		Actor:        u.actor,
		CreatedAt:    u.now,
	}
	u.cashMoves = append(u.cashMoves, movement)
	return movement, nil
}

// ApplySupplier changes the amount owed to a supplier.
func (u *Unit) ApplySupplier(ctx context.Context, supplierID string, delta int64) (domain.Supplier, error) {
	st, err := u.supplierState(ctx, supplierID)
	if err != nil {
		return domain.Supplier{}, err
	}
	st.cur.Balance += delta
	return st.cur, nil
}

type DebtEntry struct {
	ClientID      string
	Type          domain.ClientTransactionType
	Amount        int64
	Description   string
	DaySaleID     string
	PointOfSaleID string
	// Override lets staff sell on credit past the client's limit.
	Override bool

	reversal bool
}

// ApplyClientDebt records a credit purchase or a repayment and writes the
// ClientTransaction audit row. Credit purchases check the restriction flag
// and then the limit before touching anything.
func (u *Unit) ApplyClientDebt(ctx context.Context, e DebtEntry) (domain.ClientTransaction, error) {
	st, err := u.clientState(ctx, e.ClientID)
	if err != nil {
		return domain.ClientTransaction{}, err
	}

	if !e.reversal {
		if e.Amount <= 0 {
			return domain.ClientTransaction{}, store.Invalid("amount", "must be positive")
		}
		switch e.Type {
		case domain.ClientCreditPurchase:
			if st.cur.IsRestricted {
				return domain.ClientTransaction{}, &store.RestrictedClientError{ClientID: e.ClientID, Reason: st.cur.RestrictionReason}
			}
			if !e.Override && st.cur.CurrentDebt+e.Amount > st.cur.CreditLimit {
				return domain.ClientTransaction{}, &store.CreditLimitError{
					ClientID:    e.ClientID,
					CurrentDebt: st.cur.CurrentDebt,
					CreditLimit: st.cur.CreditLimit,
					Requested:   e.Amount,
				}
			}
		case domain.ClientRepayment:
			if e.Amount > st.cur.CurrentDebt {
				return domain.ClientTransaction{}, store.Invalid("amount", "exceeds client debt")
			}
		default:
			return domain.ClientTransaction{}, store.Invalid("type", "unknown client transaction type")
		}
	}

	entry := domain.ClientTransaction{
		ID:            xid.New("ctx"),
		ClientID:      e.ClientID,
		Type:          e.Type,
		Amount:        e.Amount,
		Description:   e.Description,
		DaySaleID:     e.DaySaleID,
		PointOfSaleID: e.PointOfSaleID,
		Reversal:      e.reversal,
		Actor:         u.actor,
		CreatedAt:     u.now,
	}
	st.cur.CurrentDebt += entry.DebtDelta()
	st.cur.UpdatedAt = u.now
	entry.BalanceAfter = st.cur.CurrentDebt
	u.clientTxs = append(u.clientTxs, entry)
	return entry, nil
}

type TillEntry struct {
	PointOfSaleID string
	Delta         domain.TillDelta
	// RequireSolde rejects the entry if the till cannot cover a negative solde delta.
	RequireSolde bool
}

func (u *Unit) ApplyTill(ctx context.Context, e TillEntry) (domain.PointOfSale, error) {
	st, err := u.tillState(ctx, e.PointOfSaleID)
	if err != nil {
		return domain.PointOfSale{}, err
	}
	if e.RequireSolde && e.Delta.Solde < 0 && st.cur.Solde+e.Delta.Solde < 0 {
		return domain.PointOfSale{}, &store.InsufficientFundsError{
			Account:   "till:" + e.PointOfSaleID,
			Available: st.cur.Solde,
			Requested: -e.Delta.Solde,
		}
	}
	st.cur.Solde += e.Delta.Solde
	st.cur.TotalDebtToOwner += e.Delta.DebtToOwner
	st.cur.Impayer += e.Delta.Impayer
	return st.cur, nil
}

// SetPurchasePrice makes price the product's reference purchase price.
func (u *Unit) SetPurchasePrice(ctx context.Context, productID string, price int64) error {
	if price <= 0 {
		return store.Invalid("unit_purchase_price", "must be positive")
	}
	if _, err := u.Product(ctx, productID); err != nil {
		return err
	}
	u.products[productID].PurchasePrice = price
	u.prices[productID] = price
	return nil
}
