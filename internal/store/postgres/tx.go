package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *pgTx) SetProductPurchasePrice(ctx context.Context, productID string, price int64, at time.Time) error {
	return t.execOne(ctx, "product", productID, `UPDATE products SET purchase_price = $2, updated_at = $3 WHERE id = $1`, productID, price, at)
}

// GetStoreForUpdate takes a share lock: the store row itself never changes
// inside a unit, but it must not be deleted under one.
func (t *pgTx) GetStoreForUpdate(ctx context.Context, id string) (*domain.Store, error) {
	return getStore(ctx, t.tx, id, "FOR SHARE")
}

func (t *pgTx) GetStockForUpdate(ctx context.Context, storeID string, productID string) (int, error) {
	var qty int
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM store_items
		WHERE store_id = $1 AND product_id = $2
		FOR UPDATE
	`, storeID, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, translate("get stock", err)
	}
	return qty, nil
}

func (t *pgTx) AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error) {
	var qty int
	if delta > 0 {
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO store_items (store_id, product_id, quantity)
			VALUES ($1,$2,$3)
			ON CONFLICT (store_id, product_id)
			DO UPDATE SET quantity = store_items.quantity + EXCLUDED.quantity
			RETURNING quantity
		`, storeID, productID, delta).Scan(&qty)
		return qty, translate("adjust stock", err)
	}
	err := t.tx.QueryRowContext(ctx, `
		UPDATE store_items
		SET quantity = quantity + $3
		WHERE store_id = $1 AND product_id = $2 AND quantity + $3 >= 0
		RETURNING quantity
	`, storeID, productID, delta).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &store.InsufficientStockError{StoreID: storeID, ProductID: productID, Requested: -delta}
	}
	return qty, translate("adjust stock", err)
}

func (t *pgTx) GetCashRegisterForUpdate(ctx context.Context) (*domain.CashRegister, error) {
	return getCashRegister(ctx, t.tx, "FOR UPDATE")
}

func (t *pgTx) AdjustCashRegister(ctx context.Context, delta domain.RegisterDelta, at time.Time) (*domain.CashRegister, error) {
	var reg domain.CashRegister
	err := t.tx.QueryRowContext(ctx, `
		UPDATE cash_register
		SET current_balance = current_balance + $2,
			cumulative_in = cumulative_in + $3,
			cumulative_out = cumulative_out + $4,
			last_updated = $5
		WHERE id = $1 AND current_balance + $2 >= 0
		RETURNING id, current_balance, cumulative_in, cumulative_out, last_updated
	`, domain.CashRegisterID, delta.Balance, delta.In, delta.Out, at).
		Scan(&reg.ID, &reg.CurrentBalance, &reg.CumulativeIn, &reg.CumulativeOut, &reg.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.InsufficientFundsError{Account: "cash_register", Requested: -delta.Balance}
	}
	if err != nil {
		return nil, translate("adjust cash register", err)
	}
	return &reg, nil
}

func (t *pgTx) GetSupplierForUpdate(ctx context.Context, id string) (*domain.Supplier, error) {
	return getSupplier(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) AdjustSupplierBalance(ctx context.Context, id string, delta int64) error {
	return t.execOne(ctx, "supplier", id, `UPDATE suppliers SET balance = balance + $2 WHERE id = $1`, id, delta)
}

func (t *pgTx) GetClientForUpdate(ctx context.Context, id string) (*domain.Client, error) {
	return getClient(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) AdjustClientDebt(ctx context.Context, id string, delta int64, at time.Time) error {
	return t.execOne(ctx, "client", id, `UPDATE clients SET current_debt = current_debt + $2, updated_at = $3 WHERE id = $1`, id, delta, at)
}

func (t *pgTx) GetPointOfSaleForUpdate(ctx context.Context, id string) (*domain.PointOfSale, error) {
	return getPointOfSale(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) AdjustPointOfSale(ctx context.Context, id string, delta domain.TillDelta) error {
	return t.execOne(ctx, "point of sale", id, `
		UPDATE points_of_sale
		SET solde = solde + $2, total_debt_to_owner = total_debt_to_owner + $3, impayer = impayer + $4
		WHERE id = $1
	`, id, delta.Solde, delta.DebtToOwner, delta.Impayer)
}

func (t *pgTx) AppendStockMovement(ctx context.Context, m domain.StockMovement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, from_store_id, to_store_id, quantity, kind, description, reference_id, reversal, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, m.ID, m.ProductID, nullIfEmpty(m.FromStoreID), nullIfEmpty(m.ToStoreID), m.Quantity, string(m.Kind),
		m.Description, nullIfEmpty(m.ReferenceID), m.Reversal, m.Actor, m.CreatedAt)
	return translate("append stock movement", err)
}

func (t *pgTx) AppendCashMovement(ctx context.Context, m domain.CashMovement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_movements (
			id, direction, category, amount, balance_after, description, reversal,
			purchase_id, supplier_id, store_id, point_of_sale_id, owner_payment_id, expense_id,
			actor, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, m.ID, string(m.Direction), string(m.Category), m.Amount, m.BalanceAfter, m.Description, m.Reversal,
		nullIfEmpty(m.PurchaseID), nullIfEmpty(m.SupplierID), nullIfEmpty(m.StoreID), nullIfEmpty(m.PointOfSaleID),
		nullIfEmpty(m.OwnerPaymentID), nullIfEmpty(m.ExpenseID), m.Actor, m.CreatedAt)
	return translate("append cash movement", err)
}

func (t *pgTx) AppendClientTransaction(ctx context.Context, e domain.ClientTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO client_transactions (id, client_id, type, amount, balance_after, description, day_sale_id, point_of_sale_id, reversal, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.ClientID, string(e.Type), e.Amount, e.BalanceAfter, e.Description,
		nullIfEmpty(e.DaySaleID), nullIfEmpty(e.PointOfSaleID), e.Reversal, e.Actor, e.CreatedAt)
	return translate("append client transaction", err)
}

func (t *pgTx) GetPurchaseForUpdate(ctx context.Context, id string) (*domain.Purchase, error) {
	return getPurchase(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SavePurchase(ctx context.Context, p domain.Purchase) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, store_id, funding_mode, items, total_amount, expense_id, buyer, description, purchased_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			supplier_id = EXCLUDED.supplier_id,
			store_id = EXCLUDED.store_id,
			funding_mode = EXCLUDED.funding_mode,
			items = EXCLUDED.items,
			total_amount = EXCLUDED.total_amount,
			expense_id = EXCLUDED.expense_id,
			buyer = EXCLUDED.buyer,
			description = EXCLUDED.description,
			purchased_at = EXCLUDED.purchased_at,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.SupplierID, p.StoreID, string(p.FundingMode), items, p.TotalAmount, nullIfEmpty(p.ExpenseID),
		p.Buyer, p.Description, p.PurchasedAt, p.CreatedAt, p.UpdatedAt)
	return translate("save purchase", err)
}

func (t *pgTx) DeletePurchase(ctx context.Context, id string) error {
	return t.execOne(ctx, "purchase", id, `DELETE FROM purchases WHERE id = $1`, id)
}

func (t *pgTx) GetDaySaleForUpdate(ctx context.Context, id string) (*domain.DaySale, error) {
	return getDaySale(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveDaySale(ctx context.Context, s domain.DaySale) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO day_sales (id, point_of_sale_id, store_id, seller, is_credit, client_id, items, total_amount, sale_date, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			point_of_sale_id = EXCLUDED.point_of_sale_id,
			store_id = EXCLUDED.store_id,
			seller = EXCLUDED.seller,
			is_credit = EXCLUDED.is_credit,
			client_id = EXCLUDED.client_id,
			items = EXCLUDED.items,
			total_amount = EXCLUDED.total_amount,
			sale_date = EXCLUDED.sale_date,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.PointOfSaleID, s.StoreID, s.Seller, s.IsCredit, nullIfEmpty(s.ClientID), items, s.TotalAmount,
		s.SaleDate, s.Note, s.CreatedAt, s.UpdatedAt)
	return translate("save day sale", err)
}

func (t *pgTx) DeleteDaySale(ctx context.Context, id string) error {
	return t.execOne(ctx, "day sale", id, `DELETE FROM day_sales WHERE id = $1`, id)
}

func (t *pgTx) GetOwnerPaymentForUpdate(ctx context.Context, id string) (*domain.OwnerPayment, error) {
	return getOwnerPayment(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveOwnerPayment(ctx context.Context, p domain.OwnerPayment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO owner_payments (id, point_of_sale_id, amount, method, received_by, cash_movement_id, note, paid_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			point_of_sale_id = EXCLUDED.point_of_sale_id,
			amount = EXCLUDED.amount,
			method = EXCLUDED.method,
			received_by = EXCLUDED.received_by,
			cash_movement_id = EXCLUDED.cash_movement_id,
			note = EXCLUDED.note,
			paid_at = EXCLUDED.paid_at,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.PointOfSaleID, p.Amount, string(p.Method), p.ReceivedBy, nullIfEmpty(p.CashMovementID), p.Note,
		p.PaidAt, p.CreatedAt, p.UpdatedAt)
	return translate("save owner payment", err)
}

func (t *pgTx) DeleteOwnerPayment(ctx context.Context, id string) error {
	return t.execOne(ctx, "owner payment", id, `DELETE FROM owner_payments WHERE id = $1`, id)
}

func (t *pgTx) GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransfer(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveTransfer(ctx context.Context, tr domain.Transfer) error {
	lines, err := json.Marshal(tr.Lines)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transfers (id, kind, from_store_id, to_store_id, lines, transfer_sale_id, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			from_store_id = EXCLUDED.from_store_id,
			to_store_id = EXCLUDED.to_store_id,
			lines = EXCLUDED.lines,
			transfer_sale_id = EXCLUDED.transfer_sale_id,
			note = EXCLUDED.note
	`, tr.ID, string(tr.Kind), tr.FromStoreID, tr.ToStoreID, lines, nullIfEmpty(tr.TransferSaleID), tr.Note, tr.Actor, tr.CreatedAt)
	return translate("save transfer", err)
}

func (t *pgTx) DeleteTransfer(ctx context.Context, id string) error {
	return t.execOne(ctx, "transfer", id, `DELETE FROM transfers WHERE id = $1`, id)
}

func (t *pgTx) GetTransferSale(ctx context.Context, id string) (*domain.TransferSale, error) {
	return getTransferSale(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveTransferSale(ctx context.Context, sale domain.TransferSale) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transfer_sales (id, point_of_sale_id, transfer_id, items, total_amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET items = EXCLUDED.items, total_amount = EXCLUDED.total_amount
	`, sale.ID, sale.PointOfSaleID, sale.TransferID, items, sale.TotalAmount, sale.CreatedAt)
	return translate("save transfer sale", err)
}

func (t *pgTx) DeleteTransferSale(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM transfer_sales WHERE id = $1`, id)
	return translate("delete transfer sale", err)
}

func (t *pgTx) GetLossForUpdate(ctx context.Context, id string) (*domain.Loss, error) {
	return getLoss(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveLoss(ctx context.Context, l domain.Loss) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO losses (id, store_id, product_id, quantity, reason, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			product_id = EXCLUDED.product_id,
			quantity = EXCLUDED.quantity,
			reason = EXCLUDED.reason
	`, l.ID, l.StoreID, l.ProductID, l.Quantity, l.Reason, l.Actor, l.CreatedAt)
	return translate("save loss", err)
}

func (t *pgTx) DeleteLoss(ctx context.Context, id string) error {
	return t.execOne(ctx, "loss", id, `DELETE FROM losses WHERE id = $1`, id)
}

func (t *pgTx) GetExpenseForUpdate(ctx context.Context, id string) (*domain.Expense, error) {
	return getExpense(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) SaveExpense(ctx context.Context, e domain.Expense) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO expenses (id, label, amount, category_id, purchase_id, cash_movement_id, note, actor, date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			amount = EXCLUDED.amount,
			category_id = EXCLUDED.category_id,
			cash_movement_id = EXCLUDED.cash_movement_id,
			note = EXCLUDED.note,
			date = EXCLUDED.date
	`, e.ID, e.Label, e.Amount, e.CategoryID, nullIfEmpty(e.PurchaseID), nullIfEmpty(e.CashMovementID), e.Note, e.Actor, e.Date, e.CreatedAt)
	return translate("save expense", err)
}

func (t *pgTx) DeleteExpense(ctx context.Context, id string) error {
	return t.execOne(ctx, "expense", id, `DELETE FROM expenses WHERE id = $1`, id)
}

func (t *pgTx) GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error) {
	var c domain.ExpenseCategory
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, description, color, created_at FROM expense_categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr("get expense category", err, "expense category", id)
	}
	return &c, nil
}

func (t *pgTx) EnsureExpenseCategory(ctx context.Context, name string, color string) (*domain.ExpenseCategory, error) {
	var c domain.ExpenseCategory
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO expense_categories (id, name, description, color, created_at)
		VALUES ($1,$2,'',$3,now())
		ON CONFLICT ((lower(name))) DO UPDATE SET name = expense_categories.name
		RETURNING id, name, description, color, created_at
	`, xid.New("cat"), name, color).Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.CreatedAt)
	if err != nil {
		return nil, translate("ensure expense category", err)
	}
	return &c, nil
}

func (t *pgTx) execOne(ctx context.Context, kind string, id string, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return translate("update "+kind, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &store.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

var _ store.Tx = (*pgTx)(nil)
