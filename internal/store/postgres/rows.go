package postgres

import (
	"context"
	"encoding/json"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
)

const (
	cashMovementColumns = `id, direction, category, amount, balance_after, description, reversal,
		COALESCE(purchase_id, ''), COALESCE(supplier_id, ''), COALESCE(store_id, ''),
		COALESCE(point_of_sale_id, ''), COALESCE(owner_payment_id, ''), COALESCE(expense_id, ''),
		actor, created_at`
	productColumns      = `id, name, category, purchase_price, selling_price, low_stock_threshold, created_at, updated_at`
	pointOfSaleColumns  = `id, name, location, solde, total_debt_to_owner, impayer, created_at`
	supplierColumns     = `id, name, contact, category, balance, catalog, created_at`
	clientColumns       = `id, name, phone, credit_limit, current_debt, is_restricted, restriction_reason, created_at, updated_at`
	purchaseColumns     = `id, supplier_id, store_id, funding_mode, items, total_amount, COALESCE(expense_id, ''), buyer, description, purchased_at, created_at, updated_at`
	daySaleColumns      = `id, point_of_sale_id, store_id, seller, is_credit, COALESCE(client_id, ''), items, total_amount, sale_date, note, created_at, updated_at`
	ownerPaymentColumns = `id, point_of_sale_id, amount, method, received_by, COALESCE(cash_movement_id, ''), note, paid_at, created_at, updated_at`
	transferColumns     = `id, kind, from_store_id, to_store_id, lines, COALESCE(transfer_sale_id, ''), note, actor, created_at`
	lossColumns         = `id, store_id, product_id, quantity, reason, actor, created_at`
	expenseColumns      = `id, label, amount, category_id, COALESCE(purchase_id, ''), COALESCE(cash_movement_id, ''), note, actor, date, created_at`
)

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.PurchasePrice, &p.SellingPrice, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func getProduct(ctx context.Context, q querier, id string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr("get product", err, "product", id)
	}
	return p, nil
}

func scanPointOfSale(row rowScanner) (*domain.PointOfSale, error) {
	var pos domain.PointOfSale
	if err := row.Scan(&pos.ID, &pos.Name, &pos.Location, &pos.Solde, &pos.TotalDebtToOwner, &pos.Impayer, &pos.CreatedAt); err != nil {
		return nil, err
	}
	return &pos, nil
}

func getPointOfSale(ctx context.Context, q querier, id string, lock string) (*domain.PointOfSale, error) {
	pos, err := scanPointOfSale(q.QueryRowContext(ctx, `SELECT `+pointOfSaleColumns+` FROM points_of_sale WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get point of sale", err, "point of sale", id)
	}
	return pos, nil
}

func getStore(ctx context.Context, q querier, id string, lock string) (*domain.Store, error) {
	var sto domain.Store
	var storeType string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, point_of_sale_id, type, created_at
		FROM stores
		WHERE id = $1 `+lock, id).Scan(&sto.ID, &sto.Name, &sto.PointOfSaleID, &storeType, &sto.CreatedAt)
	if err != nil {
		return nil, notFoundOr("get store", err, "store", id)
	}
	sto.Type = domain.StoreType(storeType)
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	sto.Items = items
	return &sto, nil
}

func loadItems(ctx context.Context, q querier, storeID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT product_id, quantity FROM store_items WHERE store_id = $1`, storeID)
	if err != nil {
		return nil, translate("load store items", err)
	}
	defer rows.Close()

	items := make(map[string]int)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, translate("load store items", err)
		}
		items[productID] = qty
	}
	return items, translate("load store items", rows.Err())
}

func getCashRegister(ctx context.Context, q querier, lock string) (*domain.CashRegister, error) {
	var reg domain.CashRegister
	err := q.QueryRowContext(ctx, `
		SELECT id, current_balance, cumulative_in, cumulative_out, last_updated
		FROM cash_register
		WHERE id = $1 `+lock, domain.CashRegisterID).Scan(&reg.ID, &reg.CurrentBalance, &reg.CumulativeIn, &reg.CumulativeOut, &reg.LastUpdated)
	if err != nil {
		return nil, notFoundOr("get cash register", err, "cash register", domain.CashRegisterID)
	}
	return &reg, nil
}

func scanSupplier(row rowScanner) (*domain.Supplier, error) {
	var supplier domain.Supplier
	var catalog []byte
	if err := row.Scan(&supplier.ID, &supplier.Name, &supplier.Contact, &supplier.Category, &supplier.Balance, &catalog, &supplier.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(catalog, &supplier.Catalog); err != nil {
		return nil, err
	}
	return &supplier, nil
}

func getSupplier(ctx context.Context, q querier, id string, lock string) (*domain.Supplier, error) {
	supplier, err := scanSupplier(q.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get supplier", err, "supplier", id)
	}
	return supplier, nil
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.CreditLimit, &c.CurrentDebt, &c.IsRestricted, &c.RestrictionReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func getClient(ctx context.Context, q querier, id string, lock string) (*domain.Client, error) {
	c, err := scanClient(q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get client", err, "client", id)
	}
	return c, nil
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var funding string
	var items []byte
	if err := row.Scan(&p.ID, &p.SupplierID, &p.StoreID, &funding, &items, &p.TotalAmount, &p.ExpenseID,
		&p.Buyer, &p.Description, &p.PurchasedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.FundingMode = domain.FundingMode(funding)
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return nil, err
	}
	return &p, nil
}

func getPurchase(ctx context.Context, q querier, id string, lock string) (*domain.Purchase, error) {
	p, err := scanPurchase(q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get purchase", err, "purchase", id)
	}
	return p, nil
}

func scanDaySale(row rowScanner) (*domain.DaySale, error) {
	var sale domain.DaySale
	var items []byte
	if err := row.Scan(&sale.ID, &sale.PointOfSaleID, &sale.StoreID, &sale.Seller, &sale.IsCredit, &sale.ClientID,
		&items, &sale.TotalAmount, &sale.SaleDate, &sale.Note, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return nil, err
	}
	return &sale, nil
}

func getDaySale(ctx context.Context, q querier, id string, lock string) (*domain.DaySale, error) {
	sale, err := scanDaySale(q.QueryRowContext(ctx, `SELECT `+daySaleColumns+` FROM day_sales WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get day sale", err, "day sale", id)
	}
	return sale, nil
}

func scanOwnerPayment(row rowScanner) (*domain.OwnerPayment, error) {
	var p domain.OwnerPayment
	var method string
	if err := row.Scan(&p.ID, &p.PointOfSaleID, &p.Amount, &method, &p.ReceivedBy, &p.CashMovementID,
		&p.Note, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Method = domain.PaymentMethod(method)
	return &p, nil
}

func getOwnerPayment(ctx context.Context, q querier, id string, lock string) (*domain.OwnerPayment, error) {
	p, err := scanOwnerPayment(q.QueryRowContext(ctx, `SELECT `+ownerPaymentColumns+` FROM owner_payments WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get owner payment", err, "owner payment", id)
	}
	return p, nil
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var t domain.Transfer
	var kind string
	var lines []byte
	if err := row.Scan(&t.ID, &kind, &t.FromStoreID, &t.ToStoreID, &lines, &t.TransferSaleID, &t.Note, &t.Actor, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.TransferKind(kind)
	if err := json.Unmarshal(lines, &t.Lines); err != nil {
		return nil, err
	}
	return &t, nil
}

func getTransfer(ctx context.Context, q querier, id string, lock string) (*domain.Transfer, error) {
	t, err := scanTransfer(q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get transfer", err, "transfer", id)
	}
	return t, nil
}

func getTransferSale(ctx context.Context, q querier, id string, lock string) (*domain.TransferSale, error) {
	var sale domain.TransferSale
	var items []byte
	err := q.QueryRowContext(ctx, `
		SELECT id, point_of_sale_id, transfer_id, items, total_amount, created_at
		FROM transfer_sales
		WHERE id = $1 `+lock, id).Scan(&sale.ID, &sale.PointOfSaleID, &sale.TransferID, &items, &sale.TotalAmount, &sale.CreatedAt)
	if err != nil {
		return nil, notFoundOr("get transfer sale", err, "transfer sale", id)
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return nil, err
	}
	return &sale, nil
}

func scanLoss(row rowScanner) (*domain.Loss, error) {
	var l domain.Loss
	if err := row.Scan(&l.ID, &l.StoreID, &l.ProductID, &l.Quantity, &l.Reason, &l.Actor, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func getLoss(ctx context.Context, q querier, id string, lock string) (*domain.Loss, error) {
	l, err := scanLoss(q.QueryRowContext(ctx, `SELECT `+lossColumns+` FROM losses WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get loss", err, "loss", id)
	}
	return l, nil
}

func scanCashMovement(row rowScanner) (*domain.CashMovement, error) {
	var m domain.CashMovement
	var direction, category string
	if err := row.Scan(&m.ID, &direction, &category, &m.Amount, &m.BalanceAfter, &m.Description, &m.Reversal,
		&m.PurchaseID, &m.SupplierID, &m.StoreID, &m.PointOfSaleID, &m.OwnerPaymentID, &m.ExpenseID,
		&m.Actor, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Direction = domain.CashDirection(direction)
	m.Category = domain.CashCategory(category)
	return &m, nil
}

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var e domain.Expense
	if err := row.Scan(&e.ID, &e.Label, &e.Amount, &e.CategoryID, &e.PurchaseID, &e.CashMovementID, &e.Note, &e.Actor, &e.Date, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func getExpense(ctx context.Context, q querier, id string, lock string) (*domain.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, notFoundOr("get expense", err, "expense", id)
	}
	return e, nil
}

var _ store.Repository = (*Store)(nil)
