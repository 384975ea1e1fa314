package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

// memTx runs with the store's write lock held, so ForUpdate reads need no
// extra locking.
type memTx struct {
	st *state
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	return getProduct(t.st, id)
}

func (t *memTx) SetProductPurchasePrice(_ context.Context, productID string, price int64, at time.Time) error {
	product, ok := t.st.products[productID]
	if !ok {
		return &store.NotFoundError{Kind: "product", ID: productID}
	}
	product.PurchasePrice = price
	product.UpdatedAt = at
	t.st.products[productID] = product
	return nil
}

func (t *memTx) GetStoreForUpdate(_ context.Context, id string) (*domain.Store, error) {
	return getStore(t.st, id)
}

func (t *memTx) GetStockForUpdate(_ context.Context, storeID string, productID string) (int, error) {
	sto, ok := t.st.stores[storeID]
	if !ok {
		return 0, &store.NotFoundError{Kind: "store", ID: storeID}
	}
	return sto.Items[productID], nil
}

func (t *memTx) AdjustStock(_ context.Context, storeID string, productID string, delta int) (int, error) {
	sto, ok := t.st.stores[storeID]
	if !ok {
		return 0, &store.NotFoundError{Kind: "store", ID: storeID}
	}
	current := sto.Items[productID]
	if current+delta < 0 {
		return current, &store.InsufficientStockError{StoreID: storeID, ProductID: productID, Available: current, Requested: -delta}
	}
	if sto.Items == nil {
		sto.Items = make(map[string]int)
		t.st.stores[storeID] = sto
	}
	sto.Items[productID] = current + delta
	return current + delta, nil
}

func (t *memTx) GetCashRegisterForUpdate(_ context.Context) (*domain.CashRegister, error) {
	reg := t.st.register
	return &reg, nil
}

func (t *memTx) AdjustCashRegister(_ context.Context, delta domain.RegisterDelta, at time.Time) (*domain.CashRegister, error) {
	reg := t.st.register
	if reg.CurrentBalance+delta.Balance < 0 {
		return nil, &store.InsufficientFundsError{Account: "cash_register", Available: reg.CurrentBalance, Requested: -delta.Balance}
	}
	reg.CurrentBalance += delta.Balance
	reg.CumulativeIn += delta.In
	reg.CumulativeOut += delta.Out
	reg.LastUpdated = at
	t.st.register = reg
	return &reg, nil
}

func (t *memTx) GetSupplierForUpdate(_ context.Context, id string) (*domain.Supplier, error) {
	return getSupplier(t.st, id)
}

func (t *memTx) AdjustSupplierBalance(_ context.Context, id string, delta int64) error {
	supplier, ok := t.st.suppliers[id]
	if !ok {
		return &store.NotFoundError{Kind: "supplier", ID: id}
	}
	supplier.Balance += delta
	t.st.suppliers[id] = supplier
	return nil
}

func (t *memTx) GetClientForUpdate(_ context.Context, id string) (*domain.Client, error) {
	return getClient(t.st, id)
}

func (t *memTx) AdjustClientDebt(_ context.Context, id string, delta int64, at time.Time) error {
	client, ok := t.st.clients[id]
	if !ok {
		return &store.NotFoundError{Kind: "client", ID: id}
	}
	client.CurrentDebt += delta
	client.UpdatedAt = at
	t.st.clients[id] = client
	return nil
}

func (t *memTx) GetPointOfSaleForUpdate(_ context.Context, id string) (*domain.PointOfSale, error) {
	return getPointOfSale(t.st, id)
}

func (t *memTx) AdjustPointOfSale(_ context.Context, id string, delta domain.TillDelta) error {
	pos, ok := t.st.pointsOfSale[id]
	if !ok {
		return &store.NotFoundError{Kind: "point of sale", ID: id}
	}
	pos.Solde += delta.Solde
	pos.TotalDebtToOwner += delta.DebtToOwner
	pos.Impayer += delta.Impayer
	t.st.pointsOfSale[id] = pos
	return nil
}

func (t *memTx) AppendStockMovement(_ context.Context, movement domain.StockMovement) error {
	t.st.stockMovements = append(t.st.stockMovements, movement)
	return nil
}

func (t *memTx) AppendCashMovement(_ context.Context, movement domain.CashMovement) error {
	t.st.cashMovements = append(t.st.cashMovements, movement)
	return nil
}

func (t *memTx) AppendClientTransaction(_ context.Context, entry domain.ClientTransaction) error {
	t.st.clientTxs = append(t.st.clientTxs, entry)
	return nil
}

func (t *memTx) GetPurchaseForUpdate(_ context.Context, id string) (*domain.Purchase, error) {
	purchase, ok := t.st.purchases[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "purchase", ID: id}
	}
	return clonePurchase(purchase), nil
}

func (t *memTx) SavePurchase(_ context.Context, purchase domain.Purchase) error {
	t.st.purchases[purchase.ID] = *clonePurchase(purchase)
	return nil
}

func (t *memTx) DeletePurchase(_ context.Context, id string) error {
	if _, ok := t.st.purchases[id]; !ok {
		return &store.NotFoundError{Kind: "purchase", ID: id}
	}
	delete(t.st.purchases, id)
	return nil
}

func (t *memTx) GetDaySaleForUpdate(_ context.Context, id string) (*domain.DaySale, error) {
	sale, ok := t.st.daySales[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "day sale", ID: id}
	}
	return cloneDaySale(sale), nil
}

func (t *memTx) SaveDaySale(_ context.Context, sale domain.DaySale) error {
	t.st.daySales[sale.ID] = *cloneDaySale(sale)
	return nil
}

func (t *memTx) DeleteDaySale(_ context.Context, id string) error {
	if _, ok := t.st.daySales[id]; !ok {
		return &store.NotFoundError{Kind: "day sale", ID: id}
	}
	delete(t.st.daySales, id)
	return nil
}

func (t *memTx) GetOwnerPaymentForUpdate(_ context.Context, id string) (*domain.OwnerPayment, error) {
	payment, ok := t.st.ownerPayments[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "owner payment", ID: id}
	}
	return &payment, nil
}

func (t *memTx) SaveOwnerPayment(_ context.Context, payment domain.OwnerPayment) error {
	t.st.ownerPayments[payment.ID] = payment
	return nil
}

func (t *memTx) DeleteOwnerPayment(_ context.Context, id string) error {
	if _, ok := t.st.ownerPayments[id]; !ok {
		return &store.NotFoundError{Kind: "owner payment", ID: id}
	}
	delete(t.st.ownerPayments, id)
	return nil
}

func (t *memTx) GetTransferForUpdate(_ context.Context, id string) (*domain.Transfer, error) {
	transfer, ok := t.st.transfers[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "transfer", ID: id}
	}
	transfer.Lines = slices.Clone(transfer.Lines)
	return &transfer, nil
}

func (t *memTx) SaveTransfer(_ context.Context, transfer domain.Transfer) error {
	transfer.Lines = slices.Clone(transfer.Lines)
	t.st.transfers[transfer.ID] = transfer
	return nil
}

func (t *memTx) DeleteTransfer(_ context.Context, id string) error {
	if _, ok := t.st.transfers[id]; !ok {
		return &store.NotFoundError{Kind: "transfer", ID: id}
	}
	delete(t.st.transfers, id)
	return nil
}

func (t *memTx) GetTransferSale(_ context.Context, id string) (*domain.TransferSale, error) {
	sale, ok := t.st.transferSales[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "transfer sale", ID: id}
	}
	sale.Items = slices.Clone(sale.Items)
	return &sale, nil
}

func (t *memTx) SaveTransferSale(_ context.Context, sale domain.TransferSale) error {
	sale.Items = slices.Clone(sale.Items)
	t.st.transferSales[sale.ID] = sale
	return nil
}

func (t *memTx) DeleteTransferSale(_ context.Context, id string) error {
	delete(t.st.transferSales, id)
	return nil
}

func (t *memTx) GetLossForUpdate(_ context.Context, id string) (*domain.Loss, error) {
	loss, ok := t.st.losses[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "loss", ID: id}
	}
	return &loss, nil
}

func (t *memTx) SaveLoss(_ context.Context, loss domain.Loss) error {
	t.st.losses[loss.ID] = loss
	return nil
}

func (t *memTx) DeleteLoss(_ context.Context, id string) error {
	if _, ok := t.st.losses[id]; !ok {
		return &store.NotFoundError{Kind: "loss", ID: id}
	}
	delete(t.st.losses, id)
	return nil
}

func (t *memTx) GetExpenseForUpdate(_ context.Context, id string) (*domain.Expense, error) {
	expense, ok := t.st.expenses[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "expense", ID: id}
	}
	return &expense, nil
}

func (t *memTx) SaveExpense(_ context.Context, expense domain.Expense) error {
	t.st.expenses[expense.ID] = expense
	return nil
}

func (t *memTx) DeleteExpense(_ context.Context, id string) error {
	if _, ok := t.st.expenses[id]; !ok {
		return &store.NotFoundError{Kind: "expense", ID: id}
	}
	delete(t.st.expenses, id)
	return nil
}

func (t *memTx) GetExpenseCategory(_ context.Context, id string) (*domain.ExpenseCategory, error) {
	category, ok := t.st.expenseCategories[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "expense category", ID: id}
	}
	return &category, nil
}

func (t *memTx) EnsureExpenseCategory(_ context.Context, name string, color string) (*domain.ExpenseCategory, error) {
	for _, category := range t.st.expenseCategories {
		if strings.EqualFold(category.Name, name) {
			found := category
			return &found, nil
		}
	}
	category := domain.ExpenseCategory{
		ID:        xid.New("cat"),
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	t.st.expenseCategories[category.ID] = category
	return &category, nil
}
