package store

import (
	"context"
	"time"

	"stockcaisse/backend/internal/domain"
)

// Repository is the Ledger Store. Ledger mutations go through Atomic; the
// remaining writes maintain reference data that no balance depends on.
type Repository interface {
	// Atomic runs fn as one indivisible unit. If fn returns an error nothing
	// it did is visible. Implementations may call fn more than once when a
	// concurrent conflict is detected.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// DeleteProduct refuses while any store line, document or supplier
	// catalog still names the product.
	DeleteProduct(ctx context.Context, id string) error

	CreatePointOfSale(ctx context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error)
	GetPointOfSale(ctx context.Context, id string) (*domain.PointOfSale, error)
	ListPointsOfSale(ctx context.Context) ([]domain.PointOfSale, error)
	// UpdatePointOfSale writes name and location; till counters are ledger-owned.
	UpdatePointOfSale(ctx context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error)
	DeletePointOfSale(ctx context.Context, id string) error

	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStores(ctx context.Context, pointOfSaleID string) ([]domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	// UpdateSupplierProfile writes name, contact and category only.
	UpdateSupplierProfile(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	// DeleteSupplier refuses while the supplier is owed money or has purchases.
	DeleteSupplier(ctx context.Context, id string) error
	UpsertSupplierCatalogItem(ctx context.Context, supplierID string, item domain.SupplierCatalogItem) (*domain.Supplier, error)
	RemoveSupplierCatalogItem(ctx context.Context, supplierID string, productID string) (*domain.Supplier, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	UpdateClientProfile(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, id string) error
	ListClientTransactions(ctx context.Context, clientID string, limit int) ([]domain.ClientTransaction, error)

	CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error)
	DeleteExpenseCategory(ctx context.Context, id string) error

	GetCashRegister(ctx context.Context) (*domain.CashRegister, error)
	ListCashMovements(ctx context.Context, filter domain.CashMovementFilter) ([]domain.CashMovement, error)
	GetCashMovement(ctx context.Context, id string) (*domain.CashMovement, error)
	ListStockMovements(ctx context.Context, storeID string, limit int) ([]domain.StockMovement, error)

	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)
	GetDaySale(ctx context.Context, id string) (*domain.DaySale, error)
	ListDaySales(ctx context.Context, pointOfSaleID string, limit int) ([]domain.DaySale, error)
	GetOwnerPayment(ctx context.Context, id string) (*domain.OwnerPayment, error)
	ListOwnerPayments(ctx context.Context, pointOfSaleID string, limit int) ([]domain.OwnerPayment, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, storeID string, limit int) ([]domain.Transfer, error)
	GetTransferSale(ctx context.Context, id string) (*domain.TransferSale, error)
	GetLoss(ctx context.Context, id string) (*domain.Loss, error)
	ListLosses(ctx context.Context, storeID string, limit int) ([]domain.Loss, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the view of the Ledger Store inside Atomic. "ForUpdate" reads lock
// the aggregate until the unit ends. Adjust methods are single conditional
// writes and fail instead of letting a guarded value go negative.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SetProductPurchasePrice(ctx context.Context, productID string, price int64, at time.Time) error

	GetStoreForUpdate(ctx context.Context, id string) (*domain.Store, error)
	GetStockForUpdate(ctx context.Context, storeID string, productID string) (int, error)
	// AdjustStock adds delta to the line, creating it when delta is positive.
	// A negative result is rejected with ErrInsufficientStock.
	AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error)

	GetCashRegisterForUpdate(ctx context.Context) (*domain.CashRegister, error)
	// AdjustCashRegister rejects a resulting balance below zero with ErrInsufficientFunds.
	AdjustCashRegister(ctx context.Context, delta domain.RegisterDelta, at time.Time) (*domain.CashRegister, error)

	GetSupplierForUpdate(ctx context.Context, id string) (*domain.Supplier, error)
	AdjustSupplierBalance(ctx context.Context, id string, delta int64) error

	GetClientForUpdate(ctx context.Context, id string) (*domain.Client, error)
	AdjustClientDebt(ctx context.Context, id string, delta int64, at time.Time) error

	GetPointOfSaleForUpdate(ctx context.Context, id string) (*domain.PointOfSale, error)
	AdjustPointOfSale(ctx context.Context, id string, delta domain.TillDelta) error

	AppendStockMovement(ctx context.Context, movement domain.StockMovement) error
	AppendCashMovement(ctx context.Context, movement domain.CashMovement) error
	AppendClientTransaction(ctx context.Context, entry domain.ClientTransaction) error

	GetPurchaseForUpdate(ctx context.Context, id string) (*domain.Purchase, error)
	SavePurchase(ctx context.Context, purchase domain.Purchase) error
	DeletePurchase(ctx context.Context, id string) error

	GetDaySaleForUpdate(ctx context.Context, id string) (*domain.DaySale, error)
	SaveDaySale(ctx context.Context, sale domain.DaySale) error
	DeleteDaySale(ctx context.Context, id string) error

	GetOwnerPaymentForUpdate(ctx context.Context, id string) (*domain.OwnerPayment, error)
	SaveOwnerPayment(ctx context.Context, payment domain.OwnerPayment) error
	DeleteOwnerPayment(ctx context.Context, id string) error

	GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error)
	SaveTransfer(ctx context.Context, transfer domain.Transfer) error
	DeleteTransfer(ctx context.Context, id string) error
	GetTransferSale(ctx context.Context, id string) (*domain.TransferSale, error)
	SaveTransferSale(ctx context.Context, sale domain.TransferSale) error
	DeleteTransferSale(ctx context.Context, id string) error

	GetLossForUpdate(ctx context.Context, id string) (*domain.Loss, error)
	SaveLoss(ctx context.Context, loss domain.Loss) error
	DeleteLoss(ctx context.Context, id string) error

	GetExpenseForUpdate(ctx context.Context, id string) (*domain.Expense, error)
	SaveExpense(ctx context.Context, expense domain.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	GetExpenseCategory(ctx context.Context, id string) (*domain.ExpenseCategory, error)
	// EnsureExpenseCategory returns the category with this name, creating it if needed.
	EnsureExpenseCategory(ctx context.Context, name string, color string) (*domain.ExpenseCategory, error)
}
