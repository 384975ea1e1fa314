package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin        = "admin"
	RoleStockManager = "stock_manager"
	RoleSeller       = "seller"
)

const (
	ProductCategoryFish = "poisson"
	ProductCategoryMeat = "viande"

	DefaultLowStockThreshold = 2
)

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	PurchasePrice     int64     `json:"purchase_price"`
	SellingPrice      int64     `json:"selling_price"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PointOfSale is a retail branch and its till.
type PointOfSale struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Location         string    `json:"location"`
	Solde            int64     `json:"solde"`
	TotalDebtToOwner int64     `json:"total_debt_to_owner"`
	Impayer          int64     `json:"impayer"`
	CreatedAt        time.Time `json:"created_at"`
}

type StoreType string

const (
	StoreTypePrincipal StoreType = "principal"
	StoreTypeSecondary StoreType = "secondary"
)

// Store holds stock for one point of sale. Items maps product id to cartons.
type Store struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	PointOfSaleID string         `json:"point_of_sale_id"`
	Type          StoreType      `json:"type"`
	Items         map[string]int `json:"items"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (s Store) Quantity(productID string) int {
	if s.Items == nil {
		return 0
	}
	return s.Items[productID]
}

// CashRegisterID is the identity of the single central register.
const CashRegisterID = "main"

type CashRegister struct {
	ID             string    `json:"id"`
	CurrentBalance int64     `json:"current_balance"`
	CumulativeIn   int64     `json:"cumulative_in"`
	CumulativeOut  int64     `json:"cumulative_out"`
	LastUpdated    time.Time `json:"last_updated"`
}

// RegisterDelta is a net change applied to the register in one unit of work.
type RegisterDelta struct {
	Balance int64
	In      int64
	Out     int64
}

func (d RegisterDelta) IsZero() bool {
	return d.Balance == 0 && d.In == 0 && d.Out == 0
}

type CashDirection string

const (
	CashIn  CashDirection = "IN"
	CashOut CashDirection = "OUT"
)

func (d CashDirection) Opposite() CashDirection {
	if d == CashIn {
		return CashOut
	}
	return CashIn
}

type CashCategory string

const (
	CashCategoryDeposit          CashCategory = "deposit"
	CashCategoryWithdrawal       CashCategory = "withdrawal"
	CashCategoryExpense          CashCategory = "expense"
	CashCategoryBranchRemittance CashCategory = "branch_remittance"
	CashCategorySupplierPayment  CashCategory = "supplier_payment"
)

// CashRefs links a cash movement to the records that caused it.
type CashRefs struct {
	PurchaseID     string `json:"purchase_id,omitempty"`
	SupplierID     string `json:"supplier_id,omitempty"`
	StoreID        string `json:"store_id,omitempty"`
	PointOfSaleID  string `json:"point_of_sale_id,omitempty"`
	OwnerPaymentID string `json:"owner_payment_id,omitempty"`
	ExpenseID      string `json:"expense_id,omitempty"`
}

type CashMovement struct {
	ID           string        `json:"id"`
	Direction    CashDirection `json:"direction"`
	Category     CashCategory  `json:"category"`
	Amount       int64         `json:"amount"`
	BalanceAfter int64         `json:"balance_after"`
	Description  string        `json:"description"`
	Reversal     bool          `json:"reversal"`
	CashRefs
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Signed returns the amount with the sign of its direction.
func (m CashMovement) Signed() int64 {
	if m.Direction == CashOut {
		return -m.Amount
	}
	return m.Amount
}

type CashMovementFilter struct {
	Direction CashDirection
	Category  CashCategory
	Limit     int
	Offset    int
}

type StockMovementKind string

const (
	StockPurchaseIn StockMovementKind = "purchase_in"
	StockSaleOut    StockMovementKind = "sale_out"
	StockTransfer   StockMovementKind = "transfer"
	StockReturn     StockMovementKind = "return"
	StockLoss       StockMovementKind = "loss"
	StockAdjustment StockMovementKind = "adjustment"
)

type StockMovement struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	FromStoreID string            `json:"from_store_id,omitempty"`
	ToStoreID   string            `json:"to_store_id,omitempty"`
	Quantity    int               `json:"quantity"`
	Kind        StockMovementKind `json:"kind"`
	Description string            `json:"description"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Reversal    bool              `json:"reversal"`
	Actor       string            `json:"actor"`
	CreatedAt   time.Time         `json:"created_at"`
}

type FundingMode string

const (
	FundingCashRegister   FundingMode = "cash_register"
	FundingSupplierCredit FundingMode = "supplier_credit"
)

func (m FundingMode) Valid() bool {
	return m == FundingCashRegister || m == FundingSupplierCredit
}

type PurchaseItem struct {
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	Quantity          int    `json:"quantity"`
	UnitPurchasePrice int64  `json:"unit_purchase_price"`
}

func (i PurchaseItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPurchasePrice
}

type Purchase struct {
	ID          string         `json:"id"`
	SupplierID  string         `json:"supplier_id"`
	StoreID     string         `json:"store_id"`
	FundingMode FundingMode    `json:"funding_mode"`
	Items       []PurchaseItem `json:"items"`
	TotalAmount int64          `json:"total_amount"`
	ExpenseID   string         `json:"expense_id"`
	Buyer       string         `json:"buyer"`
	Description string         `json:"description"`
	PurchasedAt time.Time      `json:"purchased_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

const (
	SupplierCategoryWholesaler = "grossiste"
	SupplierCategoryReseller   = "revendeur"
	SupplierCategoryOther      = "autres"
)

type SupplierCatalogItem struct {
	ProductID     string          `json:"product_id"`
	PurchasePrice int64           `json:"purchase_price"`
	Margin        int64           `json:"margin"`
	MarginRate    decimal.Decimal `json:"margin_rate"`
}

type Supplier struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Contact   string                `json:"contact"`
	Category  string                `json:"category"`
	Balance   int64                 `json:"balance"`
	Catalog   []SupplierCatalogItem `json:"catalog"`
	CreatedAt time.Time             `json:"created_at"`
}

type Client struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	CreditLimit       int64     `json:"credit_limit"`
	CurrentDebt       int64     `json:"current_debt"`
	IsRestricted      bool      `json:"is_restricted"`
	RestrictionReason string    `json:"restriction_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ClientTransactionType string

const (
	ClientCreditPurchase ClientTransactionType = "ACHAT_CREDIT"
	ClientRepayment      ClientTransactionType = "REMBOURSEMENT"
)

// ClientTransaction is the audit row for every debt change. Reversals keep
// the original type and carry a negated amount.
type ClientTransaction struct {
	ID            string                `json:"id"`
	ClientID      string                `json:"client_id"`
	Type          ClientTransactionType `json:"type"`
	Amount        int64                 `json:"amount"`
	BalanceAfter  int64                 `json:"balance_after"`
	Description   string                `json:"description"`
	DaySaleID     string                `json:"day_sale_id,omitempty"`
	PointOfSaleID string                `json:"point_of_sale_id,omitempty"`
	Reversal      bool                  `json:"reversal"`
	Actor         string                `json:"actor"`
	CreatedAt     time.Time             `json:"created_at"`
}

// DebtDelta is the signed effect of the transaction on the client's debt.
func (t ClientTransaction) DebtDelta() int64 {
	if t.Type == ClientRepayment {
		return -t.Amount
	}
	return t.Amount
}

type DaySaleItem struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	QuantityCartons int    `json:"quantity_cartons"`
	UnitPrice       int64  `json:"unit_price"`
	SubTotal        int64  `json:"sub_total"`
}

type DaySale struct {
	ID            string        `json:"id"`
	PointOfSaleID string        `json:"point_of_sale_id"`
	StoreID       string        `json:"store_id"`
	Seller        string        `json:"seller"`
	IsCredit      bool          `json:"is_credit"`
	ClientID      string        `json:"client_id,omitempty"`
	Items         []DaySaleItem `json:"items"`
	TotalAmount   int64         `json:"total_amount"`
	SaleDate      time.Time     `json:"sale_date"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCheque, PaymentBankTransfer, PaymentMobileMoney:
		return true
	}
	return false
}

// OwnerPayment is a remittance from a till to the central register.
type OwnerPayment struct {
	ID             string        `json:"id"`
	PointOfSaleID  string        `json:"point_of_sale_id"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	ReceivedBy     string        `json:"received_by"`
	CashMovementID string        `json:"cash_movement_id"`
	Note           string        `json:"note,omitempty"`
	PaidAt         time.Time     `json:"paid_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type TransferKind string

const (
	TransferRestock        TransferKind = "RESTOCK"
	TransferBranchTransfer TransferKind = "BRANCH_TRANSFER"
	TransferReturn         TransferKind = "RETURN"
)

// StoreTypes returns the required source and destination store types.
func (k TransferKind) StoreTypes() (from StoreType, to StoreType, ok bool) {
	switch k {
	case TransferRestock:
		return StoreTypePrincipal, StoreTypeSecondary, true
	case TransferBranchTransfer:
		return StoreTypeSecondary, StoreTypeSecondary, true
	case TransferReturn:
		return StoreTypeSecondary, StoreTypePrincipal, true
	}
	return "", "", false
}

type TransferLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type Transfer struct {
	ID             string         `json:"id"`
	Kind           TransferKind   `json:"kind"`
	FromStoreID    string         `json:"from_store_id"`
	ToStoreID      string         `json:"to_store_id"`
	Lines          []TransferLine `json:"lines"`
	TransferSaleID string         `json:"transfer_sale_id,omitempty"`
	Note           string         `json:"note,omitempty"`
	Actor          string         `json:"actor"`
	CreatedAt      time.Time      `json:"created_at"`
}

type TransferSaleItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	SubTotal    int64  `json:"sub_total"`
}

// TransferSale is the notional sale from the owner to a till on restock.
type TransferSale struct {
	ID            string             `json:"id"`
	PointOfSaleID string             `json:"point_of_sale_id"`
	TransferID    string             `json:"transfer_id"`
	Items         []TransferSaleItem `json:"items"`
	TotalAmount   int64              `json:"total_amount"`
	CreatedAt     time.Time          `json:"created_at"`
}

type Loss struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	PurchaseExpenseCategory = "ACHAT DE MARCHANDISES"
	PurchaseExpenseColor    = "#EF4444"
	DefaultCategoryColor    = "#0AC4E0"
)

type ExpenseCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

type Expense struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Amount         int64     `json:"amount"`
	CategoryID     string    `json:"category_id"`
	PurchaseID     string    `json:"purchase_id,omitempty"`
	CashMovementID string    `json:"cash_movement_id,omitempty"`
	Note           string    `json:"note,omitempty"`
	Actor          string    `json:"actor"`
	Date           time.Time `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
}

// TillDelta is a change to a point of sale's balances.
type TillDelta struct {
	Solde       int64
	DebtToOwner int64
	Impayer     int64
}

func (d TillDelta) IsZero() bool {
	return d.Solde == 0 && d.DebtToOwner == 0 && d.Impayer == 0
}

func (d TillDelta) Add(other TillDelta) TillDelta {
	return TillDelta{
		Solde:       d.Solde + other.Solde,
		DebtToOwner: d.DebtToOwner + other.DebtToOwner,
		Impayer:     d.Impayer + other.Impayer,
	}
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type RestockSuggestion struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	Quantity           int    `json:"quantity"`
	Threshold          int    `json:"threshold"`
	PrincipalAvailable int    `json:"principal_available"`
	SuggestedQuantity  int    `json:"suggested_quantity"`
	Priority           string `json:"priority"`
}

type RestockReport struct {
	StoreID          string              `json:"store_id"`
	PrincipalStoreID string              `json:"principal_store_id,omitempty"`
	Suggestions      []RestockSuggestion `json:"suggestions"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

type ClientDrift struct {
	ClientID    string `json:"client_id"`
	CurrentDebt int64  `json:"current_debt"`
	Replayed    int64  `json:"replayed"`
}

type ReconciliationReport struct {
	RegisterBalance  int64         `json:"register_balance"`
	RegisterReplayed int64         `json:"register_replayed"`
	RegisterCounters bool          `json:"register_counters_ok"`
	MovementsChecked int           `json:"movements_checked"`
	ClientDrifts     []ClientDrift `json:"client_drifts"`
	Consistent       bool          `json:"consistent"`
	CheckedAt        time.Time     `json:"checked_at"`
}
