package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	PurchasePrice     int64  `json:"purchase_price"`
	SellingPrice      int64  `json:"selling_price"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Category          *string `json:"category,omitempty"`
	SellingPrice      *int64  `json:"selling_price,omitempty"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty"`
}

type PointOfSaleCreateRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type PointOfSaleUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
}

type StoreCreateRequest struct {
	Name          string    `json:"name"`
	PointOfSaleID string    `json:"point_of_sale_id"`
	Type          StoreType `json:"type"`
}

type StoreUpdateRequest struct {
	Name *string    `json:"name,omitempty"`
	Type *StoreType `json:"type,omitempty"`
}

type SupplierCreateRequest struct {
	Name     string `json:"name"`
	Contact  string `json:"contact"`
	Category string `json:"category"`
}

type SupplierUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Contact  *string `json:"contact,omitempty"`
	Category *string `json:"category,omitempty"`
}

type SupplierCatalogRequest struct {
	ProductID     string `json:"product_id"`
	PurchasePrice int64  `json:"purchase_price"`
}

type ClientCreateRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	CreditLimit int64  `json:"credit_limit"`
}

type ClientUpdateRequest struct {
	Phone             *string `json:"phone,omitempty"`
	CreditLimit       *int64  `json:"credit_limit,omitempty"`
	IsRestricted      *bool   `json:"is_restricted,omitempty"`
	RestrictionReason *string `json:"restriction_reason,omitempty"`
}

type ExpenseCategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type PurchaseLineRequest struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	UnitPurchasePrice int64  `json:"unit_purchase_price"`
}

type PurchaseRequest struct {
	SupplierID     string                `json:"supplier_id"`
	StoreID        string                `json:"store_id"`
	FundingMode    FundingMode           `json:"funding_mode,omitempty"`
	Items          []PurchaseLineRequest `json:"items"`
	Buyer          string                `json:"buyer"`
	Description    string                `json:"description"`
	PurchasedAt    *time.Time            `json:"purchased_at,omitempty"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

type TransferLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type TransferRequest struct {
	Kind           TransferKind          `json:"kind"`
	FromStoreID    string                `json:"from_store_id"`
	ToStoreID      string                `json:"to_store_id"`
	Lines          []TransferLineRequest `json:"lines"`
	Note           string                `json:"note"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

type TransferResponse struct {
	Transfer     Transfer      `json:"transfer"`
	TransferSale *TransferSale `json:"transfer_sale,omitempty"`
}

type LossRequest struct {
	StoreID        string `json:"store_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type DaySaleLineRequest struct {
	ProductID       string `json:"product_id"`
	QuantityCartons int    `json:"quantity_cartons"`
}

type DaySaleRequest struct {
	PointOfSaleID       string               `json:"point_of_sale_id"`
	StoreID             string               `json:"store_id"`
	Seller              string               `json:"seller"`
	IsCredit            bool                 `json:"is_credit"`
	ClientID            string               `json:"client_id,omitempty"`
	OverrideCreditLimit bool                 `json:"override_credit_limit,omitempty"`
	Items               []DaySaleLineRequest `json:"items"`
	SaleDate            *time.Time           `json:"sale_date,omitempty"`
	Note                string               `json:"note"`
	IdempotencyKey      string               `json:"idempotency_key,omitempty"`
}

type OwnerPaymentRequest struct {
	PointOfSaleID  string        `json:"point_of_sale_id"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	ReceivedBy     string        `json:"received_by"`
	Note           string        `json:"note"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type CashOperationRequest struct {
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type SupplierPaymentRequest struct {
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type SupplierAdjustmentRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type ExpenseRequest struct {
	Label          string     `json:"label"`
	Amount         int64      `json:"amount"`
	CategoryID     string     `json:"category_id"`
	Note           string     `json:"note"`
	Date           *time.Time `json:"date,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

type ClientRepaymentRequest struct {
	Amount         int64  `json:"amount"`
	PointOfSaleID  string `json:"point_of_sale_id,omitempty"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ClientRepaymentResponse struct {
	Client      Client            `json:"client"`
	Transaction ClientTransaction `json:"transaction"`
}
