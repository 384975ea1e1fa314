package memory

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

type state struct {
	products          map[string]domain.Product
	pointsOfSale      map[string]domain.PointOfSale
	stores            map[string]domain.Store
	register          domain.CashRegister
	cashMovements     []domain.CashMovement
	stockMovements    []domain.StockMovement
	suppliers         map[string]domain.Supplier
	clients           map[string]domain.Client
	clientTxs         []domain.ClientTransaction
	purchases         map[string]domain.Purchase
	daySales          map[string]domain.DaySale
	ownerPayments     map[string]domain.OwnerPayment
	transfers         map[string]domain.Transfer
	transferSales     map[string]domain.TransferSale
	losses            map[string]domain.Loss
	expenses          map[string]domain.Expense
	expenseCategories map[string]domain.ExpenseCategory
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

// Store is an in-process Ledger Store. Atomic units are serialized by one
// lock and rolled back by restoring a snapshot taken when the unit starts.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		products:          make(map[string]domain.Product),
		pointsOfSale:      make(map[string]domain.PointOfSale),
		stores:            make(map[string]domain.Store),
		register:          domain.CashRegister{ID: domain.CashRegisterID, LastUpdated: time.Now().UTC()},
		suppliers:         make(map[string]domain.Supplier),
		clients:           make(map[string]domain.Client),
		purchases:         make(map[string]domain.Purchase),
		daySales:          make(map[string]domain.DaySale),
		ownerPayments:     make(map[string]domain.OwnerPayment),
		transfers:         make(map[string]domain.Transfer),
		transferSales:     make(map[string]domain.TransferSale),
		losses:            make(map[string]domain.Loss),
		expenses:          make(map[string]domain.Expense),
		expenseCategories: make(map[string]domain.ExpenseCategory),
		usersByUsername:   make(map[string]domain.UserAccount),
	}}
}

// seedUsers builds the dev/demo staff accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_STOCK_PASSWORD and SEED_SELLER_PASSWORD with
// dev defaults otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	stockPwd := envOr("SEED_STOCK_PASSWORD", "stock123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_STOCK_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"magasinier", stockPwd, domain.RoleStockManager},
		{"vendeur", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two points of sale, three products, one
// supplier, one credit client, opening stock and an opening register
// deposit of 100000. Opening balances are written with matching log rows.
func NewSeeded() *Store {
	s := New()
	st := s.st
	now := time.Now().UTC()

	for _, p := range []domain.Product{
		{ID: "prd-tilapia", Name: "Tilapia", Category: domain.ProductCategoryFish, PurchasePrice: 700, SellingPrice: 1000, LowStockThreshold: 2},
		{ID: "prd-capitaine", Name: "Capitaine", Category: domain.ProductCategoryFish, PurchasePrice: 1500, SellingPrice: 2000, LowStockThreshold: 2},
		{ID: "prd-boeuf", Name: "Boeuf", Category: domain.ProductCategoryMeat, PurchasePrice: 2500, SellingPrice: 3500, LowStockThreshold: 3},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		st.products[p.ID] = p
	}

	st.pointsOfSale["pos-central"] = domain.PointOfSale{ID: "pos-central", Name: "Central Market", Location: "Plateau", CreatedAt: now}
	st.pointsOfSale["pos-port"] = domain.PointOfSale{ID: "pos-port", Name: "Port Market", Location: "Port", CreatedAt: now}

	for _, sto := range []domain.Store{
		{ID: "store-central-main", Name: "Central warehouse", PointOfSaleID: "pos-central", Type: domain.StoreTypePrincipal},
		{ID: "store-central-reserve", Name: "Central reserve", PointOfSaleID: "pos-central", Type: domain.StoreTypeSecondary},
		{ID: "store-port-main", Name: "Port warehouse", PointOfSaleID: "pos-port", Type: domain.StoreTypePrincipal},
		{ID: "store-port-reserve", Name: "Port reserve", PointOfSaleID: "pos-port", Type: domain.StoreTypeSecondary},
	} {
		sto.Items = make(map[string]int)
		sto.CreatedAt = now
		st.stores[sto.ID] = sto
	}

	for _, opening := range []struct {
		storeID   string
		productID string
		qty       int
	}{
		{"store-central-main", "prd-tilapia", 50},
		{"store-central-main", "prd-boeuf", 20},
		{"store-central-reserve", "prd-tilapia", 10},
	} {
		st.stores[opening.storeID].Items[opening.productID] = opening.qty
		st.stockMovements = append(st.stockMovements, domain.StockMovement{
			ID:          xid.New("smv"),
			ProductID:   opening.productID,
			ToStoreID:   opening.storeID,
			Quantity:    opening.qty,
			Kind:        domain.StockAdjustment,
			Description: "opening stock",
			Actor:       "system",
			CreatedAt:   now,
		})
	}

	st.register = domain.CashRegister{ID: domain.CashRegisterID, CurrentBalance: 100000, CumulativeIn: 100000, LastUpdated: now}
	st.cashMovements = append(st.cashMovements, domain.CashMovement{
		ID:           xid.New("cmv"),
		Direction:    domain.CashIn,
		Category:     domain.CashCategoryDeposit,
		Amount:       100000,
		BalanceAfter: 100000,
		Description:  "opening balance",
		Actor:        "system",
		CreatedAt:    now,
	})

	st.suppliers["sup-ocean"] = domain.Supplier{
		ID:        "sup-ocean",
		Name:      "Ocean Frais",
		Contact:   "+221 77 000 00 00",
		Category:  domain.SupplierCategoryWholesaler,
		CreatedAt: now,
	}
	st.clients["cli-awa"] = domain.Client{ID: "cli-awa", Name: "Awa Diop", Phone: "+221 76 000 00 00", CreditLimit: 5000, CreatedAt: now, UpdatedAt: now}
	st.expenseCategories["cat-purchase"] = domain.ExpenseCategory{
		ID:        "cat-purchase",
		Name:      domain.PurchaseExpenseCategory,
		Color:     domain.PurchaseExpenseColor,
		CreatedAt: now,
	}
	st.expenseCategories["cat-fuel"] = domain.ExpenseCategory{ID: "cat-fuel", Name: "CARBURANT", Color: domain.DefaultCategoryColor, CreatedAt: now}
	st.usersByUsername = seedUsers()
	return s
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.snapshot()
	if err := fn(&memTx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// snapshot copies everything a unit can mutate. Documents are replaced
// wholesale on save so shallow map copies suffice; store item maps are
// mutated in place and are copied deeply. Log slices are capped so a
// restored header never shares appended elements.
func (st *state) snapshot() *state {
	stores := make(map[string]domain.Store, len(st.stores))
	for id, sto := range st.stores {
		stores[id] = cloneStore(sto)
	}
	return &state{
		products:          maps.Clone(st.products),
		pointsOfSale:      maps.Clone(st.pointsOfSale),
		stores:            stores,
		register:          st.register,
		cashMovements:     st.cashMovements[:len(st.cashMovements):len(st.cashMovements)],
		stockMovements:    st.stockMovements[:len(st.stockMovements):len(st.stockMovements)],
		suppliers:         maps.Clone(st.suppliers),
		clients:           maps.Clone(st.clients),
		clientTxs:         st.clientTxs[:len(st.clientTxs):len(st.clientTxs)],
		purchases:         maps.Clone(st.purchases),
		daySales:          maps.Clone(st.daySales),
		ownerPayments:     maps.Clone(st.ownerPayments),
		transfers:         maps.Clone(st.transfers),
		transferSales:     maps.Clone(st.transferSales),
		losses:            maps.Clone(st.losses),
		expenses:          maps.Clone(st.expenses),
		expenseCategories: maps.Clone(st.expenseCategories),
		auditLogs:         st.auditLogs,
		usersByUsername:   st.usersByUsername,
	}
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, &store.DuplicateError{Kind: "product", Key: product.Name}
		}
	}
	s.st.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.products[product.ID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "product", ID: product.ID}
	}
	for id, other := range s.st.products {
		if id != product.ID && strings.EqualFold(other.Name, product.Name) {
			return nil, &store.DuplicateError{Kind: "product", Key: product.Name}
		}
	}
	product.PurchasePrice = existing.PurchasePrice
	product.CreatedAt = existing.CreatedAt
	s.st.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(s.st, id)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.products))
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// DeleteProduct drops empty store lines along with the product.
func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[id]; !ok {
		return &store.NotFoundError{Kind: "product", ID: id}
	}
	if ref := productReference(s.st, id); ref != "" {
		return store.Invalid("product_id", "product is still referenced by "+ref)
	}
	for storeID, sto := range s.st.stores {
		if _, ok := sto.Items[id]; ok {
			delete(sto.Items, id)
			s.st.stores[storeID] = sto
		}
	}
	delete(s.st.products, id)
	return nil
}

func (s *Store) CreatePointOfSale(_ context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.pointsOfSale {
		if strings.EqualFold(existing.Name, pos.Name) {
			return nil, &store.DuplicateError{Kind: "point of sale", Key: pos.Name}
		}
	}
	s.st.pointsOfSale[pos.ID] = pos
	created := pos
	return &created, nil
}

func (s *Store) GetPointOfSale(_ context.Context, id string) (*domain.PointOfSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPointOfSale(s.st, id)
}

func (s *Store) ListPointsOfSale(_ context.Context) ([]domain.PointOfSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.pointsOfSale))
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdatePointOfSale(_ context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.pointsOfSale[pos.ID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "point of sale", ID: pos.ID}
	}
	for id, other := range s.st.pointsOfSale {
		if id != pos.ID && strings.EqualFold(other.Name, pos.Name) {
			return nil, &store.DuplicateError{Kind: "point of sale", Key: pos.Name}
		}
	}
	existing.Name = pos.Name
	existing.Location = pos.Location
	s.st.pointsOfSale[pos.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeletePointOfSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.pointsOfSale[id]; !ok {
		return &store.NotFoundError{Kind: "point of sale", ID: id}
	}
	for _, sto := range s.st.stores {
		if sto.PointOfSaleID == id {
			return store.Invalid("point_of_sale_id", "point of sale still has stores")
		}
	}
	delete(s.st.pointsOfSale, id)
	return nil
}

func (s *Store) CreateStore(_ context.Context, sto domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.pointsOfSale[sto.PointOfSaleID]; !ok {
		return nil, &store.NotFoundError{Kind: "point of sale", ID: sto.PointOfSaleID}
	}
	for _, existing := range s.st.stores {
		if existing.PointOfSaleID == sto.PointOfSaleID && existing.Type == sto.Type {
			return nil, &store.DuplicateError{Kind: "store", Key: sto.PointOfSaleID + "/" + string(sto.Type)}
		}
	}
	sto.Items = make(map[string]int)
	s.st.stores[sto.ID] = sto
	created := cloneStore(sto)
	return &created, nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStore(s.st, id)
}

func (s *Store) ListStores(_ context.Context, pointOfSaleID string) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Store, 0, len(s.st.stores))
	for _, sto := range s.st.stores {
		if pointOfSaleID != "" && sto.PointOfSaleID != pointOfSaleID {
			continue
		}
		result = append(result, cloneStore(sto))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateStore renames a store or changes its type. The (point of sale,
// type) pair stays unique.
func (s *Store) UpdateStore(_ context.Context, sto domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.stores[sto.ID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "store", ID: sto.ID}
	}
	for id, other := range s.st.stores {
		if id != sto.ID && other.PointOfSaleID == existing.PointOfSaleID && other.Type == sto.Type {
			return nil, &store.DuplicateError{Kind: "store", Key: existing.PointOfSaleID + "/" + string(sto.Type)}
		}
	}
	existing.Name = sto.Name
	existing.Type = sto.Type
	s.st.stores[sto.ID] = existing
	updated := cloneStore(existing)
	return &updated, nil
}

func (s *Store) DeleteStore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sto, ok := s.st.stores[id]
	if !ok {
		return &store.NotFoundError{Kind: "store", ID: id}
	}
	for _, qty := range sto.Items {
		if qty > 0 {
			return store.Invalid("store_id", "store still holds stock")
		}
	}
	delete(s.st.stores, id)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.suppliers {
		if strings.EqualFold(existing.Name, supplier.Name) {
			return nil, &store.DuplicateError{Kind: "supplier", Key: supplier.Name}
		}
	}
	s.st.suppliers[supplier.ID] = supplier
	created := cloneSupplier(supplier)
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSupplier(s.st, id)
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.st.suppliers))
	for _, supplier := range s.st.suppliers {
		result = append(result, cloneSupplier(supplier))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdateSupplierProfile(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.suppliers[supplier.ID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "supplier", ID: supplier.ID}
	}
	for id, other := range s.st.suppliers {
		if id != supplier.ID && strings.EqualFold(other.Name, supplier.Name) {
			return nil, &store.DuplicateError{Kind: "supplier", Key: supplier.Name}
		}
	}
	existing.Name = supplier.Name
	existing.Contact = supplier.Contact
	existing.Category = supplier.Category
	s.st.suppliers[supplier.ID] = existing
	updated := cloneSupplier(existing)
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.st.suppliers[id]
	if !ok {
		return &store.NotFoundError{Kind: "supplier", ID: id}
	}
	if supplier.Balance > 0 {
		return store.Invalid("supplier_id", "supplier is still owed money")
	}
	for _, purchase := range s.st.purchases {
		if purchase.SupplierID == id {
			return store.Invalid("supplier_id", "supplier still has purchases")
		}
	}
	delete(s.st.suppliers, id)
	return nil
}

func (s *Store) UpsertSupplierCatalogItem(_ context.Context, supplierID string, item domain.SupplierCatalogItem) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.st.suppliers[supplierID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "supplier", ID: supplierID}
	}
	catalog := make([]domain.SupplierCatalogItem, 0, len(supplier.Catalog)+1)
	replaced := false
	for _, existing := range supplier.Catalog {
		if existing.ProductID == item.ProductID {
			catalog = append(catalog, item)
			replaced = true
			continue
		}
		catalog = append(catalog, existing)
	}
	if !replaced {
		catalog = append(catalog, item)
	}
	supplier.Catalog = catalog
	s.st.suppliers[supplierID] = supplier
	updated := cloneSupplier(supplier)
	return &updated, nil
}

func (s *Store) RemoveSupplierCatalogItem(_ context.Context, supplierID string, productID string) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.st.suppliers[supplierID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "supplier", ID: supplierID}
	}
	catalog := make([]domain.SupplierCatalogItem, 0, len(supplier.Catalog))
	for _, existing := range supplier.Catalog {
		if existing.ProductID != productID {
			catalog = append(catalog, existing)
		}
	}
	if len(catalog) == len(supplier.Catalog) {
		return nil, &store.NotFoundError{Kind: "catalog item", ID: productID}
	}
	supplier.Catalog = catalog
	s.st.suppliers[supplierID] = supplier
	updated := cloneSupplier(supplier)
	return &updated, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.clients {
		if strings.EqualFold(existing.Name, client.Name) {
			return nil, &store.DuplicateError{Kind: "client", Key: client.Name}
		}
	}
	s.st.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(s.st, id)
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.clients))
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateClientProfile writes everything except the debt, which only the
// ledger changes.
func (s *Store) UpdateClientProfile(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.clients[client.ID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "client", ID: client.ID}
	}
	client.CurrentDebt = existing.CurrentDebt
	client.CreatedAt = existing.CreatedAt
	s.st.clients[client.ID] = client
	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.st.clients[id]
	if !ok {
		return &store.NotFoundError{Kind: "client", ID: id}
	}
	if client.CurrentDebt > 0 {
		return store.Invalid("client_id", "client still has outstanding debt")
	}
	delete(s.st.clients, id)
	return nil
}

func (s *Store) ListClientTransactions(_ context.Context, clientID string, limit int) ([]domain.ClientTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ClientTransaction, 0, 16)
	for i := len(s.st.clientTxs) - 1; i >= 0; i-- {
		entry := s.st.clientTxs[i]
		if clientID != "" && entry.ClientID != clientID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.expenseCategories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, &store.DuplicateError{Kind: "expense category", Key: category.Name}
		}
	}
	s.st.expenseCategories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListExpenseCategories(_ context.Context) ([]domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.expenseCategories))
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) DeleteExpenseCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.expenseCategories[id]; !ok {
		return &store.NotFoundError{Kind: "expense category", ID: id}
	}
	for _, expense := range s.st.expenses {
		if expense.CategoryID == id {
			return store.Invalid("category_id", "category still has expenses")
		}
	}
	delete(s.st.expenseCategories, id)
	return nil
}

func (s *Store) GetCashRegister(_ context.Context) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg := s.st.register
	return &reg, nil
}

// ListCashMovements returns newest first. A zero limit returns everything.
func (s *Store) ListCashMovements(_ context.Context, filter domain.CashMovementFilter) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashMovement, 0, 32)
	skipped := 0
	for i := len(s.st.cashMovements) - 1; i >= 0; i-- {
		movement := s.st.cashMovements[i]
		if filter.Direction != "" && movement.Direction != filter.Direction {
			continue
		}
		if filter.Category != "" && movement.Category != filter.Category {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, movement)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetCashMovement(_ context.Context, id string) (*domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.st.cashMovements) - 1; i >= 0; i-- {
		if s.st.cashMovements[i].ID == id {
			movement := s.st.cashMovements[i]
			return &movement, nil
		}
	}
	return nil, &store.NotFoundError{Kind: "cash movement", ID: id}
}

func (s *Store) ListStockMovements(_ context.Context, storeID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 32)
	for i := len(s.st.stockMovements) - 1; i >= 0; i-- {
		movement := s.st.stockMovements[i]
		if storeID != "" && movement.FromStoreID != storeID && movement.ToStoreID != storeID {
			continue
		}
		result = append(result, movement)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.st.purchases[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "purchase", ID: id}
	}
	return clonePurchase(purchase), nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.st.purchases))
	for _, purchase := range s.st.purchases {
		result = append(result, *clonePurchase(purchase))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PurchasedAt.After(result[j].PurchasedAt) })
	return truncate(result, limit), nil
}

func (s *Store) GetDaySale(_ context.Context, id string) (*domain.DaySale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.st.daySales[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "day sale", ID: id}
	}
	return cloneDaySale(sale), nil
}

func (s *Store) ListDaySales(_ context.Context, pointOfSaleID string, limit int) ([]domain.DaySale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DaySale, 0, len(s.st.daySales))
	for _, sale := range s.st.daySales {
		if pointOfSaleID != "" && sale.PointOfSaleID != pointOfSaleID {
			continue
		}
		result = append(result, *cloneDaySale(sale))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SaleDate.After(result[j].SaleDate) })
	return truncate(result, limit), nil
}

func (s *Store) GetOwnerPayment(_ context.Context, id string) (*domain.OwnerPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.st.ownerPayments[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "owner payment", ID: id}
	}
	return &payment, nil
}

func (s *Store) ListOwnerPayments(_ context.Context, pointOfSaleID string, limit int) ([]domain.OwnerPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OwnerPayment, 0, len(s.st.ownerPayments))
	for _, payment := range s.st.ownerPayments {
		if pointOfSaleID != "" && payment.PointOfSaleID != pointOfSaleID {
			continue
		}
		result = append(result, payment)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PaidAt.After(result[j].PaidAt) })
	return truncate(result, limit), nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.st.transfers[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "transfer", ID: id}
	}
	transfer.Lines = slices.Clone(transfer.Lines)
	return &transfer, nil
}

// ListTransfers returns newest first. A non-empty storeID keeps transfers
// leaving or entering that store.
func (s *Store) ListTransfers(_ context.Context, storeID string, limit int) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transfer, 0, len(s.st.transfers))
	for _, transfer := range s.st.transfers {
		if storeID != "" && transfer.FromStoreID != storeID && transfer.ToStoreID != storeID {
			continue
		}
		transfer.Lines = slices.Clone(transfer.Lines)
		result = append(result, transfer)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return truncate(result, limit), nil
}

func (s *Store) GetTransferSale(_ context.Context, id string) (*domain.TransferSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.st.transferSales[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "transfer sale", ID: id}
	}
	sale.Items = slices.Clone(sale.Items)
	return &sale, nil
}

func (s *Store) GetLoss(_ context.Context, id string) (*domain.Loss, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loss, ok := s.st.losses[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "loss", ID: id}
	}
	return &loss, nil
}

func (s *Store) ListLosses(_ context.Context, storeID string, limit int) ([]domain.Loss, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Loss, 0, len(s.st.losses))
	for _, loss := range s.st.losses {
		if storeID != "" && loss.StoreID != storeID {
			continue
		}
		result = append(result, loss)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return truncate(result, limit), nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, ok := s.st.expenses[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "expense", ID: id}
	}
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.expenses))
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return truncate(result, limit), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.st.auditLogs = append(s.st.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.st.auditLogs) - 1; i >= 0; i-- {
		entry := s.st.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.st.usersByUsername[username]; exists {
		return &store.DuplicateError{Kind: "user", Key: username}
	}
	user.Username = username
	s.st.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.usersByUsername))
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.st.usersByUsername[username]
	if !ok {
		return &store.NotFoundError{Kind: "user", ID: username}
	}
	user.Password = password
	s.st.usersByUsername[username] = user
	return nil
}

func getProduct(st *state, id string) (*domain.Product, error) {
	product, ok := st.products[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "product", ID: id}
	}
	return &product, nil
}

func getPointOfSale(st *state, id string) (*domain.PointOfSale, error) {
	pos, ok := st.pointsOfSale[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "point of sale", ID: id}
	}
	return &pos, nil
}

func getStore(st *state, id string) (*domain.Store, error) {
	sto, ok := st.stores[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "store", ID: id}
	}
	cloned := cloneStore(sto)
	return &cloned, nil
}

func getSupplier(st *state, id string) (*domain.Supplier, error) {
	supplier, ok := st.suppliers[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "supplier", ID: id}
	}
	cloned := cloneSupplier(supplier)
	return &cloned, nil
}

func getClient(st *state, id string) (*domain.Client, error) {
	client, ok := st.clients[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "client", ID: id}
	}
	return &client, nil
}

// productReference names the first record that still needs the product,
// or returns "" when it can go.
func productReference(st *state, id string) string {
	for _, sto := range st.stores {
		if sto.Items[id] > 0 {
			return "stock in store " + sto.ID
		}
	}
	for _, purchase := range st.purchases {
		for _, item := range purchase.Items {
			if item.ProductID == id {
				return "purchase " + purchase.ID
			}
		}
	}
	for _, sale := range st.daySales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return "day sale " + sale.ID
			}
		}
	}
	for _, transfer := range st.transfers {
		for _, line := range transfer.Lines {
			if line.ProductID == id {
				return "transfer " + transfer.ID
			}
		}
	}
	for _, loss := range st.losses {
		if loss.ProductID == id {
			return "loss " + loss.ID
		}
	}
	for _, supplier := range st.suppliers {
		for _, item := range supplier.Catalog {
			if item.ProductID == id {
				return "the catalog of supplier " + supplier.ID
			}
		}
	}
	return ""
}

func cloneStore(src domain.Store) domain.Store {
	dst := src
	dst.Items = maps.Clone(src.Items)
	if dst.Items == nil {
		dst.Items = make(map[string]int)
	}
	return dst
}

func cloneSupplier(src domain.Supplier) domain.Supplier {
	dst := src
	dst.Catalog = slices.Clone(src.Catalog)
	return dst
}

func clonePurchase(src domain.Purchase) *domain.Purchase {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return &dst
}

func cloneDaySale(src domain.DaySale) *domain.DaySale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return &dst
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
