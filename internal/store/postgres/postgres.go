package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

const defaultMaxRetries = 3

type Store struct {
	db         *sql.DB
	maxRetries int
}

// New opens the pool, checks connectivity and applies the schema.
// maxRetries bounds how often Atomic replays a unit after a serialization
// failure; zero picks the default.
func New(ctx context.Context, databaseURL string, maxRetries int) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Store{db: db, maxRetries: maxRetries}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn in a SERIALIZABLE transaction and replays it when
// Postgres reports a serialization failure or deadlock. Once retries are
// exhausted the caller gets ErrConsistencyConflict.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.atomicOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return translate("atomic", err)
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("%w: gave up after %d attempts", store.ErrConsistencyConflict, attempt+1)
		}
		backoff := time.Duration(attempt+1) * 15 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *Store) atomicOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, purchase_price, selling_price, low_stock_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, product.PurchasePrice, product.SellingPrice, product.LowStockThreshold, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "product", Key: product.Name}
		}
		return nil, translate("create product", err)
	}
	created := product
	return &created, nil
}

// UpdateProduct leaves purchase_price alone; only purchases move it.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, selling_price = $4, low_stock_threshold = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.SellingPrice, product.LowStockThreshold, product.UpdatedAt)
	updated, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "product", Key: product.Name}
		}
		return nil, notFoundOr("update product", err, "product", product.ID)
	}
	return updated, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, translate("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, translate("list products", err)
		}
		products = append(products, *p)
	}
	return products, translate("list products", rows.Err())
}

// DeleteProduct drops empty store lines along with the product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "product", id, `
		SELECT EXISTS (SELECT 1 FROM store_items WHERE product_id = $1 AND quantity > 0)
			OR EXISTS (SELECT 1 FROM purchases WHERE items @> jsonb_build_array(jsonb_build_object('product_id', $1::text)))
			OR EXISTS (SELECT 1 FROM day_sales WHERE items @> jsonb_build_array(jsonb_build_object('product_id', $1::text)))
			OR EXISTS (SELECT 1 FROM transfers WHERE lines @> jsonb_build_array(jsonb_build_object('product_id', $1::text)))
			OR EXISTS (SELECT 1 FROM losses WHERE product_id = $1)
			OR EXISTS (SELECT 1 FROM suppliers WHERE catalog @> jsonb_build_array(jsonb_build_object('product_id', $1::text)))
	`,
		store.Invalid("product_id", "product is still referenced by stock, documents or a supplier catalog"),
		`WITH empty_lines AS (DELETE FROM store_items WHERE product_id = $1)
		DELETE FROM products WHERE id = $1`)
}

func (s *Store) CreatePointOfSale(ctx context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points_of_sale (id, name, location, created_at)
		VALUES ($1,$2,$3,$4)
	`, pos.ID, pos.Name, pos.Location, pos.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "point of sale", Key: pos.Name}
		}
		return nil, translate("create point of sale", err)
	}
	created := pos
	return &created, nil
}

func (s *Store) GetPointOfSale(ctx context.Context, id string) (*domain.PointOfSale, error) {
	return getPointOfSale(ctx, s.db, id, "")
}

func (s *Store) ListPointsOfSale(ctx context.Context) ([]domain.PointOfSale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pointOfSaleColumns+` FROM points_of_sale ORDER BY name`)
	if err != nil {
		return nil, translate("list points of sale", err)
	}
	defer rows.Close()

	result := make([]domain.PointOfSale, 0, 8)
	for rows.Next() {
		pos, err := scanPointOfSale(rows)
		if err != nil {
			return nil, translate("list points of sale", err)
		}
		result = append(result, *pos)
	}
	return result, translate("list points of sale", rows.Err())
}

func (s *Store) UpdatePointOfSale(ctx context.Context, pos domain.PointOfSale) (*domain.PointOfSale, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE points_of_sale SET name = $2, location = $3
		WHERE id = $1
		RETURNING `+pointOfSaleColumns,
		pos.ID, pos.Name, pos.Location)
	updated, err := scanPointOfSale(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "point of sale", Key: pos.Name}
		}
		return nil, notFoundOr("update point of sale", err, "point of sale", pos.ID)
	}
	return updated, nil
}

func (s *Store) DeletePointOfSale(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "point of sale", id,
		`SELECT EXISTS (SELECT 1 FROM stores WHERE point_of_sale_id = $1)`,
		store.Invalid("point_of_sale_id", "point of sale still has stores"),
		`DELETE FROM points_of_sale WHERE id = $1`)
}

func (s *Store) CreateStore(ctx context.Context, sto domain.Store) (*domain.Store, error) {
	if _, err := getPointOfSale(ctx, s.db, sto.PointOfSaleID, ""); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, point_of_sale_id, type, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, sto.ID, sto.Name, sto.PointOfSaleID, string(sto.Type), sto.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "store", Key: sto.PointOfSaleID + "/" + string(sto.Type)}
		}
		return nil, translate("create store", err)
	}
	created := sto
	created.Items = make(map[string]int)
	return &created, nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	return getStore(ctx, s.db, id, "")
}

func (s *Store) ListStores(ctx context.Context, pointOfSaleID string) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, point_of_sale_id, type, created_at
		FROM stores
		WHERE ($1 = '' OR point_of_sale_id = $1)
		ORDER BY id
	`, pointOfSaleID)
	if err != nil {
		return nil, translate("list stores", err)
	}
	defer rows.Close()

	result := make([]domain.Store, 0, 8)
	for rows.Next() {
		var sto domain.Store
		var storeType string
		if err := rows.Scan(&sto.ID, &sto.Name, &sto.PointOfSaleID, &storeType, &sto.CreatedAt); err != nil {
			return nil, translate("list stores", err)
		}
		sto.Type = domain.StoreType(storeType)
		result = append(result, sto)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list stores", err)
	}
	for i := range result {
		items, err := loadItems(ctx, s.db, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

func (s *Store) UpdateStore(ctx context.Context, sto domain.Store) (*domain.Store, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE stores SET name = $2, type = $3 WHERE id = $1`, sto.ID, sto.Name, string(sto.Type))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "store", Key: sto.ID + "/" + string(sto.Type)}
		}
		return nil, translate("update store", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, &store.NotFoundError{Kind: "store", ID: sto.ID}
	}
	return getStore(ctx, s.db, sto.ID, "")
}

func (s *Store) DeleteStore(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "store", id,
		`SELECT EXISTS (SELECT 1 FROM store_items WHERE store_id = $1 AND quantity > 0)`,
		store.Invalid("store_id", "store still holds stock"),
		`DELETE FROM stores WHERE id = $1`)
}

// deleteGuarded refuses the delete when guardQuery reports a dependent row.
func (s *Store) deleteGuarded(ctx context.Context, kind string, id string, guardQuery string, refusal error, deleteQuery string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return translate("delete "+kind, err)
	}
	defer func() { _ = tx.Rollback() }()

	var blocked bool
	if err := tx.QueryRowContext(ctx, guardQuery, id).Scan(&blocked); err != nil {
		return translate("delete "+kind, err)
	}
	if blocked {
		return refusal
	}
	res, err := tx.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		return translate("delete "+kind, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &store.NotFoundError{Kind: kind, ID: id}
	}
	return translate("delete "+kind, tx.Commit())
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	catalog, err := json.Marshal(nonNilCatalog(supplier.Catalog))
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, category, balance, catalog, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Category, supplier.Balance, catalog, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "supplier", Key: supplier.Name}
		}
		return nil, translate("create supplier", err)
	}
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	return getSupplier(ctx, s.db, id, "")
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, translate("list suppliers", err)
	}
	defer rows.Close()

	result := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, translate("list suppliers", err)
		}
		result = append(result, *supplier)
	}
	return result, translate("list suppliers", rows.Err())
}

func (s *Store) UpdateSupplierProfile(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE suppliers SET name = $2, contact = $3, category = $4
		WHERE id = $1
		RETURNING `+supplierColumns,
		supplier.ID, supplier.Name, supplier.Contact, supplier.Category)
	updated, err := scanSupplier(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "supplier", Key: supplier.Name}
		}
		return nil, notFoundOr("update supplier", err, "supplier", supplier.ID)
	}
	return updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "supplier", id, `
		SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1 AND balance > 0)
			OR EXISTS (SELECT 1 FROM purchases WHERE supplier_id = $1)
	`,
		store.Invalid("supplier_id", "supplier is still owed money or has purchases"),
		`DELETE FROM suppliers WHERE id = $1`)
}

func (s *Store) UpsertSupplierCatalogItem(ctx context.Context, supplierID string, item domain.SupplierCatalogItem) (*domain.Supplier, error) {
	return s.rewriteCatalog(ctx, supplierID, func(catalog []domain.SupplierCatalogItem) ([]domain.SupplierCatalogItem, error) {
		for i := range catalog {
			if catalog[i].ProductID == item.ProductID {
				catalog[i] = item
				return catalog, nil
			}
		}
		return append(catalog, item), nil
	})
}

func (s *Store) RemoveSupplierCatalogItem(ctx context.Context, supplierID string, productID string) (*domain.Supplier, error) {
	return s.rewriteCatalog(ctx, supplierID, func(catalog []domain.SupplierCatalogItem) ([]domain.SupplierCatalogItem, error) {
		kept := catalog[:0]
		for _, existing := range catalog {
			if existing.ProductID != productID {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(catalog) {
			return nil, &store.NotFoundError{Kind: "catalog item", ID: productID}
		}
		return kept, nil
	})
}

func (s *Store) rewriteCatalog(ctx context.Context, supplierID string, edit func([]domain.SupplierCatalogItem) ([]domain.SupplierCatalogItem, error)) (*domain.Supplier, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, translate("update catalog", err)
	}
	defer func() { _ = tx.Rollback() }()

	supplier, err := getSupplier(ctx, tx, supplierID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	catalog, err := edit(supplier.Catalog)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(nonNilCatalog(catalog))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE suppliers SET catalog = $2 WHERE id = $1`, supplierID, raw); err != nil {
		return nil, translate("update catalog", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translate("update catalog", err)
	}
	supplier.Catalog = catalog
	return supplier, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, phone, credit_limit, current_debt, is_restricted, restriction_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8)
	`, client.ID, client.Name, client.Phone, client.CreditLimit, client.IsRestricted, client.RestrictionReason, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "client", Key: client.Name}
		}
		return nil, translate("create client", err)
	}
	created := client
	created.CurrentDebt = 0
	return &created, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	return getClient(ctx, s.db, id, "")
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name`)
	if err != nil {
		return nil, translate("list clients", err)
	}
	defer rows.Close()

	result := make([]domain.Client, 0, 32)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, translate("list clients", err)
		}
		result = append(result, *client)
	}
	return result, translate("list clients", rows.Err())
}

func (s *Store) UpdateClientProfile(ctx context.Context, client domain.Client) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE clients
		SET phone = $2, credit_limit = $3, is_restricted = $4, restriction_reason = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+clientColumns,
		client.ID, client.Phone, client.CreditLimit, client.IsRestricted, client.RestrictionReason, client.UpdatedAt)
	updated, err := scanClient(row)
	if err != nil {
		return nil, notFoundOr("update client", err, "client", client.ID)
	}
	return updated, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "client", id,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1 AND current_debt > 0)`,
		store.Invalid("client_id", "client still has outstanding debt"),
		`DELETE FROM clients WHERE id = $1`)
}

func (s *Store) ListClientTransactions(ctx context.Context, clientID string, limit int) ([]domain.ClientTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, type, amount, balance_after, description,
			COALESCE(day_sale_id, ''), COALESCE(point_of_sale_id, ''), reversal, actor, created_at
		FROM client_transactions
		WHERE ($1 = '' OR client_id = $1)
		ORDER BY seq DESC
		LIMIT $2
	`, clientID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list client transactions", err)
	}
	defer rows.Close()

	result := make([]domain.ClientTransaction, 0, 32)
	for rows.Next() {
		var entry domain.ClientTransaction
		var txType string
		if err := rows.Scan(&entry.ID, &entry.ClientID, &txType, &entry.Amount, &entry.BalanceAfter, &entry.Description,
			&entry.DaySaleID, &entry.PointOfSaleID, &entry.Reversal, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, translate("list client transactions", err)
		}
		entry.Type = domain.ClientTransactionType(txType)
		result = append(result, entry)
	}
	return result, translate("list client transactions", rows.Err())
}

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, name, description, color, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.Name, category.Description, category.Color, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.DuplicateError{Kind: "expense category", Key: category.Name}
		}
		return nil, translate("create expense category", err)
	}
	created := category
	return &created, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, color, created_at FROM expense_categories ORDER BY name`)
	if err != nil {
		return nil, translate("list expense categories", err)
	}
	defer rows.Close()

	result := make([]domain.ExpenseCategory, 0, 16)
	for rows.Next() {
		var c domain.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.CreatedAt); err != nil {
			return nil, translate("list expense categories", err)
		}
		result = append(result, c)
	}
	return result, translate("list expense categories", rows.Err())
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id string) error {
	return s.deleteGuarded(ctx, "expense category", id,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE category_id = $1)`,
		store.Invalid("category_id", "category still has expenses"),
		`DELETE FROM expense_categories WHERE id = $1`)
}

func (s *Store) GetCashRegister(ctx context.Context) (*domain.CashRegister, error) {
	return getCashRegister(ctx, s.db, "")
}

func (s *Store) ListCashMovements(ctx context.Context, filter domain.CashMovementFilter) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cashMovementColumns+`
		FROM cash_movements
		WHERE ($1 = '' OR direction = $1) AND ($2 = '' OR category = $2)
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4
	`, string(filter.Direction), string(filter.Category), sqlLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, translate("list cash movements", err)
	}
	defer rows.Close()

	result := make([]domain.CashMovement, 0, 64)
	for rows.Next() {
		m, err := scanCashMovement(rows)
		if err != nil {
			return nil, translate("list cash movements", err)
		}
		result = append(result, *m)
	}
	return result, translate("list cash movements", rows.Err())
}

func (s *Store) GetCashMovement(ctx context.Context, id string) (*domain.CashMovement, error) {
	m, err := scanCashMovement(s.db.QueryRowContext(ctx, `SELECT `+cashMovementColumns+` FROM cash_movements WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr("get cash movement", err, "cash movement", id)
	}
	return m, nil
}

func (s *Store) ListStockMovements(ctx context.Context, storeID string, limit int) ([]domain.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(from_store_id, ''), COALESCE(to_store_id, ''), quantity, kind,
			description, COALESCE(reference_id, ''), reversal, actor, created_at
		FROM stock_movements
		WHERE ($1 = '' OR from_store_id = $1 OR to_store_id = $1)
		ORDER BY seq DESC
		LIMIT $2
	`, storeID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list stock movements", err)
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.FromStoreID, &m.ToStoreID, &m.Quantity, &kind,
			&m.Description, &m.ReferenceID, &m.Reversal, &m.Actor, &m.CreatedAt); err != nil {
			return nil, translate("list stock movements", err)
		}
		m.Kind = domain.StockMovementKind(kind)
		result = append(result, m)
	}
	return result, translate("list stock movements", rows.Err())
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return getPurchase(ctx, s.db, id, "")
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM purchases ORDER BY purchased_at DESC LIMIT $1`, sqlLimit(limit))
	if err != nil {
		return nil, translate("list purchases", err)
	}
	defer rows.Close()

	result := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, translate("list purchases", err)
		}
		result = append(result, *p)
	}
	return result, translate("list purchases", rows.Err())
}

func (s *Store) GetDaySale(ctx context.Context, id string) (*domain.DaySale, error) {
	return getDaySale(ctx, s.db, id, "")
}

func (s *Store) ListDaySales(ctx context.Context, pointOfSaleID string, limit int) ([]domain.DaySale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+daySaleColumns+`
		FROM day_sales
		WHERE ($1 = '' OR point_of_sale_id = $1)
		ORDER BY sale_date DESC
		LIMIT $2
	`, pointOfSaleID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list day sales", err)
	}
	defer rows.Close()

	result := make([]domain.DaySale, 0, 32)
	for rows.Next() {
		sale, err := scanDaySale(rows)
		if err != nil {
			return nil, translate("list day sales", err)
		}
		result = append(result, *sale)
	}
	return result, translate("list day sales", rows.Err())
}

func (s *Store) GetOwnerPayment(ctx context.Context, id string) (*domain.OwnerPayment, error) {
	return getOwnerPayment(ctx, s.db, id, "")
}

func (s *Store) ListOwnerPayments(ctx context.Context, pointOfSaleID string, limit int) ([]domain.OwnerPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ownerPaymentColumns+`
		FROM owner_payments
		WHERE ($1 = '' OR point_of_sale_id = $1)
		ORDER BY paid_at DESC
		LIMIT $2
	`, pointOfSaleID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list owner payments", err)
	}
	defer rows.Close()

	result := make([]domain.OwnerPayment, 0, 32)
	for rows.Next() {
		payment, err := scanOwnerPayment(rows)
		if err != nil {
			return nil, translate("list owner payments", err)
		}
		result = append(result, *payment)
	}
	return result, translate("list owner payments", rows.Err())
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransfer(ctx, s.db, id, "")
}

func (s *Store) ListTransfers(ctx context.Context, storeID string, limit int) ([]domain.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE ($1 = '' OR from_store_id = $1 OR to_store_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, storeID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list transfers", err)
	}
	defer rows.Close()

	result := make([]domain.Transfer, 0, 32)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, translate("list transfers", err)
		}
		result = append(result, *t)
	}
	return result, translate("list transfers", rows.Err())
}

func (s *Store) GetTransferSale(ctx context.Context, id string) (*domain.TransferSale, error) {
	return getTransferSale(ctx, s.db, id, "")
}

func (s *Store) GetLoss(ctx context.Context, id string) (*domain.Loss, error) {
	return getLoss(ctx, s.db, id, "")
}

func (s *Store) ListLosses(ctx context.Context, storeID string, limit int) ([]domain.Loss, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lossColumns+`
		FROM losses
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, storeID, sqlLimit(limit))
	if err != nil {
		return nil, translate("list losses", err)
	}
	defer rows.Close()

	result := make([]domain.Loss, 0, 32)
	for rows.Next() {
		l, err := scanLoss(rows)
		if err != nil {
			return nil, translate("list losses", err)
		}
		result = append(result, *l)
	}
	return result, translate("list losses", rows.Err())
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	return getExpense(ctx, s.db, id, "")
}

func (s *Store) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY date DESC LIMIT $1`, sqlLimit(limit))
	if err != nil {
		return nil, translate("list expenses", err)
	}
	defer rows.Close()

	result := make([]domain.Expense, 0, 32)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, translate("list expenses", err)
		}
		result = append(result, *expense)
	}
	return result, translate("list expenses", rows.Err())
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return translate("create audit log", err)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, sqlLimit(limit))
	if err != nil {
		return nil, translate("list audit logs", err)
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, translate("list audit logs", err)
		}
		result = append(result, entry)
	}
	return result, translate("list audit logs", rows.Err())
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &store.DuplicateError{Kind: "user", Key: username}
		}
		return translate("create user", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password_hash, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, translate("list users", err)
	}
	defer rows.Close()

	result := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, translate("list users", err)
		}
		result = append(result, u)
	}
	return result, translate("list users", rows.Err())
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return translate("update user password", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &store.NotFoundError{Kind: "user", ID: username}
	}
	return nil
}

// translate maps driver failures onto the store taxonomy. Errors that are
// already part of it, and context cancellation, pass through unchanged.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsDomainError(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isSerializationFailure(err):
		// Atomic decides whether to replay.
		return err
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return &store.DuplicateError{Kind: constraintName(err)}
	case isCheckViolation(err):
		return fmt.Errorf("%w: %s", store.ErrConsistencyConflict, constraintName(err))
	}
	return &store.StorageError{Op: op, Err: err}
}

func notFoundOr(op string, err error, kind string, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &store.NotFoundError{Kind: kind, ID: id}
	}
	return translate(op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "record"
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

// sqlLimit turns "no limit" into NULL, which Postgres reads as LIMIT ALL.
func sqlLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nonNilCatalog(items []domain.SupplierCatalogItem) []domain.SupplierCatalogItem {
	if items == nil {
		return []domain.SupplierCatalogItem{}
	}
	return items
}
