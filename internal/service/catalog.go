package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if req.Name == "" {
		return domain.Product{}, store.Invalid("name", "is required")
	}
	if !isProductCategory(req.Category) {
		return domain.Product{}, store.Invalid("category", "must be poisson or viande")
	}
	if req.SellingPrice < 1 {
		return domain.Product{}, store.Invalid("selling_price", "must be positive")
	}
	if req.PurchasePrice < 0 {
		return domain.Product{}, store.Invalid("purchase_price", "must not be negative")
	}
	threshold := domain.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.Invalid("low_stock_threshold", "must not be negative")
		}
		threshold = *req.LowStockThreshold
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prd"),
		Name:              req.Name,
		Category:          req.Category,
		PurchasePrice:     req.PurchasePrice,
		SellingPrice:      req.SellingPrice,
		LowStockThreshold: threshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,selling_price=%d", created.Name, created.SellingPrice))
	return *created, nil
}

// UpdateProduct edits the descriptive fields and the selling price. The
// purchase price only moves when a purchase is booked.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name", "is required")
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if !isProductCategory(category) {
			return domain.Product{}, store.Invalid("category", "must be poisson or viande")
		}
		updated.Category = category
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 1 {
			return domain.Product{}, store.Invalid("selling_price", "must be positive")
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.Invalid("low_stock_threshold", "must not be negative")
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,selling_price=%d,threshold=%d", saved.Name, saved.SellingPrice, saved.LowStockThreshold))
	return *saved, nil
}

// DeleteProduct removes a product nothing refers to any more.
func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", productID, "")
	return nil
}

func (s *Service) ListPointsOfSale(ctx context.Context) ([]domain.PointOfSale, error) {
	return s.repo.ListPointsOfSale(ctx)
}

func (s *Service) GetPointOfSale(ctx context.Context, id string) (domain.PointOfSale, error) {
	pos, err := s.repo.GetPointOfSale(ctx, id)
	if err != nil {
		return domain.PointOfSale{}, err
	}
	return *pos, nil
}

func (s *Service) CreatePointOfSale(ctx context.Context, req domain.PointOfSaleCreateRequest) (domain.PointOfSale, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.PointOfSale{}, store.Invalid("name", "is required")
	}

	created, err := s.repo.CreatePointOfSale(ctx, domain.PointOfSale{
		ID:        xid.New("pos"),
		Name:      req.Name,
		Location:  strings.TrimSpace(req.Location),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.PointOfSale{}, err
	}

	s.logAudit(ctx, "pos_create", "point_of_sale", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdatePointOfSale(ctx context.Context, id string, req domain.PointOfSaleUpdateRequest) (domain.PointOfSale, error) {
	existing, err := s.repo.GetPointOfSale(ctx, id)
	if err != nil {
		return domain.PointOfSale{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.PointOfSale{}, store.Invalid("name", "is required")
		}
		updated.Name = name
	}
	if req.Location != nil {
		updated.Location = strings.TrimSpace(*req.Location)
	}

	saved, err := s.repo.UpdatePointOfSale(ctx, updated)
	if err != nil {
		return domain.PointOfSale{}, err
	}

	s.logAudit(ctx, "pos_update", "point_of_sale", saved.ID, fmt.Sprintf("name=%s,location=%s", saved.Name, saved.Location))
	return *saved, nil
}

func (s *Service) DeletePointOfSale(ctx context.Context, id string) error {
	if err := s.repo.DeletePointOfSale(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "pos_delete", "point_of_sale", id, "")
	return nil
}

func (s *Service) ListStores(ctx context.Context, pointOfSaleID string) ([]domain.Store, error) {
	return s.repo.ListStores(ctx, pointOfSaleID)
}

func (s *Service) GetStore(ctx context.Context, id string) (domain.Store, error) {
	sto, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	return *sto, nil
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.PointOfSaleID = strings.TrimSpace(req.PointOfSaleID)
	if req.Name == "" {
		return domain.Store{}, store.Invalid("name", "is required")
	}
	if req.PointOfSaleID == "" {
		return domain.Store{}, store.Invalid("point_of_sale_id", "is required")
	}
	if req.Type != domain.StoreTypePrincipal && req.Type != domain.StoreTypeSecondary {
		return domain.Store{}, store.Invalid("type", "must be principal or secondary")
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		ID:            xid.New("store"),
		Name:          req.Name,
		PointOfSaleID: req.PointOfSaleID,
		Type:          req.Type,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, "store_create", "store", created.ID, fmt.Sprintf("pos=%s,type=%s", created.PointOfSaleID, created.Type))
	return *created, nil
}

// UpdateStore renames a store or flips its type. The owning point of sale
// never changes.
func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (domain.Store, error) {
	existing, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Store{}, store.Invalid("name", "is required")
		}
		updated.Name = name
	}
	if req.Type != nil {
		if *req.Type != domain.StoreTypePrincipal && *req.Type != domain.StoreTypeSecondary {
			return domain.Store{}, store.Invalid("type", "must be principal or secondary")
		}
		updated.Type = *req.Type
	}

	saved, err := s.repo.UpdateStore(ctx, updated)
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, "store_update", "store", saved.ID, fmt.Sprintf("name=%s,type=%s", saved.Name, saved.Type))
	return *saved, nil
}

func (s *Service) DeleteStore(ctx context.Context, id string) error {
	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "store_delete", "store", id, "")
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.Invalid("name", "is required")
	}
	category, err := supplierCategory(req.Category)
	if err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Contact:   strings.TrimSpace(req.Contact),
		Category:  category,
		Catalog:   []domain.SupplierCatalogItem{},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, fmt.Sprintf("name=%s,category=%s", created.Name, created.Category))
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	existing, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Supplier{}, store.Invalid("name", "is required")
		}
		updated.Name = name
	}
	if req.Contact != nil {
		updated.Contact = strings.TrimSpace(*req.Contact)
	}
	if req.Category != nil {
		category, err := supplierCategory(*req.Category)
		if err != nil {
			return domain.Supplier{}, err
		}
		updated.Category = category
	}

	saved, err := s.repo.UpdateSupplierProfile(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_update", "supplier", saved.ID, fmt.Sprintf("name=%s,category=%s", saved.Name, saved.Category))
	return *saved, nil
}

// DeleteSupplier refuses while the owner still owes the supplier or a
// purchase still names it.
func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", id, "")
	return nil
}

// UpsertSupplierCatalogItem records what the supplier charges for a product
// and the margin it leaves against the current selling price.
func (s *Service) UpsertSupplierCatalogItem(ctx context.Context, supplierID string, req domain.SupplierCatalogRequest) (domain.Supplier, error) {
	if req.PurchasePrice < 1 {
		return domain.Supplier{}, store.Invalid("purchase_price", "must be positive")
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return domain.Supplier{}, err
	}

	updated, err := s.repo.UpsertSupplierCatalogItem(ctx, supplierID, catalogItem(*product, req.PurchasePrice))
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_catalog_upsert", "supplier", supplierID, fmt.Sprintf("product=%s,price=%d", product.ID, req.PurchasePrice))
	return *updated, nil
}

func (s *Service) RemoveSupplierCatalogItem(ctx context.Context, supplierID string, productID string) (domain.Supplier, error) {
	updated, err := s.repo.RemoveSupplierCatalogItem(ctx, supplierID, productID)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_catalog_remove", "supplier", supplierID, "product="+productID)
	return *updated, nil
}

// catalogItem computes the margin as selling minus purchase price and the
// rate as that margin over the selling price, rounded to two places.
func catalogItem(product domain.Product, purchasePrice int64) domain.SupplierCatalogItem {
	margin := product.SellingPrice - purchasePrice
	rate := decimal.Zero
	if product.SellingPrice > 0 {
		rate = decimal.NewFromInt(margin).Div(decimal.NewFromInt(product.SellingPrice)).Round(2)
	}
	return domain.SupplierCatalogItem{
		ProductID:     product.ID,
		PurchasePrice: purchasePrice,
		Margin:        margin,
		MarginRate:    rate,
	}
}

func (s *Service) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	return s.repo.ListExpenseCategories(ctx)
}

func (s *Service) CreateExpenseCategory(ctx context.Context, req domain.ExpenseCategoryCreateRequest) (domain.ExpenseCategory, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return domain.ExpenseCategory{}, store.Invalid("name", "is required")
	}

	created, err := s.repo.CreateExpenseCategory(ctx, domain.ExpenseCategory{
		ID:          xid.New("cat"),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Color:       defaultString(req.Color, domain.DefaultCategoryColor),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.ExpenseCategory{}, err
	}

	s.logAudit(ctx, "expense_category_create", "expense_category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) DeleteExpenseCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpenseCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_category_delete", "expense_category", id, "")
	return nil
}

func isProductCategory(category string) bool {
	return category == domain.ProductCategoryFish || category == domain.ProductCategoryMeat
}

func supplierCategory(raw string) (string, error) {
	category := strings.ToLower(strings.TrimSpace(raw))
	if category == "" {
		return domain.SupplierCategoryOther, nil
	}
	switch category {
	case domain.SupplierCategoryWholesaler, domain.SupplierCategoryReseller, domain.SupplierCategoryOther:
		return category, nil
	}
	return "", store.Invalid("category", "must be grossiste, revendeur or autres")
}
