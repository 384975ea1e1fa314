package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcaisse/backend/internal/cache"
	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/replenishment"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/store/memory"
)

const (
	centralMain    = "store-central-main"
	centralReserve = "store-central-reserve"
	centralPOS     = "pos-central"
	tilapia        = "prd-tilapia"
	capitaine      = "prd-capitaine"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	advisor := replenishment.NewAdvisor(cache.NoopRestockCache{}, 5*time.Second)
	return New(repo, advisor, cache.NewMemoryIdempotencyGuard(), Options{})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "vendeur", Role: domain.RoleSeller})
}

func stockOf(t *testing.T, svc *Service, storeID string, productID string) int {
	t.Helper()
	sto, err := svc.GetStore(context.Background(), storeID)
	require.NoError(t, err, "get store %s", storeID)
	return sto.Quantity(productID)
}

func registerBalance(t *testing.T, svc *Service) int64 {
	t.Helper()
	reg, err := svc.GetCashRegister(context.Background())
	require.NoError(t, err)
	return reg.CurrentBalance
}

func till(t *testing.T, svc *Service, posID string) domain.PointOfSale {
	t.Helper()
	pos, err := svc.GetPointOfSale(context.Background(), posID)
	require.NoError(t, err)
	return pos
}

func supplierBalance(t *testing.T, svc *Service, id string) int64 {
	t.Helper()
	supplier, err := svc.GetSupplier(context.Background(), id)
	require.NoError(t, err)
	return supplier.Balance
}

func clientDebt(t *testing.T, svc *Service, id string) int64 {
	t.Helper()
	client, err := svc.GetClient(context.Background(), id)
	require.NoError(t, err)
	return client.CurrentDebt
}

func cashSale(qty int) domain.DaySaleRequest {
	return domain.DaySaleRequest{
		PointOfSaleID: centralPOS,
		StoreID:       centralReserve,
		Items:         []domain.DaySaleLineRequest{{ProductID: tilapia, QuantityCartons: qty}},
	}
}

func creditSale(qty int, override bool) domain.DaySaleRequest {
	req := cashSale(qty)
	req.IsCredit = true
	req.ClientID = "cli-awa"
	req.OverrideCreditLimit = override
	return req
}

func assertConsistent(t *testing.T, svc *Service) {
	t.Helper()
	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, report.Consistent, "expected consistent ledger, got %+v", report)
}

func TestCreatePurchaseFromRegister(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingCashRegister,
		Items: []domain.PurchaseLineRequest{
			{ProductID: tilapia, Quantity: 6, UnitPurchasePrice: 750},
			{ProductID: tilapia, Quantity: 4, UnitPurchasePrice: 750},
		},
	})
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, 10, p.Items[0].Quantity)
	assert.Equal(t, int64(7500), p.TotalAmount)
	assert.Equal(t, 60, stockOf(t, svc, centralMain, tilapia))
	assert.Equal(t, int64(92500), registerBalance(t, svc))

	product, err := svc.GetProduct(ctx, tilapia)
	require.NoError(t, err)
	assert.Equal(t, int64(750), product.PurchasePrice)

	expense, err := svc.GetExpense(ctx, p.ExpenseID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, expense.PurchaseID)
	assert.Equal(t, int64(7500), expense.Amount)
	assert.Equal(t, "cat-purchase", expense.CategoryID)
	assert.Empty(t, expense.CashMovementID, "purchase expense has no cash movement of its own")
	assertConsistent(t, svc)
}

func TestPurchaseRejectsSecondaryStoreAndShortRegister(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralReserve,
		Items:      []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 1, UnitPurchasePrice: 700}},
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items:      []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 200, UnitPurchasePrice: 700}},
	})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.Equal(t, 50, stockOf(t, svc, centralMain, tilapia))
}

func TestUpdatePurchaseSwitchesFunding(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingSupplierCredit,
		Items:       []domain.PurchaseLineRequest{{ProductID: capitaine, Quantity: 10, UnitPurchasePrice: 800}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), supplierBalance(t, svc, "sup-ocean"))
	assert.Equal(t, int64(100000), registerBalance(t, svc))

	updated, err := svc.UpdatePurchase(ctx, p.ID, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingCashRegister,
		Items:       []domain.PurchaseLineRequest{{ProductID: capitaine, Quantity: 5, UnitPurchasePrice: 800}},
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.ExpenseID, updated.ExpenseID)
	assert.Zero(t, supplierBalance(t, svc, "sup-ocean"))
	assert.Equal(t, int64(96000), registerBalance(t, svc))
	assert.Equal(t, 5, stockOf(t, svc, centralMain, capitaine))

	expense, err := svc.GetExpense(ctx, p.ExpenseID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), expense.Amount)
	assertConsistent(t, svc)
}

func TestRemovePurchaseItemDeletesPurchaseWithLastLine(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items: []domain.PurchaseLineRequest{
			{ProductID: tilapia, Quantity: 2, UnitPurchasePrice: 700},
			{ProductID: capitaine, Quantity: 3, UnitPurchasePrice: 1500},
		},
	})
	require.NoError(t, err)

	left, remaining, err := svc.RemovePurchaseItem(ctx, p.ID, capitaine)
	require.NoError(t, err)
	require.True(t, remaining)
	assert.Equal(t, int64(1400), left.TotalAmount)
	assert.Len(t, left.Items, 1)
	assert.Equal(t, int64(98600), registerBalance(t, svc))

	_, remaining, err = svc.RemovePurchaseItem(ctx, p.ID, tilapia)
	require.NoError(t, err)
	require.False(t, remaining)

	_, err = svc.GetPurchase(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.GetExpense(ctx, p.ExpenseID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int64(100000), registerBalance(t, svc))
	assertConsistent(t, svc)
}

func TestDeletePurchaseFailsWhenStockWasMovedOn(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items:      []domain.PurchaseLineRequest{{ProductID: capitaine, Quantity: 5, UnitPurchasePrice: 1500}},
	})
	require.NoError(t, err)
	_, err = svc.CreateTransfer(ctx, domain.TransferRequest{
		Kind:        domain.TransferRestock,
		FromStoreID: centralMain,
		ToStoreID:   centralReserve,
		Lines:       []domain.TransferLineRequest{{ProductID: capitaine, Quantity: 4}},
	})
	require.NoError(t, err)

	err = svc.DeletePurchase(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, int64(92500), registerBalance(t, svc))
	_, err = svc.GetPurchase(ctx, p.ID)
	assert.NoError(t, err, "purchase must be kept")
}

func TestDeletePurchaseRefusedOnceSupplierWasPaid(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingSupplierCredit,
		Items:       []domain.PurchaseLineRequest{{ProductID: capitaine, Quantity: 10, UnitPurchasePrice: 800}},
	})
	require.NoError(t, err)
	_, err = svc.PaySupplier(ctx, "sup-ocean", domain.SupplierPaymentRequest{Amount: 8000})
	require.NoError(t, err)
	require.Zero(t, supplierBalance(t, svc, "sup-ocean"))

	err = svc.DeletePurchase(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	assert.Zero(t, supplierBalance(t, svc, "sup-ocean"))
	assert.Equal(t, 10, stockOf(t, svc, centralMain, capitaine))
	assert.Equal(t, int64(92000), registerBalance(t, svc))
	_, err = svc.GetPurchase(ctx, p.ID)
	assert.NoError(t, err)
	assertConsistent(t, svc)
}

func TestCashDaySaleEditAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateDaySale(ctx, cashSale(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sale.TotalAmount)
	assert.Equal(t, int64(1000), sale.Items[0].UnitPrice)
	assert.Equal(t, int64(3000), till(t, svc, centralPOS).Solde)

	_, err = svc.UpdateDaySale(ctx, sale.ID, cashSale(10))
	require.NoError(t, err, "edit to 10 must see the reverted quantity")
	assert.Zero(t, stockOf(t, svc, centralReserve, tilapia))

	_, err = svc.UpdateDaySale(ctx, sale.ID, cashSale(11))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, int64(10000), till(t, svc, centralPOS).Solde)

	require.NoError(t, svc.DeleteDaySale(ctx, sale.ID))
	assert.Equal(t, 10, stockOf(t, svc, centralReserve, tilapia))
	assert.Zero(t, till(t, svc, centralPOS).Solde)
}

func TestDeleteCashSaleRefusedOnceTillWasRemitted(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.CreateDaySale(ctx, cashSale(4))
	require.NoError(t, err)
	_, err = svc.CreateOwnerPayment(ctx, domain.OwnerPaymentRequest{PointOfSaleID: centralPOS, Amount: 4000})
	require.NoError(t, err)

	err = svc.DeleteDaySale(ctx, sale.ID)
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	assert.Zero(t, till(t, svc, centralPOS).Solde)
	assert.Equal(t, 6, stockOf(t, svc, centralReserve, tilapia))
	assert.Equal(t, int64(104000), registerBalance(t, svc))
	_, err = svc.GetDaySale(ctx, sale.ID)
	assert.NoError(t, err)
	assertConsistent(t, svc)
}

func TestDeleteCreditSaleRefusedOnceClientRepaid(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.CreateDaySale(ctx, creditSale(4, false))
	require.NoError(t, err)
	_, err = svc.RecordClientRepayment(ctx, "cli-awa", domain.ClientRepaymentRequest{Amount: 4000, PointOfSaleID: centralPOS})
	require.NoError(t, err)
	require.Zero(t, clientDebt(t, svc, "cli-awa"))

	err = svc.DeleteDaySale(ctx, sale.ID)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	assert.Zero(t, clientDebt(t, svc, "cli-awa"))
	pos := till(t, svc, centralPOS)
	assert.Zero(t, pos.Impayer)
	assert.Equal(t, int64(4000), pos.Solde)
	assert.Equal(t, 6, stockOf(t, svc, centralReserve, tilapia))
	entries, err := svc.ListClientTransactions(ctx, "cli-awa", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assertConsistent(t, svc)
}

func TestCreditSaleGuards(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateDaySale(sellerCtx(), creditSale(20, false))
	require.ErrorIs(t, err, store.ErrInsufficientStock, "stock is checked before credit")
	_, err = svc.CreateDaySale(sellerCtx(), creditSale(6, false))
	require.ErrorIs(t, err, store.ErrCreditLimitExceeded)
	_, err = svc.CreateDaySale(sellerCtx(), creditSale(6, true))
	require.ErrorIs(t, err, store.ErrForbidden)

	sale, err := svc.CreateDaySale(adminCtx(), creditSale(6, true))
	require.NoError(t, err)
	assert.Equal(t, int64(6000), clientDebt(t, svc, "cli-awa"))
	pos := till(t, svc, centralPOS)
	assert.Equal(t, int64(6000), pos.Impayer)
	assert.Zero(t, pos.Solde)

	require.NoError(t, svc.DeleteDaySale(adminCtx(), sale.ID))
	entries, err := svc.ListClientTransactions(context.Background(), "cli-awa", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ClientCreditPurchase, entries[0].Type)
	assert.Equal(t, int64(-6000), entries[0].Amount)
	assertConsistent(t, svc)
}

func TestOwnerPaymentLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateDaySale(ctx, cashSale(2))
	require.NoError(t, err)
	_, err = svc.CreateOwnerPayment(ctx, domain.OwnerPaymentRequest{PointOfSaleID: centralPOS, Amount: 3000})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	payment, err := svc.CreateOwnerPayment(ctx, domain.OwnerPaymentRequest{PointOfSaleID: centralPOS, Amount: 2000, Method: domain.PaymentMobileMoney})
	require.NoError(t, err)
	assert.NotEmpty(t, payment.CashMovementID)
	assert.Equal(t, int64(102000), registerBalance(t, svc))

	_, err = svc.UpdateOwnerPayment(ctx, payment.ID, domain.OwnerPaymentRequest{PointOfSaleID: centralPOS, Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, int64(500), till(t, svc, centralPOS).Solde)
	assert.Equal(t, int64(101500), registerBalance(t, svc))

	_, err = svc.CreateOwnerPayment(ctx, domain.OwnerPaymentRequest{PointOfSaleID: centralPOS, Amount: 100, Method: "barter"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	require.NoError(t, svc.DeleteOwnerPayment(ctx, payment.ID))
	assert.Equal(t, int64(2000), till(t, svc, centralPOS).Solde)
	assert.Equal(t, int64(100000), registerBalance(t, svc))
	assertConsistent(t, svc)
}

func TestRestockTransferRaisesDebtToOwner(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateTransfer(ctx, domain.TransferRequest{
		Kind:        domain.TransferReturn,
		FromStoreID: centralMain,
		ToStoreID:   centralReserve,
		Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidInput, "kind must match store types")

	resp, err := svc.CreateTransfer(ctx, domain.TransferRequest{
		Kind:        domain.TransferRestock,
		FromStoreID: centralMain,
		ToStoreID:   centralReserve,
		Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: 5}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.TransferSale)
	assert.Equal(t, int64(5000), resp.TransferSale.TotalAmount)
	assert.Equal(t, int64(5000), till(t, svc, centralPOS).TotalDebtToOwner)
	assert.Equal(t, 45, stockOf(t, svc, centralMain, tilapia))
	assert.Equal(t, 15, stockOf(t, svc, centralReserve, tilapia))

	require.NoError(t, svc.DeleteTransfer(ctx, resp.Transfer.ID))
	assert.Zero(t, till(t, svc, centralPOS).TotalDebtToOwner)
	assert.Equal(t, 50, stockOf(t, svc, centralMain, tilapia))
	assert.Equal(t, 10, stockOf(t, svc, centralReserve, tilapia))
}

func TestUpdateRestockSeesRevertedQuantity(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	restock := func(qty int) domain.TransferRequest {
		return domain.TransferRequest{
			Kind:        domain.TransferRestock,
			FromStoreID: centralMain,
			ToStoreID:   centralReserve,
			Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: qty}},
		}
	}

	created, err := svc.CreateTransfer(ctx, restock(50))
	require.NoError(t, err)
	require.Zero(t, stockOf(t, svc, centralMain, tilapia))

	updated, err := svc.UpdateTransfer(ctx, created.Transfer.ID, restock(45))
	require.NoError(t, err, "edit must be checked against the stock the old transfer gives back")
	assert.Equal(t, created.Transfer.ID, updated.Transfer.ID)
	require.NotNil(t, updated.TransferSale)
	assert.Equal(t, created.TransferSale.ID, updated.TransferSale.ID)
	assert.Equal(t, int64(45000), updated.TransferSale.TotalAmount)
	assert.Equal(t, 5, stockOf(t, svc, centralMain, tilapia))
	assert.Equal(t, 55, stockOf(t, svc, centralReserve, tilapia))
	assert.Equal(t, int64(45000), till(t, svc, centralPOS).TotalDebtToOwner)

	_, err = svc.UpdateTransfer(ctx, created.Transfer.ID, restock(51))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 5, stockOf(t, svc, centralMain, tilapia))
	assert.Equal(t, int64(45000), till(t, svc, centralPOS).TotalDebtToOwner)

	got, err := svc.GetTransfer(ctx, created.Transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, got.Transfer.Lines[0].Quantity)
	require.NotNil(t, got.TransferSale)
	assert.Equal(t, int64(45000), got.TransferSale.TotalAmount)
	assertConsistent(t, svc)
}

func TestUpdateTransferChangesKindAndDropsSale(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateTransfer(ctx, domain.TransferRequest{
		Kind:        domain.TransferRestock,
		FromStoreID: centralMain,
		ToStoreID:   centralReserve,
		Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: 4}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateTransfer(ctx, created.Transfer.ID, domain.TransferRequest{
		Kind:        domain.TransferReturn,
		FromStoreID: centralReserve,
		ToStoreID:   centralMain,
		Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: 10}},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.TransferSale)
	assert.Empty(t, updated.Transfer.TransferSaleID)
	assert.Zero(t, till(t, svc, centralPOS).TotalDebtToOwner)
	assert.Equal(t, 60, stockOf(t, svc, centralMain, tilapia))
	assert.Zero(t, stockOf(t, svc, centralReserve, tilapia))

	listed, err := svc.ListTransfers(ctx, centralReserve, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.TransferReturn, listed[0].Kind)

	_, err = svc.UpdateTransfer(ctx, "trf-missing", domain.TransferRequest{
		Kind:        domain.TransferReturn,
		FromStoreID: centralReserve,
		ToStoreID:   centralMain,
		Lines:       []domain.TransferLineRequest{{ProductID: tilapia, Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLossRecordAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.RecordLoss(ctx, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 1})
	require.ErrorIs(t, err, store.ErrInvalidInput, "reason is required")

	loss, err := svc.RecordLoss(ctx, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 4, Reason: "spoiled"})
	require.NoError(t, err)
	assert.Equal(t, 6, stockOf(t, svc, centralReserve, tilapia))

	require.NoError(t, svc.DeleteLoss(ctx, loss.ID))
	assert.Equal(t, 10, stockOf(t, svc, centralReserve, tilapia))
}

func TestUpdateLossSeesRevertedQuantity(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	loss, err := svc.RecordLoss(ctx, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 10, Reason: "power cut"})
	require.NoError(t, err)
	require.Zero(t, stockOf(t, svc, centralReserve, tilapia))

	updated, err := svc.UpdateLoss(ctx, loss.ID, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 7, Reason: "power cut, partial"})
	require.NoError(t, err)
	assert.Equal(t, loss.ID, updated.ID)
	assert.True(t, loss.CreatedAt.Equal(updated.CreatedAt))
	assert.Equal(t, 3, stockOf(t, svc, centralReserve, tilapia))

	_, err = svc.UpdateLoss(ctx, loss.ID, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 11, Reason: "power cut"})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, svc, centralReserve, tilapia))

	got, err := svc.GetLoss(ctx, loss.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	assert.Equal(t, "power cut, partial", got.Reason)

	losses, err := svc.ListLosses(ctx, centralReserve, 0)
	require.NoError(t, err)
	assert.Len(t, losses, 1)
	losses, err = svc.ListLosses(ctx, centralMain, 0)
	require.NoError(t, err)
	assert.Empty(t, losses)
}

func TestIdempotencyKeyReplaysFirstResult(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	req := domain.CashOperationRequest{Amount: 10000, Description: "float top-up", IdempotencyKey: "dep-1"}
	first, err := svc.Deposit(ctx, req)
	require.NoError(t, err)
	second, err := svc.Deposit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(110000), registerBalance(t, svc), "deposit applied once")

	saleReq := cashSale(2)
	saleReq.IdempotencyKey = "sale-1"
	s1, err := svc.CreateDaySale(ctx, saleReq)
	require.NoError(t, err)
	s2, err := svc.CreateDaySale(ctx, saleReq)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, 8, stockOf(t, svc, centralReserve, tilapia))
}

func TestFailedOperationReleasesIdempotencyKey(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	req := domain.CashOperationRequest{Amount: 200000, IdempotencyKey: "wd-1"}
	_, err := svc.Withdraw(ctx, req)
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	req.Amount = 1000
	m, err := svc.Withdraw(ctx, req)
	require.NoError(t, err, "retry with the same key must run")
	assert.Equal(t, int64(99000), m.BalanceAfter)
}

func TestSupplierPaymentAndAdjustment(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.PaySupplier(ctx, "sup-ocean", domain.SupplierPaymentRequest{Amount: 1})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.AdjustSupplierBalance(sellerCtx(), "sup-ocean", domain.SupplierAdjustmentRequest{Delta: 5000, Reason: "opening"})
	require.ErrorIs(t, err, store.ErrForbidden)

	supplier, err := svc.AdjustSupplierBalance(ctx, "sup-ocean", domain.SupplierAdjustmentRequest{Delta: 5000, Reason: "opening invoice"})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), supplier.Balance)
	_, err = svc.AdjustSupplierBalance(ctx, "sup-ocean", domain.SupplierAdjustmentRequest{Delta: -6000, Reason: "typo"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	m, err := svc.PaySupplier(ctx, "sup-ocean", domain.SupplierPaymentRequest{Amount: 3000})
	require.NoError(t, err)
	assert.Equal(t, domain.CashCategorySupplierPayment, m.Category)
	assert.Equal(t, "sup-ocean", m.SupplierID)
	assert.Equal(t, int64(2000), supplierBalance(t, svc, "sup-ocean"))
	assertConsistent(t, svc)
}

func TestExpenseDeleteRules(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	expense, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Label: "Gasoil", Amount: 4000, CategoryID: "cat-fuel"})
	require.NoError(t, err)
	assert.Equal(t, int64(96000), registerBalance(t, svc))
	require.NoError(t, svc.DeleteExpense(ctx, expense.ID))
	assert.Equal(t, int64(100000), registerBalance(t, svc))

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items:      []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 1, UnitPurchasePrice: 700}},
	})
	require.NoError(t, err)
	err = svc.DeleteExpense(ctx, p.ExpenseID)
	require.ErrorIs(t, err, store.ErrInvalidInput, "purchase expenses go with their purchase")
	assertConsistent(t, svc)
}

func TestUpdateExpenseRepaysOnlyTheDifference(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	expense, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Label: "Gasoil", Amount: 4000, CategoryID: "cat-fuel"})
	require.NoError(t, err)

	updated, err := svc.UpdateExpense(ctx, expense.ID, domain.ExpenseRequest{Label: "Gasoil camion", Amount: 98000, CategoryID: "cat-fuel"})
	require.NoError(t, err, "the refunded amount covers part of the new one")
	assert.Equal(t, expense.ID, updated.ID)
	assert.NotEqual(t, expense.CashMovementID, updated.CashMovementID)
	assert.Equal(t, int64(2000), registerBalance(t, svc))

	_, err = svc.UpdateExpense(ctx, expense.ID, domain.ExpenseRequest{Label: "Gasoil", Amount: 100001, CategoryID: "cat-fuel"})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.Equal(t, int64(2000), registerBalance(t, svc))

	_, err = svc.UpdateExpense(ctx, expense.ID, domain.ExpenseRequest{Label: "Gasoil", Amount: 1000, CategoryID: "cat-missing"})
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := svc.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98000), got.Amount)
	assert.Equal(t, "Gasoil camion", got.Label)

	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingSupplierCredit,
		Items:       []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 1, UnitPurchasePrice: 700}},
	})
	require.NoError(t, err)
	_, err = svc.UpdateExpense(ctx, p.ExpenseID, domain.ExpenseRequest{Label: "x", Amount: 1, CategoryID: "cat-fuel"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	assertConsistent(t, svc)
}

func TestClientRepaymentAtPointOfSale(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateDaySale(ctx, creditSale(4, false))
	require.NoError(t, err)

	_, err = svc.RecordClientRepayment(ctx, "cli-awa", domain.ClientRepaymentRequest{Amount: 5000})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	resp, err := svc.RecordClientRepayment(ctx, "cli-awa", domain.ClientRepaymentRequest{Amount: 1500, PointOfSaleID: centralPOS})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), resp.Client.CurrentDebt)
	assert.Equal(t, int64(2500), resp.Transaction.BalanceAfter)
	pos := till(t, svc, centralPOS)
	assert.Equal(t, int64(1500), pos.Solde)
	assert.Equal(t, int64(2500), pos.Impayer)
	assertConsistent(t, svc)
}

func TestRestockSuggestionsForSecondaryStore(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.RestockSuggestions(ctx, centralMain)
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.RecordLoss(ctx, domain.LossRequest{StoreID: centralReserve, ProductID: tilapia, Quantity: 9, Reason: "spoiled"})
	require.NoError(t, err)

	report, err := svc.RestockSuggestions(ctx, centralReserve)
	require.NoError(t, err)
	assert.Equal(t, centralMain, report.PrincipalStoreID)

	var found bool
	for _, s := range report.Suggestions {
		if s.ProductID == tilapia {
			found = true
			assert.Equal(t, 1, s.Quantity)
			assert.Equal(t, 5, s.SuggestedQuantity)
		}
	}
	assert.True(t, found, "expected tilapia suggestion, got %+v", report.Suggestions)
}

func TestCatalogValidationAndMargin(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Poulet", Category: "volaille", SellingPrice: 1200})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "tilapia", Category: "poisson", SellingPrice: 1200})
	require.ErrorIs(t, err, store.ErrDuplicate)

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Mouton", Category: "Viande", SellingPrice: 4000})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultLowStockThreshold, product.LowStockThreshold)
	assert.Equal(t, domain.ProductCategoryMeat, product.Category)

	supplier, err := svc.UpsertSupplierCatalogItem(ctx, "sup-ocean", domain.SupplierCatalogRequest{ProductID: capitaine, PurchasePrice: 1500})
	require.NoError(t, err)
	require.Len(t, supplier.Catalog, 1)
	item := supplier.Catalog[0]
	assert.Equal(t, int64(500), item.Margin)
	assert.True(t, item.MarginRate.Equal(decimal.RequireFromString("0.25")), "margin rate %s", item.MarginRate)
}

func TestDeleteProductRefusedWhileReferenced(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	err := svc.DeleteProduct(ctx, tilapia)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Mouton", Category: "viande", SellingPrice: 4000})
	require.NoError(t, err)
	purchase, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items:      []domain.PurchaseLineRequest{{ProductID: product.ID, Quantity: 1, UnitPurchasePrice: 3000}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteProduct(ctx, product.ID), store.ErrInvalidInput)

	require.NoError(t, svc.DeletePurchase(ctx, purchase.ID))
	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	_, err = svc.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, product.ID), store.ErrNotFound)
	assertConsistent(t, svc)
}

func TestSupplierProfileUpdateAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	name := "Ocean Fresh"
	category := "Grossiste"
	updated, err := svc.UpdateSupplier(ctx, "sup-ocean", domain.SupplierUpdateRequest{Name: &name, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, "Ocean Fresh", updated.Name)
	assert.Equal(t, domain.SupplierCategoryWholesaler, updated.Category)

	bad := "importer"
	_, err = svc.UpdateSupplier(ctx, "sup-ocean", domain.SupplierUpdateRequest{Category: &bad})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID:  "sup-ocean",
		StoreID:     centralMain,
		FundingMode: domain.FundingSupplierCredit,
		Items:       []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 1, UnitPurchasePrice: 700}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteSupplier(ctx, "sup-ocean"), store.ErrInvalidInput)

	fresh, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Boucherie Ndiaye"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSupplier(ctx, fresh.ID))
	_, err = svc.GetSupplier(ctx, fresh.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreAndPointOfSaleUpdates(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	renamed := "Central shop"
	sto, err := svc.UpdateStore(ctx, centralReserve, domain.StoreUpdateRequest{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Central shop", sto.Name)
	assert.Equal(t, domain.StoreTypeSecondary, sto.Type)
	assert.Equal(t, 10, sto.Quantity(tilapia))

	principal := domain.StoreTypePrincipal
	_, err = svc.UpdateStore(ctx, centralReserve, domain.StoreUpdateRequest{Type: &principal})
	require.ErrorIs(t, err, store.ErrDuplicate, "a point of sale keeps one store per type")

	location := "Medina"
	pos, err := svc.UpdatePointOfSale(ctx, centralPOS, domain.PointOfSaleUpdateRequest{Location: &location})
	require.NoError(t, err)
	assert.Equal(t, "Medina", pos.Location)
	assert.Equal(t, "Central Market", pos.Name)

	blank := "  "
	_, err = svc.UpdatePointOfSale(ctx, centralPOS, domain.PointOfSaleUpdateRequest{Name: &blank})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	taken := "port market"
	_, err = svc.UpdatePointOfSale(ctx, centralPOS, domain.PointOfSaleUpdateRequest{Name: &taken})
	require.ErrorIs(t, err, store.ErrDuplicate)
}

func TestDeleteExpenseCategoryRefusedWhileUsed(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Label: "Gasoil", Amount: 1000, CategoryID: "cat-fuel"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteExpenseCategory(ctx, "cat-fuel"), store.ErrInvalidInput)

	category, err := svc.CreateExpenseCategory(ctx, domain.ExpenseCategoryCreateRequest{Name: "loyer"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteExpenseCategory(ctx, category.ID))
	assert.ErrorIs(t, svc.DeleteExpenseCategory(ctx, category.ID), store.ErrNotFound)
}

func TestReconcileDetectsNothingAfterMixedOperations(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.Deposit(ctx, domain.CashOperationRequest{Amount: 5000})
	require.NoError(t, err)
	p, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-ocean",
		StoreID:    centralMain,
		Items:      []domain.PurchaseLineRequest{{ProductID: tilapia, Quantity: 3, UnitPurchasePrice: 700}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePurchase(ctx, p.ID))

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(105000), report.RegisterBalance)
	assert.Equal(t, 4, report.MovementsChecked)
}

type ttlRecorder struct {
	cache.IdempotencyGuard
	reserveTTL  time.Duration
	completeTTL time.Duration
}

func (r *ttlRecorder) Reserve(ctx context.Context, key string, pendingTTL time.Duration) (string, bool, error) {
	r.reserveTTL = pendingTTL
	return r.IdempotencyGuard.Reserve(ctx, key, pendingTTL)
}

func (r *ttlRecorder) Complete(ctx context.Context, key string, ref string, ttl time.Duration) error {
	r.completeTTL = ttl
	return r.IdempotencyGuard.Complete(ctx, key, ref, ttl)
}

func TestIdempotencyClaimHeldShortUntilCommit(t *testing.T) {
	guard := &ttlRecorder{IdempotencyGuard: cache.NewMemoryIdempotencyGuard()}
	advisor := replenishment.NewAdvisor(cache.NoopRestockCache{}, 5*time.Second)
	svc := New(memory.NewSeeded(), advisor, guard, Options{IdempotencyTTL: 12 * time.Hour})

	_, err := svc.Deposit(adminCtx(), domain.CashOperationRequest{Amount: 500, IdempotencyKey: "dep-ttl"})
	require.NoError(t, err)
	assert.Equal(t, defaultPendingTTL, guard.reserveTTL)
	assert.Equal(t, 12*time.Hour, guard.completeTTL)
}
