package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/store/memory"
)

type fixture struct {
	repo   *memory.Store
	ledger *ledger.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	_, err := repo.CreatePointOfSale(ctx, domain.PointOfSale{ID: "pos-1", Name: "Branch"})
	require.NoError(t, err)
	_, err = repo.CreateStore(ctx, domain.Store{ID: "st-main", Name: "Warehouse", PointOfSaleID: "pos-1", Type: domain.StoreTypePrincipal})
	require.NoError(t, err)
	_, err = repo.CreateStore(ctx, domain.Store{ID: "st-shop", Name: "Shop", PointOfSaleID: "pos-1", Type: domain.StoreTypeSecondary})
	require.NoError(t, err)
	_, err = repo.CreateProduct(ctx, domain.Product{ID: "prd-1", Name: "Tilapia", Category: domain.ProductCategoryFish, PurchasePrice: 700, SellingPrice: 1000})
	require.NoError(t, err)
	_, err = repo.CreateClient(ctx, domain.Client{ID: "cli-1", Name: "Awa", CreditLimit: 5000})
	require.NoError(t, err)
	_, err = repo.CreateSupplier(ctx, domain.Supplier{ID: "sup-1", Name: "Ocean"})
	require.NoError(t, err)

	return &fixture{repo: repo, ledger: ledger.NewCoordinator(repo)}
}

func (f *fixture) run(t *testing.T, fn func(ctx context.Context, u *ledger.Unit) error) error {
	t.Helper()
	return f.ledger.Execute(context.Background(), "tester", fn)
}

func (f *fixture) seedStock(t *testing.T, storeID string, qty int) {
	t.Helper()
	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Increment(ctx, storeID, "prd-1", qty, ledger.Movement{Kind: domain.StockAdjustment})
	})
	require.NoError(t, err)
}

func (f *fixture) deposit(t *testing.T, amount int64) {
	t.Helper()
	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		_, err := u.ApplyCash(ctx, ledger.CashEntry{Direction: domain.CashIn, Amount: amount, Category: domain.CashCategoryDeposit})
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, storeID string) int {
	t.Helper()
	s, err := f.repo.GetStore(context.Background(), storeID)
	require.NoError(t, err)
	return s.Quantity("prd-1")
}

func (f *fixture) register(t *testing.T) domain.CashRegister {
	t.Helper()
	reg, err := f.repo.GetCashRegister(context.Background())
	require.NoError(t, err)
	return *reg
}

func sale(qty int) domain.DaySale {
	return domain.DaySale{
		ID:            "sale-1",
		PointOfSaleID: "pos-1",
		StoreID:       "st-shop",
		Items:         []domain.DaySaleItem{{ProductID: "prd-1", ProductName: "Tilapia", QuantityCartons: qty, UnitPrice: 1000, SubTotal: int64(qty) * 1000}},
		TotalAmount:   int64(qty) * 1000,
	}
}

func TestDecrementRejectsInsufficientStockAndWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-shop", 5)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Decrement(ctx, "st-shop", "prd-1", 6, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, "Tilapia", stockErr.ProductName)

	assert.Equal(t, 5, f.stock(t, "st-shop"))
	moves, err := f.repo.ListStockMovements(context.Background(), "st-shop", 0)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestEditSaleRevertsThenReapplies(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-shop", 10)

	original := sale(2)
	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Decrement(ctx, "st-shop", "prd-1", 2, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.NoError(t, err)
	require.Equal(t, 8, f.stock(t, "st-shop"))

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Revert(ctx, ledger.ReverseDaySale(original)); err != nil {
			return err
		}
		return u.Decrement(ctx, "st-shop", "prd-1", 5, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, "st-shop"))
}

func TestReplacementGuardSeesRevertedQuantity(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-shop", 10)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Decrement(ctx, "st-shop", "prd-1", 8, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.NoError(t, err)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Revert(ctx, ledger.ReverseDaySale(sale(8))); err != nil {
			return err
		}
		return u.Decrement(ctx, "st-shop", "prd-1", 11, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 2, f.stock(t, "st-shop"), "failed edit must leave the original sale in place")

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Revert(ctx, ledger.ReverseDaySale(sale(8))); err != nil {
			return err
		}
		return u.Decrement(ctx, "st-shop", "prd-1", 9, ledger.Movement{Kind: domain.StockSaleOut})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.stock(t, "st-shop"))
}

func TestRevertingConsumedPurchaseFailsOnFinalState(t *testing.T) {
	f := newFixture(t)
	purchase := domain.Purchase{
		ID:          "pur-1",
		SupplierID:  "sup-1",
		StoreID:     "st-main",
		FundingMode: domain.FundingSupplierCredit,
		Items:       []domain.PurchaseItem{{ProductID: "prd-1", ProductName: "Tilapia", Quantity: 10, UnitPurchasePrice: 700}},
		TotalAmount: 7000,
	}
	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Increment(ctx, "st-main", "prd-1", 10, ledger.Movement{Kind: domain.StockPurchaseIn}); err != nil {
			return err
		}
		_, err := u.ApplySupplier(ctx, "sup-1", 7000)
		return err
	})
	require.NoError(t, err)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Move(ctx, "st-main", "st-shop", "prd-1", 8, ledger.Movement{Kind: domain.StockTransfer})
	})
	require.NoError(t, err)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Revert(ctx, ledger.ReversePurchase(purchase))
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 2, f.stock(t, "st-main"))

	supplier, err := f.repo.GetSupplier(context.Background(), "sup-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), supplier.Balance)
}

func TestCashOutflowRejectedWhenRegisterShort(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 1000)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Increment(ctx, "st-main", "prd-1", 3, ledger.Movement{Kind: domain.StockPurchaseIn}); err != nil {
			return err
		}
		_, err := u.ApplyCash(ctx, ledger.CashEntry{Direction: domain.CashOut, Amount: 1500, Category: domain.CashCategoryExpense})
		return err
	})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	reg := f.register(t)
	assert.Equal(t, int64(1000), reg.CurrentBalance)
	assert.Equal(t, 0, f.stock(t, "st-main"))
}

func TestCashReversalRestoresCounters(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 5000)

	purchase := domain.Purchase{
		ID:          "pur-1",
		SupplierID:  "sup-1",
		StoreID:     "st-main",
		FundingMode: domain.FundingCashRegister,
		Items:       []domain.PurchaseItem{{ProductID: "prd-1", ProductName: "Tilapia", Quantity: 2, UnitPurchasePrice: 1000}},
		TotalAmount: 2000,
	}
	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Increment(ctx, "st-main", "prd-1", 2, ledger.Movement{Kind: domain.StockPurchaseIn}); err != nil {
			return err
		}
		_, err := u.ApplyCash(ctx, ledger.CashEntry{Direction: domain.CashOut, Amount: 2000, Category: domain.CashCategoryExpense})
		return err
	})
	require.NoError(t, err)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Revert(ctx, ledger.ReversePurchase(purchase))
	})
	require.NoError(t, err)

	reg := f.register(t)
	assert.Equal(t, int64(5000), reg.CurrentBalance)
	assert.Equal(t, int64(5000), reg.CumulativeIn)
	assert.Equal(t, int64(0), reg.CumulativeOut)
	assert.Equal(t, 0, f.stock(t, "st-main"))

	moves, err := f.repo.ListCashMovements(context.Background(), domain.CashMovementFilter{})
	require.NoError(t, err)
	require.Len(t, moves, 3)
	var replayed int64
	for _, m := range moves {
		replayed += m.Signed()
	}
	assert.Equal(t, reg.CurrentBalance, replayed)
	assert.True(t, moves[0].Reversal)
	assert.Equal(t, domain.CashIn, moves[0].Direction)
}

func TestCreditPurchaseChecksRestrictionThenLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	credit := func(amount int64, override bool) error {
		return f.run(t, func(ctx context.Context, u *ledger.Unit) error {
			_, err := u.ApplyClientDebt(ctx, ledger.DebtEntry{ClientID: "cli-1", Type: domain.ClientCreditPurchase, Amount: amount, Override: override})
			return err
		})
	}

	require.NoError(t, credit(4000, false))
	require.ErrorIs(t, credit(2000, false), store.ErrCreditLimitExceeded)
	require.NoError(t, credit(2000, true))

	client, err := f.repo.GetClient(ctx, "cli-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), client.CurrentDebt)

	client.IsRestricted = true
	client.RestrictionReason = "late payments"
	_, err = f.repo.UpdateClientProfile(ctx, *client)
	require.NoError(t, err)

	err = credit(100, true)
	require.ErrorIs(t, err, store.ErrClientRestricted)

	txs, err := f.repo.ListClientTransactions(ctx, "cli-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(6000), txs[0].BalanceAfter)
}

func TestClientDebtReversalKeepsTypeWithNegatedAmount(t *testing.T) {
	f := newFixture(t)
	creditSale := sale(3)
	creditSale.IsCredit = true
	creditSale.ClientID = "cli-1"
	f.seedStock(t, "st-shop", 5)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Decrement(ctx, "st-shop", "prd-1", 3, ledger.Movement{Kind: domain.StockSaleOut}); err != nil {
			return err
		}
		if _, err := u.ApplyClientDebt(ctx, ledger.DebtEntry{ClientID: "cli-1", Type: domain.ClientCreditPurchase, Amount: 3000}); err != nil {
			return err
		}
		_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Impayer: 3000}})
		return err
	})
	require.NoError(t, err)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Revert(ctx, ledger.ReverseDaySale(creditSale))
	})
	require.NoError(t, err)

	ctx := context.Background()
	client, err := f.repo.GetClient(ctx, "cli-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.CurrentDebt)

	pos, err := f.repo.GetPointOfSale(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.Impayer)
	assert.Equal(t, 5, f.stock(t, "st-shop"))

	txs, err := f.repo.ListClientTransactions(ctx, "cli-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.ClientCreditPurchase, txs[0].Type)
	assert.Equal(t, int64(-3000), txs[0].Amount)
	assert.True(t, txs[0].Reversal)

	var replayed int64
	for _, entry := range txs {
		replayed += entry.DebtDelta()
	}
	assert.Equal(t, client.CurrentDebt, replayed)
}

func TestTillSoldeGuardedPerStepWhenRequired(t *testing.T) {
	f := newFixture(t)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Solde: -500}, RequireSolde: true})
		return err
	})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if _, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Solde: -500}}); err != nil {
			return err
		}
		_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Solde: 800}})
		return err
	})
	require.NoError(t, err)

	pos, err := f.repo.GetPointOfSale(context.Background(), "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), pos.Solde)
}

func TestFlushRejectsNegativeFinalBalances(t *testing.T) {
	tests := []struct {
		name  string
		apply func(ctx context.Context, u *ledger.Unit) error
		want  error
	}{
		{
			name: "till solde",
			apply: func(ctx context.Context, u *ledger.Unit) error {
				_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Solde: -500}})
				return err
			},
			want: store.ErrInsufficientFunds,
		},
		{
			name: "till impayer",
			apply: func(ctx context.Context, u *ledger.Unit) error {
				_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{Impayer: -1}})
				return err
			},
			want: store.ErrInvalidInput,
		},
		{
			name: "debt to owner",
			apply: func(ctx context.Context, u *ledger.Unit) error {
				_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{DebtToOwner: -1000}})
				return err
			},
			want: store.ErrInvalidInput,
		},
		{
			name: "supplier balance",
			apply: func(ctx context.Context, u *ledger.Unit) error {
				_, err := u.ApplySupplier(ctx, "sup-1", -8000)
				return err
			},
			want: store.ErrInvalidInput,
		},
		{
			name: "client debt",
			apply: func(ctx context.Context, u *ledger.Unit) error {
				return u.Revert(ctx, []ledger.Intent{ledger.ClientDebtDelta{ClientID: "cli-1", Type: domain.ClientCreditPurchase, Amount: -4000}})
			},
			want: store.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deposit(t, 1000)

			err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
				if _, err := u.ApplyCash(ctx, ledger.CashEntry{Direction: domain.CashIn, Amount: 250, Category: domain.CashCategoryDeposit}); err != nil {
					return err
				}
				return tt.apply(ctx, u)
			})
			require.ErrorIs(t, err, tt.want)

			ctx := context.Background()
			assert.Equal(t, int64(1000), f.register(t).CurrentBalance)
			pos, err := f.repo.GetPointOfSale(ctx, "pos-1")
			require.NoError(t, err)
			assert.Zero(t, pos.Solde)
			assert.Zero(t, pos.Impayer)
			assert.Zero(t, pos.TotalDebtToOwner)
			supplier, err := f.repo.GetSupplier(ctx, "sup-1")
			require.NoError(t, err)
			assert.Zero(t, supplier.Balance)
			client, err := f.repo.GetClient(ctx, "cli-1")
			require.NoError(t, err)
			assert.Zero(t, client.CurrentDebt)
			txs, err := f.repo.ListClientTransactions(ctx, "cli-1", 0)
			require.NoError(t, err)
			assert.Empty(t, txs)
		})
	}
}

func TestTransferRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-main", 10)

	transfer := domain.Transfer{
		ID:          "trf-1",
		Kind:        domain.TransferRestock,
		FromStoreID: "st-main",
		ToStoreID:   "st-shop",
		Lines:       []domain.TransferLine{{ProductID: "prd-1", ProductName: "Tilapia", Quantity: 4}},
	}
	transferSale := &domain.TransferSale{ID: "tsl-1", PointOfSaleID: "pos-1", TotalAmount: 4000}

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		if err := u.Move(ctx, "st-main", "st-shop", "prd-1", 4, ledger.Movement{Kind: domain.StockTransfer}); err != nil {
			return err
		}
		_, err := u.ApplyTill(ctx, ledger.TillEntry{PointOfSaleID: "pos-1", Delta: domain.TillDelta{DebtToOwner: 4000}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, "st-main"))
	assert.Equal(t, 4, f.stock(t, "st-shop"))

	err = f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Revert(ctx, ledger.ReverseTransfer(transfer, transferSale))
	})
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, "st-main"))
	assert.Equal(t, 0, f.stock(t, "st-shop"))

	pos, err := f.repo.GetPointOfSale(context.Background(), "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.TotalDebtToOwner)
}

func TestMoveRejectsSameStore(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-main", 3)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.Move(ctx, "st-main", "st-main", "prd-1", 1, ledger.Movement{Kind: domain.StockTransfer})
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "st-shop", 10)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.ledger.Execute(context.Background(), "seller", func(ctx context.Context, u *ledger.Unit) error {
				return u.Decrement(ctx, "st-shop", "prd-1", 6, ledger.Movement{Kind: domain.StockSaleOut})
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 4, f.stock(t, "st-shop"))
}

func TestSetPurchasePriceUpdatesProduct(t *testing.T) {
	f := newFixture(t)

	err := f.run(t, func(ctx context.Context, u *ledger.Unit) error {
		return u.SetPurchasePrice(ctx, "prd-1", 900)
	})
	require.NoError(t, err)

	product, err := f.repo.GetProduct(context.Background(), "prd-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), product.PurchasePrice)
}

func TestReversePurchaseLineUnknownProduct(t *testing.T) {
	purchase := domain.Purchase{ID: "pur-1", Items: []domain.PurchaseItem{{ProductID: "prd-1", Quantity: 1, UnitPurchasePrice: 10}}}

	_, ok := ledger.ReversePurchaseLine(purchase, "prd-missing")
	assert.False(t, ok)

	intents, ok := ledger.ReversePurchaseLine(purchase, "prd-1")
	assert.True(t, ok)
	assert.Len(t, intents, 2)
}

func TestReverseExpenseSkipsPurchaseLinked(t *testing.T) {
	assert.Empty(t, ledger.ReverseExpense(domain.Expense{ID: "exp-1", Amount: 500, PurchaseID: "pur-1"}))
	assert.Len(t, ledger.ReverseExpense(domain.Expense{ID: "exp-2", Amount: 500, CashMovementID: "cmv-1"}), 1)
}
