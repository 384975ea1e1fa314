package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/store"
)

// Coordinator runs business operations as single atomic units against the
// Ledger Store.
type Coordinator struct {
	repo store.Repository
	now  func() time.Time
}

func NewCoordinator(repo store.Repository) *Coordinator {
	return &Coordinator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Execute stages every read and write fn performs on a fresh Unit, checks
// the final state of each touched aggregate and persists everything in
// one Atomic call. fn may run more than once if the store retries.
func (c *Coordinator) Execute(ctx context.Context, actor string, fn func(ctx context.Context, u *Unit) error) error {
	if actor == "" {
		actor = "system"
	}
	return c.repo.Atomic(ctx, func(tx store.Tx) error {
		u := newUnit(tx, actor, c.now())
		if err := fn(ctx, u); err != nil {
			return err
		}
		return u.flush(ctx)
	})
}

type lineKey struct {
	storeID   string
	productID string
}

type lineState struct {
	read int
	qty  int
}

type registerState struct {
	read domain.CashRegister
	cur  domain.CashRegister
}

type supplierState struct {
	read domain.Supplier
	cur  domain.Supplier
}

type clientState struct {
	read domain.Client
	cur  domain.Client
}

type tillState struct {
	read domain.PointOfSale
	cur  domain.PointOfSale
}

// Unit is the working set of one business operation. Aggregates are read
// with a lock on first touch; engine calls mutate the working copies and
// queue log rows; nothing reaches the store before flush.
type Unit struct {
	tx    store.Tx
	actor string
	now   time.Time

	products  map[string]*domain.Product
	stores    map[string]*domain.Store
	lines     map[lineKey]*lineState
	lineOrder []lineKey
	register  *registerState
	suppliers map[string]*supplierState
	clients   map[string]*clientState
	tills     map[string]*tillState
	prices    map[string]int64

	stockMoves []domain.StockMovement
	cashMoves  []domain.CashMovement
	clientTxs  []domain.ClientTransaction
}

func newUnit(tx store.Tx, actor string, now time.Time) *Unit {
	return &Unit{
		tx:        tx,
		actor:     actor,
		now:       now,
		products:  make(map[string]*domain.Product),
		stores:    make(map[string]*domain.Store),
		lines:     make(map[lineKey]*lineState),
		suppliers: make(map[string]*supplierState),
		clients:   make(map[string]*clientState),
		tills:     make(map[string]*tillState),
		prices:    make(map[string]int64),
	}
}

// Tx exposes the store transaction for document records (purchases, sales,
// payments) that are persisted alongside the unit's balance changes.
func (u *Unit) Tx() store.Tx { return u.tx }

func (u *Unit) Actor() string { return u.actor }

func (u *Unit) Now() time.Time { return u.now }

func (u *Unit) Product(ctx context.Context, id string) (domain.Product, error) {
	if p, ok := u.products[id]; ok {
		return *p, nil
	}
	p, err := u.tx.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, notFound(err, "product", id)
	}
	u.products[id] = p
	return *p, nil
}

func (u *Unit) Store(ctx context.Context, id string) (domain.Store, error) {
	if s, ok := u.stores[id]; ok {
		return *s, nil
	}
	s, err := u.tx.GetStoreForUpdate(ctx, id)
	if err != nil {
		return domain.Store{}, notFound(err, "store", id)
	}
	u.stores[id] = s
	return *s, nil
}

// Stock returns the working quantity of a line.
func (u *Unit) Stock(ctx context.Context, storeID string, productID string) (int, error) {
	line, err := u.line(ctx, storeID, productID)
	if err != nil {
		return 0, err
	}
	return line.qty, nil
}

func (u *Unit) Register(ctx context.Context) (domain.CashRegister, error) {
	reg, err := u.registerState(ctx)
	if err != nil {
		return domain.CashRegister{}, err
	}
	return reg.cur, nil
}

func (u *Unit) Supplier(ctx context.Context, id string) (domain.Supplier, error) {
	st, err := u.supplierState(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return st.cur, nil
}

func (u *Unit) Client(ctx context.Context, id string) (domain.Client, error) {
	st, err := u.clientState(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return st.cur, nil
}

func (u *Unit) PointOfSale(ctx context.Context, id string) (domain.PointOfSale, error) {
	st, err := u.tillState(ctx, id)
	if err != nil {
		return domain.PointOfSale{}, err
	}
	return st.cur, nil
}

func (u *Unit) line(ctx context.Context, storeID string, productID string) (*lineState, error) {
	key := lineKey{storeID: storeID, productID: productID}
	if line, ok := u.lines[key]; ok {
		return line, nil
	}
	if _, err := u.Store(ctx, storeID); err != nil {
		return nil, err
	}
	if _, err := u.Product(ctx, productID); err != nil {
		return nil, err
	}
	qty, err := u.tx.GetStockForUpdate(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	line := &lineState{read: qty, qty: qty}
	u.lines[key] = line
	u.lineOrder = append(u.lineOrder, key)
	return line, nil
}

func (u *Unit) registerState(ctx context.Context) (*registerState, error) {
	if u.register != nil {
		return u.register, nil
	}
	reg, err := u.tx.GetCashRegisterForUpdate(ctx)
	if err != nil {
		return nil, notFound(err, "cash register", domain.CashRegisterID)
	}
	u.register = &registerState{read: *reg, cur: *reg}
	return u.register, nil
}

func (u *Unit) supplierState(ctx context.Context, id string) (*supplierState, error) {
	if st, ok := u.suppliers[id]; ok {
		return st, nil
	}
	supplier, err := u.tx.GetSupplierForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "supplier", id)
	}
	st := &supplierState{read: *supplier, cur: *supplier}
	u.suppliers[id] = st
	return st, nil
}

func (u *Unit) clientState(ctx context.Context, id string) (*clientState, error) {
	if st, ok := u.clients[id]; ok {
		return st, nil
	}
	client, err := u.tx.GetClientForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "client", id)
	}
	st := &clientState{read: *client, cur: *client}
	u.clients[id] = st
	return st, nil
}

func (u *Unit) tillState(ctx context.Context, id string) (*tillState, error) {
	if st, ok := u.tills[id]; ok {
		return st, nil
	}
	pos, err := u.tx.GetPointOfSaleForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "point of sale", id)
	}
	st := &tillState{read: *pos, cur: *pos}
	u.tills[id] = st
	return st, nil
}

// flush checks the final state of every touched aggregate, then writes net
// deltas through the store's conditional updates and appends the queued
// log rows.
func (u *Unit) flush(ctx context.Context) error {
	for _, key := range u.lineOrder {
		line := u.lines[key]
		if line.qty < 0 {
			return u.insufficientStock(key.storeID, key.productID, line.read, line.read-line.qty)
		}
	}
	if u.register != nil && u.register.cur.CurrentBalance < 0 {
		return &store.InsufficientFundsError{
			Account:   "cash_register",
			Available: u.register.read.CurrentBalance,
			Requested: u.register.read.CurrentBalance - u.register.cur.CurrentBalance,
		}
	}
	if err := u.checkBalances(); err != nil {
		return err
	}

	for _, productID := range slices.Sorted(maps.Keys(u.prices)) {
		if err := u.tx.SetProductPurchasePrice(ctx, productID, u.prices[productID], u.now); err != nil {
			return err
		}
	}

	for _, key := range u.lineOrder {
		line := u.lines[key]
		delta := line.qty - line.read
		if delta == 0 {
			continue
		}
		if _, err := u.tx.AdjustStock(ctx, key.storeID, key.productID, delta); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return u.insufficientStock(key.storeID, key.productID, line.read, -delta)
			}
			return err
		}
	}

	if u.register != nil {
		delta := domain.RegisterDelta{
			Balance: u.register.cur.CurrentBalance - u.register.read.CurrentBalance,
			In:      u.register.cur.CumulativeIn - u.register.read.CumulativeIn,
			Out:     u.register.cur.CumulativeOut - u.register.read.CumulativeOut,
		}
		if !delta.IsZero() {
			if _, err := u.tx.AdjustCashRegister(ctx, delta, u.now); err != nil {
				return err
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(u.suppliers)) {
		st := u.suppliers[id]
		if delta := st.cur.Balance - st.read.Balance; delta != 0 {
			if err := u.tx.AdjustSupplierBalance(ctx, id, delta); err != nil {
				return err
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(u.clients)) {
		st := u.clients[id]
		if delta := st.cur.CurrentDebt - st.read.CurrentDebt; delta != 0 {
			if err := u.tx.AdjustClientDebt(ctx, id, delta, u.now); err != nil {
				return err
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(u.tills)) {
		st := u.tills[id]
		delta := domain.TillDelta{
			Solde:       st.cur.Solde - st.read.Solde,
			DebtToOwner: st.cur.TotalDebtToOwner - st.read.TotalDebtToOwner,
			Impayer:     st.cur.Impayer - st.read.Impayer,
		}
		if !delta.IsZero() {
			if err := u.tx.AdjustPointOfSale(ctx, id, delta); err != nil {
				return err
			}
		}
	}

	for _, movement := range u.stockMoves {
		if err := u.tx.AppendStockMovement(ctx, movement); err != nil {
			return err
		}
	}
	for _, movement := range u.cashMoves {
		if err := u.tx.AppendCashMovement(ctx, movement); err != nil {
			return err
		}
	}
	for _, entry := range u.clientTxs {
		if err := u.tx.AppendClientTransaction(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// checkBalances rejects a unit that leaves a supplier balance, a client
// debt or a till counter below zero. Reversals skip the per-step guards, so
// a sale whose debt was already repaid, or whose cash already went to the
// owner, is caught here.
func (u *Unit) checkBalances() error {
	for _, id := range slices.Sorted(maps.Keys(u.suppliers)) {
		st := u.suppliers[id]
		if st.cur.Balance < 0 {
			return store.Invalid("supplier_balance", fmt.Sprintf("supplier %s would be owed %d; payments already settled this amount", id, st.cur.Balance))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(u.clients)) {
		st := u.clients[id]
		if st.cur.CurrentDebt < 0 {
			return store.Invalid("client_debt", fmt.Sprintf("debt of client %s would fall to %d; repayments already cover this sale", id, st.cur.CurrentDebt))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(u.tills)) {
		st := u.tills[id]
		if st.cur.Solde < 0 {
			return &store.InsufficientFundsError{
				Account:   "till:" + id,
				Available: st.read.Solde,
				Requested: st.read.Solde - st.cur.Solde,
			}
		}
		if st.cur.Impayer < 0 {
			return store.Invalid("impayer", fmt.Sprintf("outstanding credit of %s would fall to %d", id, st.cur.Impayer))
		}
		if st.cur.TotalDebtToOwner < 0 {
			return store.Invalid("total_debt_to_owner", fmt.Sprintf("debt to owner of %s would fall to %d", id, st.cur.TotalDebtToOwner))
		}
	}
	return nil
}

func (u *Unit) insufficientStock(storeID string, productID string, available int, requested int) error {
	name := ""
	if p, ok := u.products[productID]; ok {
		name = p.Name
	}
	return &store.InsufficientStockError{
		StoreID:     storeID,
		ProductID:   productID,
		ProductName: name,
		Available:   available,
		Requested:   requested,
	}
}

// notFound gives bare ErrNotFound results a kind and id.
func notFound(err error, kind string, id string) error {
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return &store.NotFoundError{Kind: kind, ID: id}
	}
	return err
}
