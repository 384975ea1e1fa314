package service

import (
	"context"
	"fmt"
	"strings"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

func (s *Service) GetCashRegister(ctx context.Context) (domain.CashRegister, error) {
	reg, err := s.repo.GetCashRegister(ctx)
	if err != nil {
		return domain.CashRegister{}, err
	}
	return *reg, nil
}

func (s *Service) ListCashMovements(ctx context.Context, filter domain.CashMovementFilter) ([]domain.CashMovement, error) {
	if filter.Direction != "" && filter.Direction != domain.CashIn && filter.Direction != domain.CashOut {
		return nil, store.Invalid("direction", "must be IN or OUT")
	}
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	return s.repo.ListCashMovements(ctx, filter)
}

func (s *Service) ListStockMovements(ctx context.Context, storeID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, storeID, limit)
}

func (s *Service) Deposit(ctx context.Context, req domain.CashOperationRequest) (domain.CashMovement, error) {
	return s.registerOperation(ctx, "deposit", domain.CashIn, domain.CashCategoryDeposit, req)
}

func (s *Service) Withdraw(ctx context.Context, req domain.CashOperationRequest) (domain.CashMovement, error) {
	return s.registerOperation(ctx, "withdrawal", domain.CashOut, domain.CashCategoryWithdrawal, req)
}

func (s *Service) registerOperation(ctx context.Context, action string, direction domain.CashDirection, category domain.CashCategory, req domain.CashOperationRequest) (domain.CashMovement, error) {
	if req.Amount <= 0 {
		return domain.CashMovement{}, store.Invalid("amount", "must be positive")
	}
	description := defaultString(req.Description, action)

	var movement domain.CashMovement
	id, replayed, err := s.once(ctx, action, req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			m, err := u.ApplyCash(ctx, ledger.CashEntry{
				Direction:   direction,
				Amount:      req.Amount,
				Category:    category,
				Description: description,
			})
			movement = m
			return err
		})
		return movement.ID, err
	})
	if err != nil {
		return domain.CashMovement{}, err
	}
	if replayed {
		return s.getCashMovement(ctx, id)
	}

	s.logAudit(ctx, "cash_"+action, "cash_register", domain.CashRegisterID, fmt.Sprintf("amount=%d,balance_after=%d", movement.Amount, movement.BalanceAfter))
	return movement, nil
}

// PaySupplier settles part of what the owner owes a supplier from the
// register. Both sides are guarded.
func (s *Service) PaySupplier(ctx context.Context, supplierID string, req domain.SupplierPaymentRequest) (domain.CashMovement, error) {
	if req.Amount <= 0 {
		return domain.CashMovement{}, store.Invalid("amount", "must be positive")
	}

	var movement domain.CashMovement
	id, replayed, err := s.once(ctx, "supplier_payment", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			supplier, err := u.Supplier(ctx, supplierID)
			if err != nil {
				return err
			}
			if req.Amount > supplier.Balance {
				return store.Invalid("amount", fmt.Sprintf("exceeds the %d owed to %s", supplier.Balance, supplier.Name))
			}
			if _, err := u.ApplySupplier(ctx, supplierID, -req.Amount); err != nil {
				return err
			}
			m, err := u.ApplyCash(ctx, ledger.CashEntry{
				Direction:   domain.CashOut,
				Amount:      req.Amount,
				Category:    domain.CashCategorySupplierPayment,
				Description: defaultString(req.Description, "payment to "+supplier.Name),
				Refs:        domain.CashRefs{SupplierID: supplierID},
			})
			movement = m
			return err
		})
		return movement.ID, err
	})
	if err != nil {
		return domain.CashMovement{}, err
	}
	if replayed {
		return s.getCashMovement(ctx, id)
	}

	s.logAudit(ctx, "supplier_payment", "supplier", supplierID, fmt.Sprintf("amount=%d", req.Amount))
	return movement, nil
}

// AdjustSupplierBalance corrects a supplier balance by hand. It touches no
// cash.
func (s *Service) AdjustSupplierBalance(ctx context.Context, supplierID string, req domain.SupplierAdjustmentRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx, "delta"); err != nil {
		return domain.Supplier{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Delta == 0 {
		return domain.Supplier{}, store.Invalid("delta", "must not be zero")
	}
	if req.Reason == "" {
		return domain.Supplier{}, store.Invalid("reason", "is required")
	}

	var updated domain.Supplier
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		supplier, err := u.Supplier(ctx, supplierID)
		if err != nil {
			return err
		}
		if supplier.Balance+req.Delta < 0 {
			return store.Invalid("delta", fmt.Sprintf("would take the balance of %d below zero", supplier.Balance))
		}
		updated, err = u.ApplySupplier(ctx, supplierID, req.Delta)
		return err
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_adjust", "supplier", supplierID, fmt.Sprintf("delta=%d,balance=%d,reason=%s", req.Delta, updated.Balance, req.Reason))
	return updated, nil
}

func (s *Service) CreateOwnerPayment(ctx context.Context, req domain.OwnerPaymentRequest) (domain.OwnerPayment, error) {
	draft, err := ownerPaymentDraft(ctx, req)
	if err != nil {
		return domain.OwnerPayment{}, err
	}

	var created domain.OwnerPayment
	id, replayed, err := s.once(ctx, "owner_payment", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			p := draft
			p.ID = xid.New("opay")
			p.CreatedAt = u.Now()
			p.UpdatedAt = u.Now()
			if p.PaidAt.IsZero() {
				p.PaidAt = u.Now()
			}
			if err := applyOwnerPayment(ctx, u, &p); err != nil {
				return err
			}
			if err := u.Tx().SaveOwnerPayment(ctx, p); err != nil {
				return err
			}
			created = p
			return nil
		})
		return created.ID, err
	})
	if err != nil {
		return domain.OwnerPayment{}, err
	}
	if replayed {
		return s.GetOwnerPayment(ctx, id)
	}

	s.logAudit(ctx, "owner_payment_create", "owner_payment", created.ID, fmt.Sprintf("pos=%s,amount=%d,method=%s", created.PointOfSaleID, created.Amount, created.Method))
	return created, nil
}

func (s *Service) UpdateOwnerPayment(ctx context.Context, paymentID string, req domain.OwnerPaymentRequest) (domain.OwnerPayment, error) {
	draft, err := ownerPaymentDraft(ctx, req)
	if err != nil {
		return domain.OwnerPayment{}, err
	}

	var updated domain.OwnerPayment
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetOwnerPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseOwnerPayment(*existing)); err != nil {
			return err
		}
		p := draft
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = u.Now()
		if p.PaidAt.IsZero() {
			p.PaidAt = existing.PaidAt
		}
		if err := applyOwnerPayment(ctx, u, &p); err != nil {
			return err
		}
		if err := u.Tx().SaveOwnerPayment(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return domain.OwnerPayment{}, err
	}

	s.logAudit(ctx, "owner_payment_update", "owner_payment", updated.ID, fmt.Sprintf("amount=%d,method=%s", updated.Amount, updated.Method))
	return updated, nil
}

func (s *Service) DeleteOwnerPayment(ctx context.Context, paymentID string) error {
	var deleted domain.OwnerPayment
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetOwnerPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseOwnerPayment(*existing)); err != nil {
			return err
		}
		deleted = *existing
		return u.Tx().DeleteOwnerPayment(ctx, existing.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "owner_payment_delete", "owner_payment", deleted.ID, fmt.Sprintf("amount=%d", deleted.Amount))
	return nil
}

func (s *Service) GetOwnerPayment(ctx context.Context, paymentID string) (domain.OwnerPayment, error) {
	p, err := s.repo.GetOwnerPayment(ctx, paymentID)
	if err != nil {
		return domain.OwnerPayment{}, err
	}
	return *p, nil
}

func (s *Service) ListOwnerPayments(ctx context.Context, pointOfSaleID string, limit int) ([]domain.OwnerPayment, error) {
	return s.repo.ListOwnerPayments(ctx, pointOfSaleID, limit)
}

func ownerPaymentDraft(ctx context.Context, req domain.OwnerPaymentRequest) (domain.OwnerPayment, error) {
	req.PointOfSaleID = strings.TrimSpace(req.PointOfSaleID)
	if req.PointOfSaleID == "" {
		return domain.OwnerPayment{}, store.Invalid("point_of_sale_id", "is required")
	}
	if req.Amount <= 0 {
		return domain.OwnerPayment{}, store.Invalid("amount", "must be positive")
	}
	if req.Method == "" {
		req.Method = domain.PaymentCash
	}
	if !req.Method.Valid() {
		return domain.OwnerPayment{}, store.Invalid("method", "must be cash, cheque, bank_transfer or mobile_money")
	}

	p := domain.OwnerPayment{
		PointOfSaleID: req.PointOfSaleID,
		Amount:        req.Amount,
		Method:        req.Method,
		ReceivedBy:    defaultString(req.ReceivedBy, actorName(ctx)),
		Note:          strings.TrimSpace(req.Note),
	}
	if req.PaidAt != nil {
		p.PaidAt = req.PaidAt.UTC()
	}
	return p, nil
}

// applyOwnerPayment takes the amount out of the till's solde, refusing if
// the till cannot cover it, and books it into the register.
func applyOwnerPayment(ctx context.Context, u *ledger.Unit, p *domain.OwnerPayment) error {
	pos, err := u.ApplyTill(ctx, ledger.TillEntry{
		PointOfSaleID: p.PointOfSaleID,
		Delta:         domain.TillDelta{Solde: -p.Amount},
		RequireSolde:  true,
	})
	if err != nil {
		return err
	}
	movement, err := u.ApplyCash(ctx, ledger.CashEntry{
		Direction:   domain.CashIn,
		Amount:      p.Amount,
		Category:    domain.CashCategoryBranchRemittance,
		Description: fmt.Sprintf("remittance REF %s from %s (%s)", xid.Short(p.ID), pos.Name, p.Method),
		Refs:        domain.CashRefs{PointOfSaleID: p.PointOfSaleID, OwnerPaymentID: p.ID},
	})
	if err != nil {
		return err
	}
	p.CashMovementID = movement.ID
	return nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	req, err := normalizeExpense(req)
	if err != nil {
		return domain.Expense{}, err
	}

	var created domain.Expense
	id, replayed, err := s.once(ctx, "expense", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			category, err := u.Tx().GetExpenseCategory(ctx, req.CategoryID)
			if err != nil {
				return err
			}
			expense := domain.Expense{
				ID:         xid.New("exp"),
				Label:      req.Label,
				Amount:     req.Amount,
				CategoryID: category.ID,
				Note:       strings.TrimSpace(req.Note),
				Actor:      u.Actor(),
				Date:       timeOr(req.Date, u.Now()),
				CreatedAt:  u.Now(),
			}
			movement, err := u.ApplyCash(ctx, ledger.CashEntry{
				Direction:   domain.CashOut,
				Amount:      expense.Amount,
				Category:    domain.CashCategoryExpense,
				Description: fmt.Sprintf("expense %q (%s)", expense.Label, category.Name),
				Refs:        domain.CashRefs{ExpenseID: expense.ID},
			})
			if err != nil {
				return err
			}
			expense.CashMovementID = movement.ID
			if err := u.Tx().SaveExpense(ctx, expense); err != nil {
				return err
			}
			created = expense
			return nil
		})
		return created.ID, err
	})
	if err != nil {
		return domain.Expense{}, err
	}
	if replayed {
		return s.GetExpense(ctx, id)
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("label=%s,amount=%d,category=%s", created.Label, created.Amount, created.CategoryID))
	return created, nil
}

// UpdateExpense refunds the recorded amount and pays the edited one in the
// same unit, so the register only has to cover the difference.
func (s *Service) UpdateExpense(ctx context.Context, expenseID string, req domain.ExpenseRequest) (domain.Expense, error) {
	req, err := normalizeExpense(req)
	if err != nil {
		return domain.Expense{}, err
	}

	var updated domain.Expense
	err = s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if existing.PurchaseID != "" {
			return store.Invalid("expense_id", "belongs to purchase "+existing.PurchaseID+"; edit the purchase instead")
		}
		category, err := u.Tx().GetExpenseCategory(ctx, req.CategoryID)
		if err != nil {
			return err
		}
		if err := u.Revert(ctx, ledger.ReverseExpense(*existing)); err != nil {
			return err
		}

		expense := *existing
		expense.Label = req.Label
		expense.Amount = req.Amount
		expense.CategoryID = category.ID
		expense.Note = strings.TrimSpace(req.Note)
		expense.Date = timeOr(req.Date, existing.Date)
		movement, err := u.ApplyCash(ctx, ledger.CashEntry{
			Direction:   domain.CashOut,
			Amount:      expense.Amount,
			Category:    domain.CashCategoryExpense,
			Description: fmt.Sprintf("expense %q (%s) revised", expense.Label, category.Name),
			Refs:        domain.CashRefs{ExpenseID: expense.ID},
		})
		if err != nil {
			return err
		}
		expense.CashMovementID = movement.ID
		if err := u.Tx().SaveExpense(ctx, expense); err != nil {
			return err
		}
		updated = expense
		return nil
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_update", "expense", updated.ID, fmt.Sprintf("label=%s,amount=%d,category=%s", updated.Label, updated.Amount, updated.CategoryID))
	return updated, nil
}

// DeleteExpense refunds a register-paid expense. Expenses that mirror a
// purchase are removed with the purchase instead.
func (s *Service) DeleteExpense(ctx context.Context, expenseID string) error {
	err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
		existing, err := u.Tx().GetExpenseForUpdate(ctx, expenseID)
		if err != nil {
			return err
		}
		if existing.PurchaseID != "" {
			return store.Invalid("expense_id", "belongs to purchase "+existing.PurchaseID+"; delete the purchase instead")
		}
		if err := u.Revert(ctx, ledger.ReverseExpense(*existing)); err != nil {
			return err
		}
		return u.Tx().DeleteExpense(ctx, existing.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "expense_delete", "expense", expenseID, "")
	return nil
}

func (s *Service) GetExpense(ctx context.Context, expenseID string) (domain.Expense, error) {
	e, err := s.repo.GetExpense(ctx, expenseID)
	if err != nil {
		return domain.Expense{}, err
	}
	return *e, nil
}

func (s *Service) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, limit)
}

func (s *Service) getCashMovement(ctx context.Context, id string) (domain.CashMovement, error) {
	m, err := s.repo.GetCashMovement(ctx, id)
	if err != nil {
		return domain.CashMovement{}, err
	}
	return *m, nil
}

func normalizeExpense(req domain.ExpenseRequest) (domain.ExpenseRequest, error) {
	req.Label = strings.TrimSpace(req.Label)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	switch {
	case req.Label == "":
		return req, store.Invalid("label", "is required")
	case req.Amount <= 0:
		return req, store.Invalid("amount", "must be positive")
	case req.CategoryID == "":
		return req, store.Invalid("category_id", "is required")
	}
	return req, nil
}
