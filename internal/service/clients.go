package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, store.Invalid("name", "is required")
	}
	if req.CreditLimit < 0 {
		return domain.Client{}, store.Invalid("credit_limit", "must not be negative")
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateClient(ctx, domain.Client{
		ID:          xid.New("cli"),
		Name:        req.Name,
		Phone:       strings.TrimSpace(req.Phone),
		CreditLimit: req.CreditLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_create", "client", created.ID, fmt.Sprintf("name=%s,limit=%d", created.Name, created.CreditLimit))
	return *created, nil
}

// UpdateClient edits the profile, limit and restriction. Lowering the limit
// below the current debt is allowed; it only blocks further credit.
func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	updated := *existing
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.CreditLimit != nil {
		if *req.CreditLimit < 0 {
			return domain.Client{}, store.Invalid("credit_limit", "must not be negative")
		}
		updated.CreditLimit = *req.CreditLimit
	}
	if req.IsRestricted != nil {
		updated.IsRestricted = *req.IsRestricted
		if !updated.IsRestricted {
			updated.RestrictionReason = ""
		}
	}
	if req.RestrictionReason != nil && updated.IsRestricted {
		updated.RestrictionReason = strings.TrimSpace(*req.RestrictionReason)
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateClientProfile(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_update", "client", saved.ID, fmt.Sprintf("limit=%d,restricted=%t", saved.CreditLimit, saved.IsRestricted))
	return *saved, nil
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "client_delete", "client", id, "")
	return nil
}

func (s *Service) ListClientTransactions(ctx context.Context, clientID string, limit int) ([]domain.ClientTransaction, error) {
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListClientTransactions(ctx, clientID, limit)
}

// RecordClientRepayment lowers a client's debt. When the money is taken at
// a point of sale it also lands in that till's solde and clears the same
// amount of its impayer, never below zero.
func (s *Service) RecordClientRepayment(ctx context.Context, clientID string, req domain.ClientRepaymentRequest) (domain.ClientRepaymentResponse, error) {
	if req.Amount <= 0 {
		return domain.ClientRepaymentResponse{}, store.Invalid("amount", "must be positive")
	}
	req.PointOfSaleID = strings.TrimSpace(req.PointOfSaleID)

	var resp domain.ClientRepaymentResponse
	id, replayed, err := s.once(ctx, "client_repayment", req.IdempotencyKey, func() (string, error) {
		err := s.ledger.Execute(ctx, actorName(ctx), func(ctx context.Context, u *ledger.Unit) error {
			entry, err := u.ApplyClientDebt(ctx, ledger.DebtEntry{
				ClientID:      clientID,
				Type:          domain.ClientRepayment,
				Amount:        req.Amount,
				Description:   defaultString(req.Description, "repayment"),
				PointOfSaleID: req.PointOfSaleID,
			})
			if err != nil {
				return err
			}
			if req.PointOfSaleID != "" {
				pos, err := u.PointOfSale(ctx, req.PointOfSaleID)
				if err != nil {
					return err
				}
				if _, err := u.ApplyTill(ctx, ledger.TillEntry{
					PointOfSaleID: req.PointOfSaleID,
					Delta:         domain.TillDelta{Solde: req.Amount, Impayer: -min(req.Amount, pos.Impayer)},
				}); err != nil {
					return err
				}
			}
			client, err := u.Client(ctx, clientID)
			if err != nil {
				return err
			}
			resp = domain.ClientRepaymentResponse{Client: client, Transaction: entry}
			return nil
		})
		return resp.Transaction.ID, err
	})
	if err != nil {
		return domain.ClientRepaymentResponse{}, err
	}
	if replayed {
		return s.replayRepayment(ctx, clientID, id)
	}

	s.logAudit(ctx, "client_repayment", "client", clientID, fmt.Sprintf("amount=%d,debt_after=%d,pos=%s", req.Amount, resp.Client.CurrentDebt, req.PointOfSaleID))
	return resp, nil
}

func (s *Service) replayRepayment(ctx context.Context, clientID string, txID string) (domain.ClientRepaymentResponse, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.ClientRepaymentResponse{}, err
	}
	entries, err := s.repo.ListClientTransactions(ctx, clientID, 0)
	if err != nil {
		return domain.ClientRepaymentResponse{}, err
	}
	for _, entry := range entries {
		if entry.ID == txID {
			return domain.ClientRepaymentResponse{Client: *client, Transaction: entry}, nil
		}
	}
	return domain.ClientRepaymentResponse{}, &store.NotFoundError{Kind: "client transaction", ID: txID}
}
