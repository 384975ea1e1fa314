package config

import (
	"testing"
	"time"

	"stockcaisse/backend/internal/domain"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("PURCHASE_FUNDING_MODE", "barter")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "-5")
	t.Setenv("TX_MAX_RETRIES", "many")

	cfg := Load()
	if cfg.PurchaseFundingMode != domain.FundingCashRegister {
		t.Fatalf("expected cash_register fallback, got %s", cfg.PurchaseFundingMode)
	}
	if cfg.IdempotencyTTL() != 24*time.Hour {
		t.Fatalf("expected 24h idempotency ttl, got %s", cfg.IdempotencyTTL())
	}
	if cfg.TxMaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.TxMaxRetries)
	}
}

func TestLoadReadsSupplierCreditFunding(t *testing.T) {
	t.Setenv("PURCHASE_FUNDING_MODE", "SUPPLIER_CREDIT")
	t.Setenv("PORT", "9090")

	cfg := Load()
	if cfg.PurchaseFundingMode != domain.FundingSupplierCredit {
		t.Fatalf("expected supplier_credit, got %s", cfg.PurchaseFundingMode)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
}
