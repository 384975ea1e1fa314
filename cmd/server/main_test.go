package main

import (
	"testing"

	"stockcaisse/backend/internal/config"
	"stockcaisse/backend/internal/domain"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", PurchaseFundingMode: domain.FundingCashRegister})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsUnknownFunding(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", PurchaseFundingMode: "barter"})
	if err == nil {
		t.Fatalf("expected unknown funding mode to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", PurchaseFundingMode: domain.FundingSupplierCredit})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
