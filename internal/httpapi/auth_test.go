package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcaisse/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func seededAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := seededAdminStore()

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	require.NoError(t, err)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.NotEqual(t, "admin123", users[0].Password, "password must be upgraded from plain-text")
	assert.Regexp(t, `^\$2`, users[0].Password)
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := seededAdminStore()

	manager := NewAuthManager("test-secret", time.Hour, store)
	staff, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "Magasin2",
		Password: "pass1234",
		Role:     domain.RoleStockManager,
	})
	require.NoError(t, err)
	assert.Equal(t, "magasin2", staff.Username)

	saved, ok := store.users["magasin2"]
	require.True(t, ok, "staff must be saved")
	assert.Regexp(t, `^\$2`, saved.Password)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "magasin2",
		Password: "pass1234",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStockManager, resp.Role)
}

func TestCreateStaffRejectsAdminRoleAndDuplicates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAdminStore())

	_, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "boss2",
		Password: "pass1234",
		Role:     domain.RoleAdmin,
	})
	assert.Error(t, err, "admin role must be refused")
	_, err = manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "admin",
		Password: "pass1234",
	})
	assert.Error(t, err, "duplicate username must be refused")

	seller, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "vendeur2",
		Password: "pass1234",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, seller.Role)
	assert.Len(t, manager.ListStaff(context.Background()), 2)
}

func TestParseTokenRoundTripsActor(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAdminStore())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", actor.Username)
	assert.Equal(t, domain.RoleAdmin, actor.Role)

	other := NewAuthManager("another-secret", time.Hour, nil)
	_, err = other.ParseToken(resp.AccessToken)
	assert.Error(t, err, "token signed with another secret must be rejected")
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := seededAdminStore()
	hash, err := hashPassword("pass1234")
	require.NoError(t, err)
	store.users["ancien"] = domain.UserAccount{Username: "ancien", Password: hash, Role: domain.RoleSeller, Active: false}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "ancien", Password: "pass1234"})
	assert.Error(t, err)
}
