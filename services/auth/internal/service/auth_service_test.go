package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/auth"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/services/auth/internal/domain"
)

const secret = "test-secret"

var fastParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type memoryUsers struct {
	mu    sync.Mutex
	byID  map[int64]*domain.User
	count int64
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[int64]*domain.User{}}
}

func (m *memoryUsers) Create(_ context.Context, req *domain.RegisterRequest, hash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == req.Email {
			return nil, domain.ErrEmailExists
		}
	}
	m.count++
	u := &domain.User{ID: m.count, Role: req.Role, Email: req.Email, PasswordHash: hash, Name: req.Name, Phone: req.Phone}
	m.byID[u.ID] = u
	return u, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func newService() (AuthService, *memoryUsers) {
	users := newMemoryUsers()
	return NewAuthService(users, config.AuthConfig{JWTSecret: secret, AccessTokenTTL: time.Hour}, fastParams), users
}

func TestRegisterThenLogin(t *testing.T) {
	svc, users := newService()

	reg, err := svc.Register(context.Background(), nil, &domain.RegisterRequest{
		Name: " Ana ", Email: " Ana@Example.com ", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", reg.Email)
	assert.Equal(t, auth.RoleUser, reg.Role)
	assert.NotEqual(t, "password123", users.byID[reg.UserID].PasswordHash)

	claims, err := auth.Parse(reg.Token, secret)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, claims.Sub)
	assert.Equal(t, "Ana", claims.Name)

	login, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "ANA@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, login.UserID)
}

func TestRegisterRejects(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, nil, &domain.RegisterRequest{Name: "Ana", Email: "not-an-email", Password: "password123"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Register(ctx, nil, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "short"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Register(ctx, nil, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, nil, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestRegisterAdminNeedsAdmin(t *testing.T) {
	svc, _ := newService()
	req := func() *domain.RegisterRequest {
		return &domain.RegisterRequest{Name: "Root", Email: "root@example.com", Password: "password123", Role: auth.RoleAdmin}
	}

	_, err := svc.Register(context.Background(), nil, req())
	assert.ErrorIs(t, err, appointment.ErrPermissionDenied)

	_, err = svc.Register(context.Background(), &auth.Claims{Sub: 7, Role: auth.RoleUser}, req())
	assert.ErrorIs(t, err, appointment.ErrPermissionDenied)

	res, err := svc.Register(context.Background(), &auth.Claims{Sub: 1, Role: auth.RoleAdmin}, req())
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, res.Role)
}

func TestLoginFailures(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Register(context.Background(), nil, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), &domain.LoginRequest{Email: "ben@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMe(t *testing.T) {
	svc, _ := newService()
	reg, err := svc.Register(context.Background(), nil, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	me, err := svc.Me(context.Background(), &auth.Claims{Sub: reg.UserID, Role: auth.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.Name)

	_, err = svc.Me(context.Background(), &auth.Claims{Sub: 404})
	assert.ErrorIs(t, err, appointment.ErrUnauthenticated)

	_, err = svc.Me(context.Background(), nil)
	assert.ErrorIs(t, err, appointment.ErrUnauthenticated)
}
