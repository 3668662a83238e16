package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/auth"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/services/auth/internal/domain"
	"github.com/diagnosis/solaris-scheduler/services/auth/internal/repository"
)

type AuthService interface {
	// Register creates an account and signs the caller in. Only an admin
	// caller may create another admin.
	Register(ctx context.Context, caller *auth.Claims, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	Me(ctx context.Context, caller *auth.Claims) (*domain.UserInfo, error)
}

type authService struct {
	userRepo repository.UserRepository
	config   config.AuthConfig
	params   *argon2id.Params
}

// NewAuthService hashes with argon2id.DefaultParams when params is nil.
func NewAuthService(userRepo repository.UserRepository, cfg config.AuthConfig, params *argon2id.Params) AuthService {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &authService{userRepo: userRepo, config: cfg, params: params}
}

func (s *authService) Register(ctx context.Context, caller *auth.Claims, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Role == auth.RoleAdmin && !caller.IsAdmin() {
		return nil, appointment.ErrPermissionDenied
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailExists
	}

	passwordHash, err := argon2id.CreateHash(req.Password, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "User registered", "user_id", user.ID, "role", user.Role)

	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		logger.WarnContext(ctx, "Login rejected", "user_id", user.ID)
		return nil, domain.ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *authService) Me(ctx context.Context, caller *auth.Claims) (*domain.UserInfo, error) {
	if caller == nil {
		return nil, appointment.ErrUnauthenticated
	}
	user, err := s.userRepo.FindByID(ctx, caller.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	// The token outlived its account.
	if user == nil {
		return nil, appointment.ErrUnauthenticated
	}
	return user.ToUserInfo(), nil
}

func (s *authService) issue(user *domain.User) (*domain.AuthResponse, error) {
	token, err := auth.NewAccessToken(user.ID, user.Email, user.Name, user.Role, s.config.JWTSecret, s.config.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return &domain.AuthResponse{
		Token:  token,
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	}, nil
}
