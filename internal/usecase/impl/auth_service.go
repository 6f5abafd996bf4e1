package impl

import (
	"context"
	"log/slog"
	"sync"

	deliverycontext "accounts/internal/delivery/context"
	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/domain/service"
	"accounts/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const (
	tokenTypeBearer = "Bearer"
	// dummyPassword is hashed once and compared against when the login email is unknown.
	dummyPassword = "accounts-login-timing-equalizer"
)

// authService implements the AuthUsecase interface.
type authService struct {
	accounts     usecase.AccountUsecase
	userRepo     repository.UserRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	logger       *slog.Logger

	dummyHashOnce sync.Once
	dummyHash     string
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	Accounts     usecase.AccountUsecase
	UserRepo     repository.UserRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		accounts:     params.Accounts,
		userRepo:     params.UserRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		logger:       params.Logger,
	}
}

func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates a new account. Errors from account creation propagate unchanged.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*entity.User, error) {
	return srv.accounts.Create(ctx, input)
}

// Login verifies credentials and issues an access token.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	email := entity.NormalizeEmail(input.Email)

	user, err := srv.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(err, "failed to find user for login")
		}

		// Spend the same bcrypt work as a real comparison so the response
		// does not reveal whether the email is registered.
		srv.hasher.Check(input.Password, srv.timingDigest())
		srv.log(ctx).Warn("Login failed", slog.String("reason", "unknown email"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	if !srv.hasher.Check(input.Password, user.PasswordHash) {
		srv.log(ctx).Warn("Login failed", slog.String("reason", "password mismatch"), slog.Any("userID", user.ID))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	accessToken, err := srv.tokenService.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		srv.log(ctx).Error("Failed to generate access token", slog.Any("userID", user.ID), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrInternalError, err.Error())
	}

	srv.log(ctx).Info("User logged in", slog.Any("userID", user.ID))

	return &usecase.LoginOutput{
		AccessToken: accessToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   srv.tokenService.AccessTokenTTL(),
		User: usecase.AuthenticatedUser{
			ID:    user.ID,
			Email: user.Email,
		},
	}, nil
}

// ChangePassword replaces the user's password after verifying the old one.
func (srv *authService) ChangePassword(ctx context.Context, userID uuid.UUID, input *usecase.ChangePasswordInput) error {
	user, err := srv.accounts.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !srv.hasher.Check(input.OldPassword, user.PasswordHash) {
		srv.log(ctx).Warn("Password change rejected", slog.Any("userID", userID))

		return errors.Wrap(domainerrors.ErrInvalidCredentials, "old password does not match")
	}

	newPassword := input.NewPassword
	if _, err := srv.accounts.Update(ctx, userID, entity.UserPatch{Password: &newPassword}); err != nil {
		return errors.Wrap(err, "failed to persist new password")
	}

	srv.log(ctx).Info("Password changed", slog.Any("userID", userID))

	return nil
}

func (srv *authService) timingDigest() string {
	srv.dummyHashOnce.Do(func() {
		digest, err := srv.hasher.Hash(dummyPassword)
		if err != nil {
			srv.logger.Error("Failed to prepare login timing digest", slog.Any("error", err))

			return
		}
		srv.dummyHash = digest
	})

	return srv.dummyHash
}
