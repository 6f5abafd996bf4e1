// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"time"

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

// accountService implements the AccountUsecase interface.
type accountService struct {
	txManager repository.TransactionManager
	userRepo  repository.UserRepository
	hasher    service.PasswordHasher
	publisher service.EventPublisher
	logger    *slog.Logger
}

// AccountServiceParams holds dependencies for AccountService, injected by Fx.
type AccountServiceParams struct {
	fx.In

	TxManager repository.TransactionManager
	UserRepo  repository.UserRepository
	Hasher    service.PasswordHasher
	Publisher service.EventPublisher `optional:"true"`
	Logger    *slog.Logger
}

// NewAccountService is the constructor for accountService. It receives all dependencies as interfaces.
func NewAccountService(params AccountServiceParams) usecase.AccountUsecase {
	return &accountService{
		txManager: params.TxManager,
		userRepo:  params.UserRepo,
		hasher:    params.Hasher,
		publisher: params.Publisher,
		logger:    params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *accountService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// ListAll returns every live user.
func (srv *accountService) ListAll(ctx context.Context) ([]*entity.User, error) {
	users, err := srv.userRepo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}

	return users, nil
}

// GetByID returns the live user with the given ID.
func (srv *accountService) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapUserLookupError(err)
	}

	return user, nil
}

// Create registers a new user record.
//
// The email lookup before hashing is advisory and only spares a bcrypt round
// for obvious duplicates. The lookup inside the transaction together with the
// store's unique index is what keeps two concurrent creations from both succeeding.
func (srv *accountService) Create(ctx context.Context, input *usecase.CreateUserInput) (*entity.User, error) {
	email := entity.NormalizeEmail(input.Email)
	srv.log(ctx).Info("Creating user", slog.String("email", email))

	if err := ensureEmailAvailable(ctx, srv.userRepo, email, uuid.Nil); err != nil {
		srv.log(ctx).Warn("User creation rejected", slog.String("email", email), slog.Any("error", err))

		return nil, err
	}

	hashedPassword, err := srv.hashPassword(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate user id")
	}

	newUser := &entity.User{
		ID:           id,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        email,
		PasswordHash: hashedPassword,
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := ensureEmailAvailable(ctx, userRepo, email, uuid.Nil); err != nil {
			return err
		}

		if err := userRepo.Create(ctx, newUser); err != nil {
			return errors.Wrap(err, "failed to create user")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to execute user creation transaction", slog.String("email", email), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute user creation transaction")
	}

	srv.log(ctx).Debug("User created", slog.Any("userID", newUser.ID))
	srv.publish(ctx, service.EventUserCreated, newUser)

	return newUser, nil
}

// Update applies a partial update to a user.
func (srv *accountService) Update(ctx context.Context, id uuid.UUID, patch entity.UserPatch) (*entity.User, error) {
	if patch.IsEmpty() {
		return srv.GetByID(ctx, id)
	}

	srv.log(ctx).Info("Updating user", slog.Any("userID", id))

	var hashedPassword string
	if patch.Password != nil {
		var err error
		if hashedPassword, err = srv.hashPassword(ctx, *patch.Password); err != nil {
			return nil, err
		}
	}

	var updated *entity.User
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		// Lock the row so that a concurrent delete waits for us or wins outright.
		user, err := userRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapUserLookupError(err)
		}

		if patch.Email != nil {
			if err := ensureEmailAvailable(ctx, userRepo, entity.NormalizeEmail(*patch.Email), user.ID); err != nil {
				return err
			}
		}

		patch.Apply(user)
		if patch.Password != nil {
			user.PasswordHash = hashedPassword
		}

		if err := userRepo.Update(ctx, user); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrUserNotFound.WrapMessage("user disappeared during update")
			}

			return errors.Wrap(err, "failed to update user")
		}

		updated = user

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to execute user update transaction", slog.Any("userID", id), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute user update transaction")
	}

	srv.publish(ctx, updateEventType(patch), updated)

	return updated, nil
}

// Delete removes the user and returns the record as it was right before removal.
func (srv *accountService) Delete(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	srv.log(ctx).Info("Deleting user", slog.Any("userID", id))

	var deleted *entity.User
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapUserLookupError(err)
		}

		if err := userRepo.Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domainerrors.ErrUserNotFound.WrapMessage("user disappeared during delete")
			}

			return errors.Wrap(err, "failed to delete user")
		}

		deleted = user

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute user deletion transaction")
	}

	srv.publish(ctx, service.EventUserDeleted, deleted)

	return deleted, nil
}

func (srv *accountService) hashPassword(ctx context.Context, password string) (string, error) {
	hashed, err := srv.hasher.Hash(password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password", slog.Any("error", err))

		return "", errors.Wrap(domainerrors.ErrPasswordHashFailed, err.Error())
	}

	return hashed, nil
}

// publish emits an account event after commit. Failures are logged only:
// the mutation already happened and must not be reported as failed.
func (srv *accountService) publish(ctx context.Context, eventType string, user *entity.User) {
	if srv.publisher == nil || user == nil {
		return
	}

	event := &service.AccountEvent{
		RequestID:  deliverycontext.GetRequestIDFromContext(ctx),
		EventID:    uuid.NewString(),
		Type:       eventType,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	}

	if err := srv.publisher.PublishAccountEvent(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish account event",
			slog.String("type", eventType),
			slog.Any("userID", user.ID),
			slog.Any("error", err),
		)
	}
}

// ensureEmailAvailable fails with ErrUserAlreadyExists when a live user other
// than ownerID holds the email. Pass uuid.Nil when there is no owner yet.
func ensureEmailAvailable(ctx context.Context, userRepo repository.UserRepository, email string, ownerID uuid.UUID) error {
	existing, err := userRepo.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to check email availability")
	}
	if existing.ID == ownerID {
		return nil
	}

	return domainerrors.ErrUserAlreadyExists.WrapMessage("email already in use by another user")
}

func mapUserLookupError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return domainerrors.ErrUserNotFound.WrapMessage("user not found")
	}

	return errors.Wrap(err, "failed to find user")
}

func updateEventType(patch entity.UserPatch) string {
	if patch.Password != nil && patch.FirstName == nil && patch.LastName == nil && patch.Email == nil {
		return service.EventUserPasswordChanged
	}

	return service.EventUserUpdated
}
