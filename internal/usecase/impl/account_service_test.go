package impl

import (
	"context"
	"sync"
	"testing"

	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/service"
	"accounts/internal/errors"
	"accounts/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.mustCreate(t, "ada@example.com", "Abcdefg1")
	second := env.mustCreate(t, "grace@example.com", "Abcdefg1")

	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uuid.Version(7), first.ID.Version())
	assert.NotEqual(t, "Abcdefg1", first.PasswordHash)
	assert.True(t, env.hasher.Check("Abcdefg1", first.PasswordHash))

	stored, err := env.accounts.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", stored.Email)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)

	assert.Equal(t, []string{service.EventUserCreated, service.EventUserCreated}, env.publisher.types())
}

func TestAccountService_Create_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	user := env.mustCreate(t, "  Ada@Example.COM ", "Abcdefg1")
	assert.Equal(t, "ada@example.com", user.Email)

	_, err := env.accounts.Create(context.Background(), &usecase.CreateUserInput{
		FirstName: "Other",
		LastName:  "Person",
		Email:     "ADA@example.com",
		Password:  "Abcdefg1",
	})
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))
}

func TestAccountService_Create_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	env.mustCreate(t, "a@x.com", "Abcdefg1")

	_, err := env.accounts.Create(context.Background(), &usecase.CreateUserInput{
		FirstName: "B",
		LastName:  "B",
		Email:     "a@x.com",
		Password:  "Different1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))
	assert.Equal(t, 1, env.store.count())
	assert.Len(t, env.publisher.types(), 1)
}

func TestAccountService_Create_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.accounts.Create(context.Background(), &usecase.CreateUserInput{
				FirstName: "Race",
				LastName:  "Condition",
				Email:     "race@example.com",
				Password:  "Abcdefg1",
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domainerrors.ErrUserAlreadyExists):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, env.store.count())
}

func TestAccountService_GetByID_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.accounts.GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
}

func TestAccountService_ListAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	users, err := env.accounts.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	env.mustCreate(t, "one@example.com", "Abcdefg1")
	env.mustCreate(t, "two@example.com", "Abcdefg1")

	users, err = env.accounts.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestAccountService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustCreate(t, "ada@example.com", "Abcdefg1")

	t.Run("partial fields", func(t *testing.T) {
		updated, err := env.accounts.Update(ctx, user.ID, entityPatch(strPtr("Augusta"), nil, nil, nil))
		require.NoError(t, err)
		assert.Equal(t, "Augusta", updated.FirstName)
		assert.Equal(t, "Lovelace", updated.LastName)
		assert.Equal(t, "ada@example.com", updated.Email)
		assert.Equal(t, user.PasswordHash, updated.PasswordHash)
	})

	t.Run("own email is not a conflict", func(t *testing.T) {
		updated, err := env.accounts.Update(ctx, user.ID, entityPatch(nil, nil, strPtr("ADA@example.com"), nil))
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", updated.Email)
	})

	t.Run("password is rehashed", func(t *testing.T) {
		updated, err := env.accounts.Update(ctx, user.ID, entityPatch(nil, nil, nil, strPtr("Newpassw0rd")))
		require.NoError(t, err)
		assert.NotEqual(t, "Newpassw0rd", updated.PasswordHash)
		assert.True(t, env.hasher.Check("Newpassw0rd", updated.PasswordHash))
		assert.False(t, env.hasher.Check("Abcdefg1", updated.PasswordHash))
	})

	t.Run("empty patch returns current record", func(t *testing.T) {
		current, err := env.accounts.Update(ctx, user.ID, entityPatch(nil, nil, nil, nil))
		require.NoError(t, err)
		assert.Equal(t, user.ID, current.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := env.accounts.Update(ctx, uuid.New(), entityPatch(strPtr("X"), nil, nil, nil))
		assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
	})

	assert.Equal(t, []string{
		service.EventUserCreated,
		service.EventUserUpdated,
		service.EventUserUpdated,
		service.EventUserPasswordChanged,
	}, env.publisher.types())
}

func TestAccountService_Update_EmailTakenByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.mustCreate(t, "first@example.com", "Abcdefg1")
	second := env.mustCreate(t, "second@example.com", "Abcdefg1")

	_, err := env.accounts.Update(ctx, second.ID, entityPatch(strPtr("Renamed"), nil, strPtr("first@example.com"), nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))

	stored, err := env.accounts.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "second@example.com", stored.Email)
	assert.Equal(t, "Ada", stored.FirstName)

	stored, err = env.accounts.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", stored.Email)
}

func TestAccountService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.mustCreate(t, "ada@example.com", "Abcdefg1")

	deleted, err := env.accounts.Delete(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, deleted.ID)
	assert.Equal(t, user.Email, deleted.Email)

	_, err = env.accounts.GetByID(ctx, user.ID)
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))

	_, err = env.accounts.Delete(ctx, user.ID)
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))

	// The email becomes available again once the record is gone.
	env.mustCreate(t, "ada@example.com", "Abcdefg1")

	assert.Equal(t, []string{
		service.EventUserCreated,
		service.EventUserDeleted,
		service.EventUserCreated,
	}, env.publisher.types())
}

func TestAccountService_PublishFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker unavailable")

	user := env.mustCreate(t, "ada@example.com", "Abcdefg1")
	assert.Equal(t, 1, env.store.count())

	_, err := env.accounts.Delete(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, env.store.count())
}

func TestAccountService_WithoutPublisher(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.publisher = nil

	user := env.mustCreate(t, "ada@example.com", "Abcdefg1")
	assert.NotNil(t, user)
	assert.Empty(t, env.publisher.types())
}

func TestAccountService_EventCarriesUserIdentity(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustCreate(t, "ada@example.com", "Abcdefg1")

	require.Len(t, env.publisher.events, 1)
	event := env.publisher.events[0]
	assert.Equal(t, user.ID.String(), event.UserID)
	assert.Equal(t, user.Email, event.Email)
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.OccurredAt.IsZero())
}
