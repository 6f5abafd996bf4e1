package impl

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/domain/service"
	"accounts/internal/infra/auth"
	"accounts/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memoryStore emulates the users table: live rows only, unique email.
type memoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]entity.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[uuid.UUID]entity.User)}
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

func (s *memoryStore) snapshot() map[uuid.UUID]entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[uuid.UUID]entity.User, len(s.users))
	for id, u := range s.users {
		cp[id] = u
	}

	return cp
}

func (s *memoryStore) restore(users map[uuid.UUID]entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

type memoryUserRepo struct {
	store *memoryStore
}

func (r *memoryUserRepo) List(_ context.Context) ([]*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	users := make([]*entity.User, 0, len(r.store.users))
	for _, u := range r.store.users {
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}

		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	return users, nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return &u, nil
}

func (r *memoryUserRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.Email == email {
			return &u, nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (r *memoryUserRepo) Create(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.Email == user.Email {
			return domainerrors.ErrUserAlreadyExists.WrapMessage("duplicate email")
		}
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.store.users[user.ID] = *user

	return nil
}

func (r *memoryUserRepo) Update(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for id, u := range r.store.users {
		if id != user.ID && u.Email == user.Email {
			return domainerrors.ErrUserAlreadyExists.WrapMessage("duplicate email")
		}
	}

	user.UpdatedAt = time.Now().UTC()
	r.store.users[user.ID] = *user

	return nil
}

func (r *memoryUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.store.users, id)

	return nil
}

type memoryRepoFactory struct {
	repo *memoryUserRepo
}

func (f *memoryRepoFactory) UserRepo() repository.UserRepository {
	return f.repo
}

// memoryTxManager serializes transactions and rolls the store back on error.
type memoryTxManager struct {
	mu    sync.Mutex
	store *memoryStore
}

func (m *memoryTxManager) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.store.snapshot()
	if err := fn(&memoryRepoFactory{repo: &memoryUserRepo{store: m.store}}); err != nil {
		m.store.restore(before)

		return err
	}

	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*service.AccountEvent
	err    error
}

func (p *recordingPublisher) PublishAccountEvent(_ context.Context, event *service.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)

	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}

	return types
}

// mockTokenService is a testify mock of service.TokenService.
type mockTokenService struct {
	mock.Mock
}

func (m *mockTokenService) GenerateAccessToken(userID uuid.UUID, email string) (string, error) {
	args := m.Called(userID, email)

	return args.String(0), args.Error(1)
}

func (m *mockTokenService) ValidateToken(token string) (*service.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*service.Claims)

	return claims, args.Error(1)
}

func (m *mockTokenService) AccessTokenTTL() time.Duration {
	return 15 * time.Minute
}

type testEnv struct {
	store     *memoryStore
	publisher *recordingPublisher
	tokens    *mockTokenService
	hasher    service.PasswordHasher
	accounts  *accountService
	auth      *authService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := auth.NewBcryptHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)

	store := newMemoryStore()
	repo := &memoryUserRepo{store: store}
	publisher := &recordingPublisher{}
	tokens := &mockTokenService{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accounts := NewAccountService(AccountServiceParams{
		TxManager: &memoryTxManager{store: store},
		UserRepo:  repo,
		Hasher:    hasher,
		Publisher: publisher,
		Logger:    logger,
	}).(*accountService)

	authSrv := NewAuthService(AuthServiceParams{
		Accounts:     accounts,
		UserRepo:     repo,
		Hasher:       hasher,
		TokenService: tokens,
		Logger:       logger,
	}).(*authService)

	return &testEnv{
		store:     store,
		publisher: publisher,
		tokens:    tokens,
		hasher:    hasher,
		accounts:  accounts,
		auth:      authSrv,
	}
}

func (env *testEnv) mustCreate(t *testing.T, email, password string) *entity.User {
	t.Helper()

	user, err := env.accounts.Create(context.Background(), &usecase.CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)

	return user
}

func strPtr(s string) *string {
	return &s
}

func entityPatch(firstName, lastName, email, password *string) entity.UserPatch {
	return entity.UserPatch{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
	}
}
