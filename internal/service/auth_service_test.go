package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/security"
	"keikkaduuni/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	if args.Error(0) == nil {
		u.ID = 1
	}
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests

	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	t.Run("Success", func(t *testing.T) {
		input := service.RegisterInput{
			Name:     "Aino",
			Email:    " Aino@Example.com ",
			Password: "Password1!",
		}

		mockRepo.On("GetByEmail", mock.Anything, "aino@example.com").Return(nil, domain.ErrNotFound).Once()
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Email == "aino@example.com" && u.HashedPassword != "Password1!"
		})).Return(nil).Once()

		user, err := svc.Register(context.Background(), input)
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, "Aino", user.Name)
	})

	t.Run("EmailTaken", func(t *testing.T) {
		input := service.RegisterInput{
			Name:     "Toinen",
			Email:    "existing@example.com",
			Password: "Password1!",
		}

		existing := &domain.User{Email: "existing@example.com"}
		mockRepo.On("GetByEmail", mock.Anything, "existing@example.com").Return(existing, nil).Once()

		user, err := svc.Register(context.Background(), input)
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.Equal(t, domain.ErrConflict, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := svc.Register(context.Background(), service.RegisterInput{Name: "x", Email: "nope", Password: "Password1!"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = svc.Register(context.Background(), service.RegisterInput{Name: "x", Email: "x@example.com", Password: "short"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	mockRepo.AssertExpectations(t)
}

func TestLoginAndAuthenticate(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)
	user := &domain.User{ID: 7, Name: "Aino", Email: "aino@example.com", HashedPassword: hashed}

	mockRepo.On("GetByEmail", mock.Anything, "aino@example.com").Return(user, nil)
	mockRepo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, domain.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, int64(7)).Return(user, nil)

	t.Run("Success", func(t *testing.T) {
		res, err := svc.Login(context.Background(), service.LoginInput{Email: "aino@example.com", Password: "Password1!"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", res.TokenType)

		got, err := svc.Authenticate(context.Background(), res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Email: "aino@example.com", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Email: "ghost@example.com", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("BadToken", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "garbage")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
