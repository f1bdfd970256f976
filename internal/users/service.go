package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/auth"
	"github.com/PamellaBolsas/SafeTradeGames/internal/models"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
)

type Service struct {
	store store.Store
	auth  *auth.Auth
}

func NewService(st store.Store, a *auth.Auth) *Service {
	return &Service{store: st, auth: a}
}

// Register creates a user with zero balances and returns it together
// with a signed token.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, string, error) {
	if username == "" || email == "" || password == "" {
		return nil, "", apperr.New(apperr.Validation, "Preencha todos os campos")
	}
	if len(password) < 6 {
		return nil, "", apperr.New(apperr.Validation, "Senha precisa de 6 caracteres")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	u := &models.User{
		ID:               uuid.New(),
		Username:         username,
		Email:            email,
		PasswordHash:     string(hash),
		PendingBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		CreatedAt:        time.Now(),
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrEmailInUse) {
			return nil, "", apperr.New(apperr.Validation, "Email já está em uso")
		}
		return nil, "", err
	}

	token, err := s.auth.GenerateToken(u.ID, u.Username)
	if err != nil {
		return nil, "", err
	}

	return u, token, nil
}

// Login verifies the credentials and returns the user with a fresh
// token. The error never reveals which of the two fields was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	if email == "" || password == "" {
		return nil, "", apperr.New(apperr.Validation, "Email e senha são obrigatórios")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", apperr.New(apperr.Auth, "Email ou senha incorretos")
	}
	if err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", apperr.New(apperr.Auth, "Email ou senha incorretos")
	}

	token, err := s.auth.GenerateToken(u.ID, u.Username)
	if err != nil {
		return nil, "", err
	}

	return u, token, nil
}

// Profile returns the user record; the password hash is never
// serialized.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Usuário não encontrado")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
