// Package auth реализует учётные записи: регистрация по корпоративной почте,
// вход по паролю, сессии в SessionStore, сброс пароля по одноразовой ссылке.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/email"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
	"github.com/corpchat/internal/storage"
)

const credentialsCollection = repository.ColCredentials

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrBadEmail           = errors.New("invalid email")
	ErrWrongDomain        = errors.New("email outside company domain")
	ErrWeakPassword       = errors.New("password too short")
	ErrRateLimited        = errors.New("too many attempts")
)

type Service struct {
	store       docstore.Store
	users       *repository.UserRepository
	sessions    storage.SessionStore
	mailer      *email.Sender
	emailDomain string
}

func NewService(store docstore.Store, users *repository.UserRepository, sessions storage.SessionStore, mailer *email.Sender, emailDomain string) *Service {
	return &Service{
		store:       store,
		users:       users,
		sessions:    sessions,
		mailer:      mailer,
		emailDomain: emailDomain,
	}
}

// SignUp создаёт аккаунт и сразу открывает сессию.
func (s *Service) SignUp(ctx context.Context, emailAddr, password, name, department string) (*model.User, string, error) {
	defer logger.DeferLogDuration("auth.SignUp", time.Now())()
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if err := s.validateEmail(emailAddr); err != nil {
		return nil, "", err
	}
	if len(password) < 8 {
		return nil, "", ErrWeakPassword
	}
	if allowed, err := s.sessions.CheckRateLimit(ctx, "signup:"+emailAddr); err != nil {
		return nil, "", fmt.Errorf("auth.SignUp: %w", err)
	} else if !allowed {
		return nil, "", ErrRateLimited
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", fmt.Errorf("auth.SignUp: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("auth.SignUp: hash: %w", err)
	}
	u := &model.User{
		ID:         newToken(16),
		Email:      emailAddr,
		Name:       name,
		Role:       model.RoleEmployee,
		Department: strings.ToLower(department),
		Status:     model.StatusOffline,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", fmt.Errorf("auth.SignUp: %w", err)
	}
	if _, err := s.store.Create(ctx, credentialsCollection, u.ID, map[string]any{
		"email":        emailAddr,
		"passwordHash": string(hash),
	}); err != nil {
		return nil, "", fmt.Errorf("auth.SignUp: credentials: %w", err)
	}

	token, err := s.openSession(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("auth.SignUp: %w", err)
	}
	logger.Infof("new account %s (%s)", u.ID, emailAddr)
	return u, token, nil
}

// SignIn проверяет пароль и открывает сессию; статус становится online.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (*model.User, string, error) {
	defer logger.DeferLogDuration("auth.SignIn", time.Now())()
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if allowed, err := s.sessions.CheckRateLimit(ctx, "signin:"+emailAddr); err != nil {
		return nil, "", fmt.Errorf("auth.SignIn: %w", err)
	} else if !allowed {
		return nil, "", ErrRateLimited
	}
	u, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("auth.SignIn: %w", err)
	}
	hash, err := s.passwordHash(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("auth.SignIn: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.openSession(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("auth.SignIn: %w", err)
	}
	return u, token, nil
}

// SignOut закрывает сессию; статус становится offline.
func (s *Service) SignOut(ctx context.Context, token string) error {
	defer logger.DeferLogDuration("auth.SignOut", time.Now())()
	userID, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return fmt.Errorf("auth.SignOut: %w", err)
	}
	if userID == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("auth.SignOut: %w", err)
	}
	if err := s.users.SetStatus(ctx, userID, model.StatusOffline); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("auth.SignOut: %w", err)
	}
	return nil
}

// Authenticate возвращает пользователя по токену сессии.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}
	if userID == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}
	return u, nil
}

// RequestPasswordReset шлёт одноразовую ссылку. Существование адреса наружу
// не раскрывается: на незнакомый email отвечаем так же, как на знакомый.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr, baseURL string) error {
	defer logger.DeferLogDuration("auth.RequestPasswordReset", time.Now())()
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if allowed, err := s.sessions.CheckRateLimit(ctx, "reset:"+emailAddr); err != nil {
		return fmt.Errorf("auth.RequestPasswordReset: %w", err)
	} else if !allowed {
		return ErrRateLimited
	}
	u, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth.RequestPasswordReset: %w", err)
	}
	token := newToken(32)
	if err := s.sessions.SetResetToken(ctx, token, u.ID); err != nil {
		return fmt.Errorf("auth.RequestPasswordReset: %w", err)
	}
	resetURL := strings.TrimSuffix(baseURL, "/") + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(ctx, u.Email, resetURL); err != nil {
		return fmt.Errorf("auth.RequestPasswordReset: send: %w", err)
	}
	return nil
}

// ResetPassword меняет пароль по токену и снимает все сессии пользователя.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	defer logger.DeferLogDuration("auth.ResetPassword", time.Now())()
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	userID, err := s.sessions.GetResetToken(ctx, token)
	if err != nil {
		return fmt.Errorf("auth.ResetPassword: %w", err)
	}
	if userID == "" {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth.ResetPassword: hash: %w", err)
	}
	if err := s.store.Update(ctx, credentialsCollection, userID, map[string]any{
		"passwordHash": string(hash),
	}); err != nil {
		return fmt.Errorf("auth.ResetPassword: %w", err)
	}
	if err := s.sessions.DeleteResetToken(ctx, token); err != nil {
		return fmt.Errorf("auth.ResetPassword: %w", err)
	}
	if err := s.sessions.DeleteUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("auth.ResetPassword: %w", err)
	}
	return nil
}

func (s *Service) validateEmail(emailAddr string) error {
	if err := checkmail.ValidateFormat(emailAddr); err != nil {
		return ErrBadEmail
	}
	if s.emailDomain != "" && !strings.HasSuffix(emailAddr, "@"+s.emailDomain) {
		return ErrWrongDomain
	}
	return nil
}

func (s *Service) passwordHash(ctx context.Context, userID string) (string, error) {
	doc, err := s.store.Get(ctx, credentialsCollection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	hash, _ := doc.Data["passwordHash"].(string)
	return hash, nil
}

func (s *Service) openSession(ctx context.Context, userID string) (string, error) {
	token := newToken(32)
	if err := s.sessions.SetSession(ctx, token, userID); err != nil {
		return "", err
	}
	if err := s.users.SetStatus(ctx, userID, model.StatusOnline); err != nil {
		return "", err
	}
	return token, nil
}

func newToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("auth: rand: %v", err))
	}
	return hex.EncodeToString(b)
}
