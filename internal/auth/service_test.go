package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/auth"
	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
	memstorage "github.com/corpchat/internal/storage/memory"
)

func newService() (*auth.Service, *repository.UserRepository, *memstorage.Client) {
	store := memory.New()
	users := repository.NewUserRepository(store)
	sessions := memstorage.New()
	// mailer без SMTP-хоста допустим: в тестах письма не отправляются
	return auth.NewService(store, users, sessions, nil, "minicorp.com"), users, sessions
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService()

	cases := []struct {
		name, email, password string
		want                  error
	}{
		{"bad format", "not-an-email", "longenough", auth.ErrBadEmail},
		{"foreign domain", "user@gmail.com", "longenough", auth.ErrWrongDomain},
		{"weak password", "user@minicorp.com", "short", auth.ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.SignUp(ctx, tc.email, tc.password, "User", "sales")
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newService()

	u, token, err := svc.SignUp(ctx, "Ivan@MiniCorp.com", "password123", "Ivan", "Engineering")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if token == "" {
		t.Error("empty session token")
	}
	if u.Email != "ivan@minicorp.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if u.Department != "engineering" {
		t.Errorf("department not normalized: %q", u.Department)
	}
	if u.Role != model.RoleEmployee {
		t.Errorf("role = %s", u.Role)
	}

	// хэш пароля не живёт на документе пользователя
	stored, _ := users.GetByID(ctx, u.ID)
	if stored == nil {
		t.Fatal("user not persisted")
	}

	// повторная регистрация того же адреса
	if _, _, err := svc.SignUp(ctx, "ivan@minicorp.com", "password123", "Ivan2", ""); !errors.Is(err, auth.ErrEmailTaken) {
		t.Errorf("duplicate signup = %v", err)
	}

	// вход с верным паролем
	signed, token2, err := svc.SignIn(ctx, "ivan@minicorp.com", "password123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signed.ID != u.ID || token2 == "" {
		t.Errorf("signin = %v / %q", signed.ID, token2)
	}
	if signed.Status != model.StatusOnline {
		// статус online выставляется в хранилище, не в возвращённой копии
		fresh, _ := users.GetByID(ctx, u.ID)
		if fresh.Status != model.StatusOnline {
			t.Errorf("status = %s", fresh.Status)
		}
	}

	// неверный пароль и незнакомый адрес неразличимы
	if _, _, err := svc.SignIn(ctx, "ivan@minicorp.com", "wrongpass123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("wrong password = %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "ghost@minicorp.com", "password123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("unknown email = %v", err)
	}
}

func TestAuthenticateAndSignOut(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newService()

	u, token, _ := svc.SignUp(ctx, "a@minicorp.com", "password123", "A", "")

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("id = %q", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "bogus"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("bogus token = %v", err)
	}

	if err := svc.SignOut(ctx, token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("token after signout = %v", err)
	}
	fresh, _ := users.GetByID(ctx, u.ID)
	if fresh.Status != model.StatusOffline {
		t.Errorf("status after signout = %s", fresh.Status)
	}
}

func TestSignInRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService()
	svc.SignUp(ctx, "r@minicorp.com", "password123", "R", "")

	var last error
	for i := 0; i < 15; i++ {
		_, _, last = svc.SignIn(ctx, "r@minicorp.com", "wrongpass123")
	}
	if !errors.Is(last, auth.ErrRateLimited) {
		t.Errorf("after 15 attempts err = %v", last)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, sessions := newService()
	u, oldToken, _ := svc.SignUp(ctx, "p@minicorp.com", "password123", "P", "")

	// токен кладём напрямую: SMTP в тестах нет
	if err := sessions.SetResetToken(ctx, "reset-tok", u.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResetPassword(ctx, "reset-tok", "short"); !errors.Is(err, auth.ErrWeakPassword) {
		t.Errorf("weak new password = %v", err)
	}
	if err := svc.ResetPassword(ctx, "reset-tok", "newpassword1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// старые сессии сняты, старый пароль не работает, новый — работает
	if _, err := svc.Authenticate(ctx, oldToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("old session alive: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "p@minicorp.com", "password123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("old password works: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "p@minicorp.com", "newpassword1"); err != nil {
		t.Errorf("new password: %v", err)
	}

	// использованный токен одноразовый
	if err := svc.ResetPassword(ctx, "reset-tok", "anotherpass1"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("token reuse = %v", err)
	}
}
