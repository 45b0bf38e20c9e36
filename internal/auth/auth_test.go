package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pigeonchat/pigeon/internal/user"
)

type fakeUserRepo struct {
	byID    map[user.ID]user.User
	byEmail map[string]user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[user.ID]user.User),
		byEmail: make(map[string]user.User),
	}
}

func (r *fakeUserRepo) Create(_ context.Context, u user.User) error {
	if _, exists := r.byEmail[u.Email]; exists {
		return errors.New("duplicate email")
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id user.ID) (user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []user.ID) ([]user.User, error) {
	var out []user.User
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ListExcept(_ context.Context, id user.ID) ([]user.User, error) {
	var out []user.User
	for _, u := range r.byID {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Exists(_ context.Context, id user.ID) (bool, error) {
	_, ok := r.byID[id]
	return ok, nil
}

func (r *fakeUserRepo) UpdateAvatar(_ context.Context, id user.ID, avatarRef string) error {
	u, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	u.AvatarRef = avatarRef
	r.byID[id] = u
	r.byEmail[u.Email] = u
	return nil
}

func newTestService() *Service {
	return NewService(user.NewService(newFakeUserRepo()))
}

func TestRegister_IssuesSession(t *testing.T) {
	svc := newTestService()

	created, session, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q", created.Email)
	}
	if created.PasswordHash == "" || created.PasswordHash == "correct horse" {
		t.Error("password must be stored hashed")
	}
	if session.Token == "" {
		t.Fatal("session token is empty")
	}
	if session.UserID != created.ID {
		t.Errorf("session UserID = %s, want %s", session.UserID, created.ID)
	}

	got, err := svc.ValidateToken(session.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got.UserID != created.ID {
		t.Errorf("validated UserID = %s, want %s", got.UserID, created.ID)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	svc := newTestService()

	_, _, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "short")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Register() error = %v, want ErrInvalidInput", err)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	svc := newTestService()

	cases := []struct {
		name     string
		email    string
		fullName string
	}{
		{"empty email", "", "Alice A"},
		{"empty name", "alice@example.com", "  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tc.email, tc.fullName, "long enough password")
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Register() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService()

	if _, _, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "long enough password"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, _, err := svc.Register(context.Background(), "alice@example.com", "Other Alice", "long enough password"); err == nil {
		t.Fatal("duplicate Register() expected error")
	}
}

func TestLogin_CorrectPassword(t *testing.T) {
	svc := newTestService()
	if _, _, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "correct horse"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	found, session, err := svc.Login(context.Background(), "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if found.FullName != "Alice A" {
		t.Errorf("FullName = %q", found.FullName)
	}
	if _, err := svc.ValidateToken(session.Token); err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestService()
	if _, _, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "correct horse"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, _, err := svc.Login(context.Background(), "alice@example.com", "wrong horse")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc := newTestService()

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever password")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	svc := newTestService()
	_, session, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	svc.Logout(session.Token)

	_, err = svc.ValidateToken(session.Token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ValidateToken() after logout error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newTestService()
	_, session, err := svc.Register(context.Background(), "alice@example.com", "Alice A", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, err = svc.ValidateToken(session.Token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}

	// Expired tokens are purged on first validation.
	_, err = svc.ValidateToken(session.Token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("second ValidateToken() error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateToken_Unknown(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ValidateToken("bogus"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ValidateToken() error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.ValidateToken("  "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ValidateToken(blank) error = %v, want ErrUnauthorized", err)
	}
}
