package user

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

type fakeRepo struct {
	byID    map[ID]User
	byEmail map[string]User

	avatarUpdates map[ID]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:          make(map[ID]User),
		byEmail:       make(map[string]User),
		avatarUpdates: make(map[ID]string),
	}
}

func (r *fakeRepo) Create(_ context.Context, u User) error {
	if _, exists := r.byEmail[u.Email]; exists {
		return errors.New("duplicate email")
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id ID) (User, error) {
	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetByEmail(_ context.Context, email string) (User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetByIDs(_ context.Context, ids []ID) ([]User, error) {
	var out []User
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListExcept(_ context.Context, id ID) ([]User, error) {
	var out []User
	for _, u := range r.byID {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeRepo) Exists(_ context.Context, id ID) (bool, error) {
	_, ok := r.byID[id]
	return ok, nil
}

func (r *fakeRepo) UpdateAvatar(_ context.Context, id ID, avatarRef string) error {
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	r.avatarUpdates[id] = avatarRef
	return nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	svc := NewService(repo)
	nextID := 0
	svc.idGen = func() ID {
		nextID++
		return ID(rune('a' + nextID - 1))
	}
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc, repo
}

func TestCreate_NormalizesInput(t *testing.T) {
	svc, repo := newTestService()

	u, err := svc.Create(context.Background(), "  Alice@Example.COM ", "  Alice A  ", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized lowercase", u.Email)
	}
	if u.FullName != "Alice A" {
		t.Errorf("FullName = %q, want trimmed", u.FullName)
	}
	if _, ok := repo.byID[u.ID]; !ok {
		t.Fatal("user not persisted")
	}
}

func TestCreate_InvalidEmail(t *testing.T) {
	svc, _ := newTestService()

	for _, email := range []string{"", "   ", "not-an-email", "a@"} {
		if _, err := svc.Create(context.Background(), email, "Alice A", "hash"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidInput", email, err)
		}
	}
}

func TestCreate_MissingNameOrHash(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Create(context.Background(), "a@example.com", "  ", "hash"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Create() with blank name error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Create(context.Background(), "a@example.com", "Alice A", " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Create() with blank hash error = %v, want ErrInvalidInput", err)
	}
}

func TestGetByEmail_Normalized(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Create(context.Background(), "alice@example.com", "Alice A", "hash"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	u, err := svc.GetByEmail(context.Background(), "  ALICE@example.com ")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if u.FullName != "Alice A" {
		t.Errorf("FullName = %q", u.FullName)
	}
}

func TestContacts_ExcludesRequester(t *testing.T) {
	svc, _ := newTestService()
	alice, err := svc.Create(context.Background(), "alice@example.com", "Alice A", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(context.Background(), "bob@example.com", "Bob B", "hash"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(context.Background(), "carol@example.com", "Carol C", "hash"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	contacts, err := svc.Contacts(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Contacts() error = %v", err)
	}
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.FullName
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "Bob B" || names[1] != "Carol C" {
		t.Fatalf("contacts = %v, want [Bob B, Carol C]", names)
	}
}

func TestContacts_EmptyRequester(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Contacts(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Contacts() error = %v, want ErrInvalidInput", err)
	}
}

func TestExists(t *testing.T) {
	svc, _ := newTestService()
	alice, err := svc.Create(context.Background(), "alice@example.com", "Alice A", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if ok, err := svc.Exists(context.Background(), alice.ID); err != nil || !ok {
		t.Fatalf("Exists(alice) = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := svc.Exists(context.Background(), "ghost"); err != nil || ok {
		t.Fatalf("Exists(ghost) = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := svc.Exists(context.Background(), ""); err != nil || ok {
		t.Fatalf("Exists(\"\") = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestSetAvatar(t *testing.T) {
	svc, repo := newTestService()
	alice, err := svc.Create(context.Background(), "alice@example.com", "Alice A", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.SetAvatar(context.Background(), alice.ID, "avatar-ref"); err != nil {
		t.Fatalf("SetAvatar() error = %v", err)
	}
	if repo.avatarUpdates[alice.ID] != "avatar-ref" {
		t.Fatalf("avatar updates = %v", repo.avatarUpdates)
	}

	if err := svc.SetAvatar(context.Background(), alice.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("SetAvatar() with blank ref error = %v, want ErrInvalidInput", err)
	}
}
