package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/user"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pigeon",
			"POSTGRES_PASSWORD": "pigeon",
			"POSTGRES_DB":       "pigeon",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres port: %v", err)
	}
	conn := fmt.Sprintf("postgres://pigeon:pigeon@%s:%s/pigeon?sslmode=disable", host, port.Port())
	waitForPostgres(t, conn)

	store, err := NewPostgresStore(ctx, conn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close(ctx)
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		_ = store.Close(context.Background())
		_ = container.Terminate(context.Background())
	}
	return store, cleanup
}

func seedUser(t *testing.T, store *PostgresStore, id user.ID) {
	t.Helper()
	err := store.Users().Create(context.Background(), user.User{
		ID:        id,
		Email:     string(id) + "@example.com",
		FullName:  string(id),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedMessage(t *testing.T, store *PostgresStore, id chat.ID, sender, receiver user.ID, text string, createdAt time.Time) {
	t.Helper()
	err := store.Messages().Create(context.Background(), chat.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
}

func TestPostgresUserRepo(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	repo := store.Users()
	ctx := context.Background()

	alice := user.User{
		ID:           "alice",
		Email:        "alice@example.com",
		FullName:     "Alice A",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("create user: %v", err)
	}
	seedUser(t, store, "bob")

	got, err := repo.GetByID(ctx, "alice")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Email != "alice@example.com" || got.AvatarRef != "" {
		t.Fatalf("user = %+v", got)
	}

	if _, err := repo.GetByEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("get missing user error = %v, want ErrNotFound", err)
	}

	byIDs, err := repo.GetByIDs(ctx, []user.ID{"alice", "bob", "ghost"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(byIDs) != 2 {
		t.Fatalf("got %d users, want 2", len(byIDs))
	}

	others, err := repo.ListExcept(ctx, "alice")
	if err != nil {
		t.Fatalf("list except: %v", err)
	}
	if len(others) != 1 || others[0].ID != "bob" {
		t.Fatalf("others = %+v", others)
	}

	if ok, err := repo.Exists(ctx, "alice"); err != nil || !ok {
		t.Fatalf("exists(alice) = (%v, %v)", ok, err)
	}
	if ok, err := repo.Exists(ctx, "ghost"); err != nil || ok {
		t.Fatalf("exists(ghost) = (%v, %v)", ok, err)
	}

	if err := repo.UpdateAvatar(ctx, "alice", "avatar-ref"); err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	got, err = repo.GetByID(ctx, "alice")
	if err != nil {
		t.Fatalf("get after avatar update: %v", err)
	}
	if got.AvatarRef != "avatar-ref" {
		t.Fatalf("AvatarRef = %q", got.AvatarRef)
	}
	if err := repo.UpdateAvatar(ctx, "ghost", "ref"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("update avatar for missing user error = %v, want ErrNotFound", err)
	}

	// Duplicate email violates the unique constraint.
	dup := alice
	dup.ID = "alice2"
	if err := repo.Create(ctx, dup); err == nil {
		t.Fatal("expected error for duplicate email")
	}
}

func TestPostgresMessageRepo_GuardedWrites(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	repo := store.Messages()
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")

	base := time.Now().UTC().Truncate(time.Microsecond)
	seedMessage(t, store, "msg-1", "alice", "bob", "hello", base)

	got, err := repo.GetByID(ctx, "msg-1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Text != "hello" || got.UpdatedAt != nil {
		t.Fatalf("message = %+v", got)
	}

	// Only the sender's guarded update matches the row.
	updated, err := repo.UpdateText(ctx, "msg-1", "alice", "edited", base.Add(time.Second))
	if err != nil {
		t.Fatalf("update text: %v", err)
	}
	if updated.Text != "edited" || updated.UpdatedAt == nil {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := repo.UpdateText(ctx, "msg-1", "bob", "hijacked", base.Add(time.Second)); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("receiver update error = %v, want ErrForbidden", err)
	}
	if _, err := repo.UpdateText(ctx, "ghost", "alice", "text", base); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("missing update error = %v, want ErrNotFound", err)
	}

	if _, err := repo.DeleteBySender(ctx, "msg-1", "bob"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("receiver delete error = %v, want ErrForbidden", err)
	}
	deleted, err := repo.DeleteBySender(ctx, "msg-1", "alice")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Text != "edited" {
		t.Fatalf("deleted = %+v", deleted)
	}
	if _, err := repo.DeleteBySender(ctx, "msg-1", "alice"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "msg-1"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("get after delete error = %v, want ErrNotFound", err)
	}
}

func TestPostgresMessageRepo_ListBetween(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	repo := store.Messages()
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")
	seedUser(t, store, "carol")

	base := time.Now().UTC().Truncate(time.Microsecond)
	seedMessage(t, store, "msg-1", "alice", "bob", "one", base)
	seedMessage(t, store, "msg-2", "bob", "alice", "two", base.Add(time.Second))
	seedMessage(t, store, "msg-3", "alice", "carol", "other pair", base.Add(2*time.Second))

	msgs, err := repo.ListBetween(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Text != "one" || msgs[1].Text != "two" {
		t.Fatalf("order = [%s, %s], want created_at ascending", msgs[0].Text, msgs[1].Text)
	}

	// Both argument orders see the same exchange.
	reversed, err := repo.ListBetween(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("list between reversed: %v", err)
	}
	if len(reversed) != 2 {
		t.Fatalf("got %d messages reversed, want 2", len(reversed))
	}
}

func TestPostgresMessageRepo_RejectsSelfMessage(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	seedUser(t, store, "alice")

	err := store.Messages().Create(context.Background(), chat.Message{
		ID:         "msg-1",
		SenderID:   "alice",
		ReceiverID: "alice",
		Text:       "hi me",
		CreatedAt:  time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected check constraint violation for self message")
	}
}

func TestPostgresConversationRepo_PartnerEntries(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	seedUser(t, store, "alice")
	seedUser(t, store, "bob")
	seedUser(t, store, "carol")

	base := time.Now().UTC().Truncate(time.Microsecond)
	seedMessage(t, store, "msg-1", "alice", "bob", "hi bob", base)
	seedMessage(t, store, "msg-2", "bob", "alice", "hi back", base.Add(time.Second))
	seedMessage(t, store, "msg-3", "alice", "carol", "hi carol", base.Add(2*time.Second))

	entries, err := store.Conversations().PartnerEntries(ctx, "alice")
	if err != nil {
		t.Fatalf("partner entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].PartnerID != "carol" || entries[1].PartnerID != "bob" {
		t.Fatalf("order = [%s, %s], want [carol, bob]", entries[0].PartnerID, entries[1].PartnerID)
	}
	if entries[1].LastMessageText != "hi back" || entries[1].LastMessageSenderID != "bob" {
		t.Fatalf("bob entry = %+v, want the newest message of the pair", entries[1])
	}

	// Bob sees only his exchange with Alice.
	entries, err = store.Conversations().PartnerEntries(ctx, "bob")
	if err != nil {
		t.Fatalf("partner entries for bob: %v", err)
	}
	if len(entries) != 1 || entries[0].PartnerID != "alice" {
		t.Fatalf("bob entries = %+v", entries)
	}

	// No messages means an empty list, not an error.
	entries, err = store.Conversations().PartnerEntries(ctx, "carol")
	if err != nil {
		t.Fatalf("partner entries for carol: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("carol entries = %+v", entries)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	// Setup already migrated once; a second run applies nothing.
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
