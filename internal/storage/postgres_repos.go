package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/conversation"
	"github.com/pigeonchat/pigeon/internal/user"
)

type userRepo struct {
	db *sql.DB
}

func (r *userRepo) Create(ctx context.Context, u user.User) error {
	if u.ID == "" || u.Email == "" || u.FullName == "" || u.CreatedAt.IsZero() {
		return fmt.Errorf("user id, email, full_name, and created_at are required")
	}

	var avatarRef any
	if u.AvatarRef != "" {
		avatarRef = u.AvatarRef
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, full_name, password_hash, avatar_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, u.ID, u.Email, u.FullName, u.PasswordHash, avatarRef, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id user.ID) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, full_name, password_hash, avatar_ref, created_at
		FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("select user by id: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, full_name, password_hash, avatar_ref, created_at
		FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("select user by email: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []user.ID) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, email, full_name, password_hash, avatar_ref, created_at
		FROM users WHERE id = ANY($1)`, idStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("select users by ids: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *userRepo) ListExcept(ctx context.Context, id user.ID) ([]user.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, full_name, password_hash, avatar_ref, created_at
		FROM users WHERE id <> $1 ORDER BY full_name`, id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *userRepo) Exists(ctx context.Context, id user.ID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (r *userRepo) UpdateAvatar(ctx context.Context, id user.ID, avatarRef string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET avatar_ref = $1 WHERE id = $2`, avatarRef, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var avatarRef sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &avatarRef, &u.CreatedAt); err != nil {
		return user.User{}, err
	}
	if avatarRef.Valid {
		u.AvatarRef = avatarRef.String
	}
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]user.User, error) {
	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func idStrings(ids []user.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

type messageRepo struct {
	db *sql.DB
}

const messageColumns = `id, sender_id, receiver_id, text, image_ref, created_at, updated_at`

func (r *messageRepo) Create(ctx context.Context, msg chat.Message) error {
	if msg.ID == "" || msg.SenderID == "" || msg.ReceiverID == "" || msg.CreatedAt.IsZero() {
		return fmt.Errorf("message id, sender_id, receiver_id, and created_at are required")
	}

	var text, imageRef any
	if msg.Text != "" {
		text = msg.Text
	}
	if msg.ImageRef != "" {
		imageRef = msg.ImageRef
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (id, sender_id, receiver_id, text, image_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, msg.ID, msg.SenderID, msg.ReceiverID, text, imageRef, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id chat.ID) (chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, chat.ErrNotFound
		}
		return chat.Message{}, fmt.Errorf("select message by id: %w", err)
	}
	return msg, nil
}

// UpdateText is a single guarded statement so a concurrent delete of the
// same id serializes against it at the row level.
func (r *messageRepo) UpdateText(ctx context.Context, id chat.ID, sender user.ID, text string, updatedAt time.Time) (chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `UPDATE messages SET text = $1, updated_at = $2
		WHERE id = $3 AND sender_id = $4
		RETURNING `+messageColumns, text, updatedAt, id, sender)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, r.missReason(ctx, id)
		}
		return chat.Message{}, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (r *messageRepo) DeleteBySender(ctx context.Context, id chat.ID, sender user.ID) (chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM messages
		WHERE id = $1 AND sender_id = $2
		RETURNING `+messageColumns, id, sender)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, r.missReason(ctx, id)
		}
		return chat.Message{}, fmt.Errorf("delete message: %w", err)
	}
	return msg, nil
}

// missReason distinguishes a guarded write that matched no rows: the message
// either never existed (or was deleted concurrently) or belongs to someone
// else.
func (r *messageRepo) missReason(ctx context.Context, id chat.ID) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("message exists: %w", err)
	}
	if exists {
		return chat.ErrForbidden
	}
	return chat.ErrNotFound
}

func (r *messageRepo) ListBetween(ctx context.Context, a, b user.ID) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at, id`, a, b)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func scanMessage(row rowScanner) (chat.Message, error) {
	var msg chat.Message
	var text, imageRef sql.NullString
	var updatedAt sql.NullTime
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &text, &imageRef, &msg.CreatedAt, &updatedAt); err != nil {
		return chat.Message{}, err
	}
	if text.Valid {
		msg.Text = text.String
	}
	if imageRef.Valid {
		msg.ImageRef = imageRef.String
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		msg.UpdatedAt = &t
	}
	return msg, nil
}

type conversationRepo struct {
	db *sql.DB
}

// PartnerEntries selects the newest message per counterparty for the viewer,
// newest pair first. Ties on created_at break by id descending, which keeps
// the ordering stable within one computation.
func (r *conversationRepo) PartnerEntries(ctx context.Context, viewer user.ID) ([]conversation.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT partner_id, text, image_ref, created_at, sender_id FROM (
			SELECT DISTINCT ON (partner_id) partner_id, text, image_ref, created_at, sender_id, id FROM (
				SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
					text, image_ref, created_at, sender_id, id
				FROM messages
				WHERE sender_id = $1 OR receiver_id = $1
			) exchanged
			ORDER BY partner_id, created_at DESC, id DESC
		) latest
		ORDER BY created_at DESC, id DESC`, viewer)
	if err != nil {
		return nil, fmt.Errorf("list partner entries: %w", err)
	}
	defer rows.Close()

	var out []conversation.Entry
	for rows.Next() {
		var e conversation.Entry
		var text, imageRef sql.NullString
		if err := rows.Scan(&e.PartnerID, &text, &imageRef, &e.LastMessageAt, &e.LastMessageSenderID); err != nil {
			return nil, fmt.Errorf("scan partner entry: %w", err)
		}
		if text.Valid {
			e.LastMessageText = text.String
		}
		if imageRef.Valid {
			e.LastMessageImageRef = imageRef.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partner entries: %w", err)
	}
	return out, nil
}
