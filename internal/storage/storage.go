package storage

import (
	"context"

	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/conversation"
	"github.com/pigeonchat/pigeon/internal/user"
)

type Store interface {
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error
	Users() user.Repository
	Messages() chat.Repository
	Conversations() conversation.Repository
}
