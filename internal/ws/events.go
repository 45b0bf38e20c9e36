package ws

import (
	"time"

	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/user"
)

// Wire shapes for pushed events. Each event kind carries a fixed payload;
// clients switch on the type tag.

type messagePayload struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text,omitempty"`
	ImageRef   string `json:"image_ref,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type messageEvent struct {
	Type    string         `json:"type"`
	Message messagePayload `json:"message"`
}

type deletedEvent struct {
	Type       string `json:"type"`
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type onlineEvent struct {
	Type    string    `json:"type"`
	UserIDs []user.ID `json:"user_ids"`
}

func encodeEvent(evt chat.Event) any {
	switch e := evt.(type) {
	case chat.MessageSent:
		return messageEvent{Type: e.Kind(), Message: encodeMessage(e.Message)}
	case chat.MessageUpdated:
		return messageEvent{Type: e.Kind(), Message: encodeMessage(e.Message)}
	case chat.MessageDeleted:
		return deletedEvent{
			Type:       e.Kind(),
			MessageID:  string(e.MessageID),
			SenderID:   string(e.SenderID),
			ReceiverID: string(e.ReceiverID),
		}
	default:
		return struct {
			Type string `json:"type"`
		}{Type: evt.Kind()}
	}
}

func encodeMessage(msg chat.Message) messagePayload {
	p := messagePayload{
		ID:         string(msg.ID),
		SenderID:   string(msg.SenderID),
		ReceiverID: string(msg.ReceiverID),
		Text:       msg.Text,
		ImageRef:   msg.ImageRef,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if msg.UpdatedAt != nil {
		p.UpdatedAt = msg.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}
