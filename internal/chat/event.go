package chat

import "github.com/pigeonchat/pigeon/internal/user"

// Event is a message lifecycle event produced by the store after an accepted
// mutation and fanned out to both participants' live connections.
type Event interface {
	Kind() string
	Participants() (user.ID, user.ID)
}

type MessageSent struct {
	Message Message
}

func (e MessageSent) Kind() string { return "message.sent" }

func (e MessageSent) Participants() (user.ID, user.ID) {
	return e.Message.SenderID, e.Message.ReceiverID
}

type MessageUpdated struct {
	Message Message
}

func (e MessageUpdated) Kind() string { return "message.updated" }

func (e MessageUpdated) Participants() (user.ID, user.ID) {
	return e.Message.SenderID, e.Message.ReceiverID
}

type MessageDeleted struct {
	MessageID  ID
	SenderID   user.ID
	ReceiverID user.ID
}

func (e MessageDeleted) Kind() string { return "message.deleted" }

func (e MessageDeleted) Participants() (user.ID, user.ID) {
	return e.SenderID, e.ReceiverID
}

// Dispatcher delivers events to the participants' live connections.
// Delivery is fire-and-forget; Dispatch must not block the mutation.
type Dispatcher interface {
	Dispatch(evt Event)
}
