package main

// Pure list-merge helpers for the chat model. All merges are keyed by
// message id, never by content or position, so a message arriving twice
// (push plus concurrent refresh) or out of order (send confirmation vs.
// push of the own message) converges to the same list.

// mergeIncoming appends the message unless its id is already present.
func mergeIncoming(list []Message, msg Message) []Message {
	for _, m := range list {
		if m.ID == msg.ID {
			return list
		}
	}
	return append(list, msg)
}

// applyUpdate replaces the matching message by id. A message outside the
// current view is ignored.
func applyUpdate(list []Message, msg Message) []Message {
	for i, m := range list {
		if m.ID == msg.ID {
			list[i] = msg
			return list
		}
	}
	return list
}

// applyDelete removes the matching id if present.
func applyDelete(list []Message, id string) []Message {
	for i, m := range list {
		if m.ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// replaceProvisional swaps the optimistic entry for the server-confirmed
// message, matched by the temporary id so duplicate-text messages cannot
// be confused. When the fan-out push of the own message beat the send
// confirmation, the confirmed id is already in the list and the provisional
// entry is dropped instead of swapped, so the message appears once. If the
// provisional entry is gone (view refetched in the meantime) the confirmed
// message is merged idempotently instead.
func replaceProvisional(list []Message, tempID string, confirmed Message) []Message {
	for _, m := range list {
		if m.ID == confirmed.ID {
			return dropProvisional(list, tempID)
		}
	}
	for i, m := range list {
		if m.ID == tempID {
			list[i] = confirmed
			return list
		}
	}
	return mergeIncoming(list, confirmed)
}

// dropProvisional removes a failed optimistic entry.
func dropProvisional(list []Message, tempID string) []Message {
	return applyDelete(list, tempID)
}

// bumpConversation moves the partner's summary to the front, refreshed from
// the message's own fields. It reports false when the partner has no entry
// yet (first message ever); the caller falls back to a full list refresh
// rather than fabricating an entry locally.
func bumpConversation(convs []Conversation, partnerID string, msg Message) ([]Conversation, bool) {
	for i := range convs {
		if convs[i].PartnerID != partnerID {
			continue
		}
		entry := convs[i]
		entry.LastMessageText = msg.Text
		entry.LastMessageImageRef = msg.ImageRef
		entry.LastMessageAt = msg.CreatedAt
		entry.LastMessageSenderID = msg.SenderID
		copy(convs[1:i+1], convs[:i])
		convs[0] = entry
		return convs, true
	}
	return convs, false
}

// refreshConversationText updates the summary text in place when the edited
// message is the one the summary shows. Editing never changes recency, so
// no reorder happens.
func refreshConversationText(convs []Conversation, partnerID string, msg Message) []Conversation {
	for i := range convs {
		if convs[i].PartnerID != partnerID {
			continue
		}
		if convs[i].LastMessageAt == msg.CreatedAt && convs[i].LastMessageSenderID == msg.SenderID {
			convs[i].LastMessageText = msg.Text
			convs[i].LastMessageImageRef = msg.ImageRef
		}
		return convs
	}
	return convs
}

// partnerOf resolves the counterparty of a message from the viewer's
// perspective. A message from the viewer's other device still belongs to
// the receiver's conversation.
func partnerOf(selfID string, msg Message) string {
	if msg.SenderID == selfID {
		return msg.ReceiverID
	}
	return msg.SenderID
}
