package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

type WSClient struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// ServerEvent is one pushed event. Type selects which fields are set:
// message.sent and message.updated carry Message; message.deleted carries
// MessageID/SenderID/ReceiverID; online carries UserIDs.
type ServerEvent struct {
	Type       string   `json:"type"`
	Message    *Message `json:"message,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	SenderID   string   `json:"sender_id,omitempty"`
	ReceiverID string   `json:"receiver_id,omitempty"`
	UserIDs    []string `json:"user_ids,omitempty"`
}

func ConnectWS(serverURL, token string) (*WSClient, error) {
	wsURL := strings.Replace(serverURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = wsURL + "/ws?token=" + token

	ctx, cancel := context.WithCancel(context.Background())

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	return &WSClient{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *WSClient) ReadLoop(ch chan<- ServerEvent) {
	defer close(ch)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var evt ServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		select {
		case ch <- evt:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}
