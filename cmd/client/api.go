package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type APIClient struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

func NewAPIClient(serverURL string) *APIClient {
	return &APIClient{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type AuthResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	AvatarRef string `json:"avatar_ref"`
	ExpiresAt string `json:"expires_at"`
}

type Contact struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	AvatarRef string `json:"avatar_ref"`
}

type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	ImageRef   string `json:"image_ref"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type Conversation struct {
	PartnerID           string `json:"partner_id"`
	PartnerName         string `json:"partner_name"`
	PartnerAvatarRef    string `json:"partner_avatar_ref"`
	LastMessageText     string `json:"last_message_text"`
	LastMessageImageRef string `json:"last_message_image_ref"`
	LastMessageAt       string `json:"last_message_at"`
	LastMessageSenderID string `json:"last_message_sender_id"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *APIClient) Register(ctx context.Context, email, fullName, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":     email,
		"full_name": fullName,
		"password":  password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *APIClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *APIClient) Contacts(ctx context.Context) ([]Contact, error) {
	var resp struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/contacts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

func (c *APIClient) Messages(ctx context.Context, partnerID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := "/messages?partner=" + url.QueryEscape(partnerID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *APIClient) SendMessage(ctx context.Context, receiverID, text, imageDataURI string) (*Message, error) {
	var resp Message
	err := c.doJSON(ctx, http.MethodPost, "/messages", map[string]string{
		"receiver_id": receiverID,
		"text":        text,
		"image":       imageDataURI,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) UpdateMessage(ctx context.Context, messageID, text string) (*Message, error) {
	var resp Message
	err := c.doJSON(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), map[string]string{
		"text": text,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) DeleteMessage(ctx context.Context, messageID string) (string, error) {
	var resp struct {
		MessageID string `json:"message_id"`
	}
	err := c.doJSON(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (c *APIClient) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *APIClient) OnlineUsers(ctx context.Context) ([]string, error) {
	var resp struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/presence", nil, &resp); err != nil {
		return nil, err
	}
	return resp.UserIDs, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
