// Package imagestore talks to the external image service that holds message
// attachments. Uploads and deletes fail independently of the message
// mutation they accompany.
package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

type Store interface {
	// Upload stores a base64 data URI and returns an opaque reference.
	Upload(ctx context.Context, dataURI string) (string, error)
	// Delete removes a previously uploaded image.
	Delete(ctx context.Context, ref string) error
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type uploadRequest struct {
	DataURI string `json:"data_uri"`
}

type uploadResponse struct {
	Ref string `json:"ref"`
}

func (c *Client) Upload(ctx context.Context, dataURI string) (string, error) {
	dataURI = strings.TrimSpace(dataURI)
	if dataURI == "" || !strings.HasPrefix(dataURI, "data:") {
		return "", ErrInvalidInput
	}

	body, err := json.Marshal(uploadRequest{DataURI: dataURI})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Ref == "" {
		return "", errors.New("image service returned empty ref")
	}
	return out.Ref, nil
}

func (c *Client) Delete(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ErrInvalidInput
	}

	u := c.baseURL + "/images?ref=" + url.QueryEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete image: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Noop satisfies Store when no image service is configured. Uploads are
// rejected; deletes succeed silently.
type Noop struct{}

func (Noop) Upload(ctx context.Context, dataURI string) (string, error) {
	_ = ctx
	_ = dataURI
	return "", errors.New("image service not configured")
}

func (Noop) Delete(ctx context.Context, ref string) error {
	_ = ctx
	_ = ref
	return nil
}
