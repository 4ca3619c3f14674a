package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ChatSender is the external buyer-chat channel. Implementations must treat
// any non-2xx response or transport error as a failure; the caller decides
// whether to retry.
type ChatSender interface {
	SendMessage(ctx context.Context, token, replySign, text string) error
}

// SendError is a non-2xx response from the chat API.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("chat api returned HTTP %d: %s", e.StatusCode, e.Body)
}

// WBChatClient sends seller messages through the Wildberries buyer-chat API.
type WBChatClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewWBChatClient(baseURL string, timeout time.Duration) *WBChatClient {
	return &WBChatClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// SendMessage posts one seller message. The API takes a multipart form with
// the chat's reply handle and the text, authorized by the store token.
func (c *WBChatClient) SendMessage(ctx context.Context, token, replySign, text string) error {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("replySign", replySign); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := form.WriteField("message", text); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/seller/message", body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SendError{StatusCode: resp.StatusCode, Body: string(detail)}
	}
	return nil
}
