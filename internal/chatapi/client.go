// Package chatapi is the REST client for the storefront messaging service.
package chatapi

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

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/models"
)

const (
	defaultTimeout           = 10 * time.Second
	defaultRequestsPerSecond = 10
	defaultBurst             = 20
	maxErrorBody             = 512
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 401, and error bodies reporting "Unauthorized", onto
// auth.ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || strings.Contains(e.Body, "Unauthorized") {
		return auth.ErrUnauthorized
	}
	return nil
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Tokens            auth.TokenProvider
	HTTPClient        *http.Client
}

// Client talks to the messaging REST API with bearer authentication.
type Client struct {
	baseURL *url.URL
	tokens  auth.TokenProvider
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("base url required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", base.Scheme)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token provider required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		baseURL: base,
		tokens:  cfg.Tokens,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logging.Component("chatapi"),
	}, nil
}

// ListConversations calls GET /conversations.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// ListMessages calls GET /conversations/{id}/messages. The result is returned
// as delivered: possibly unsorted and with duplicates.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", conversationID, err)
	}
	return out, nil
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage calls POST /conversations/{id}/messages and returns the created
// message.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	var out models.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, sendMessageRequest{Content: content}, &out); err != nil {
		return models.Message{}, fmt.Errorf("send message %s: %w", conversationID, err)
	}
	if out.ConversationID == "" {
		out.ConversationID = conversationID
	}
	if err := out.Validate(); err != nil {
		return models.Message{}, fmt.Errorf("send message %s: invalid response: %w", conversationID, err)
	}
	return out, nil
}

// DeleteConversation calls DELETE /conversations?id={id}.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	query := url.Values{"id": []string{conversationID}}
	if err := c.do(ctx, http.MethodDelete, "/conversations", query, nil, nil); err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, ok := c.tokens.Token()
	if !ok {
		return auth.ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := *c.baseURL
	endpoint.RawPath = c.baseURL.EscapedPath() + path
	unescaped, err := url.PathUnescape(endpoint.RawPath)
	if err != nil {
		return fmt.Errorf("build path: %w", err)
	}
	endpoint.Path = unescaped
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       logging.Redact(strings.TrimSpace(string(raw))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
