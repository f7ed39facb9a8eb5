package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"courtside/logger"
	"courtside/models"
	"courtside/wire"
)

// ErrUnauthorized is wrapped by RequestError when the server answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// RequestError is a REST call that came back with a non-2xx status.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the conversation history and auth endpoints.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

type conversationList struct {
	Conversations []models.Conversation `json:"conversations"`
}

type createConversationRequest struct {
	OtherUserID int64 `json:"otherUserId"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorBody struct {
	Error string `json:"error"`
}

// New creates a client for baseURL. token may be empty until Login.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c, log: logger.Log.Named("api")}
}

// SetToken replaces the bearer token used for later calls.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out conversationList
	if err := c.do(ctx, "list conversations", http.MethodGet, "/api/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// ListMessages returns one page of history, oldest first. offset counts
// messages back from the newest.
func (c *Client) ListMessages(ctx context.Context, conversationID int64, limit, offset int) (models.MessagePage, error) {
	var page models.MessagePage
	path := "/api/conversations/" + strconv.FormatInt(conversationID, 10) + "/messages"
	query := map[string]string{
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	}
	if err := c.do(ctx, "list messages", http.MethodGet, path, query, nil, &page); err != nil {
		return models.MessagePage{}, err
	}
	return page, nil
}

// CreateConversation returns the conversation with otherUserID, creating it
// on first contact.
func (c *Client) CreateConversation(ctx context.Context, otherUserID int64) (models.Conversation, error) {
	var conv models.Conversation
	body := createConversationRequest{OtherUserID: otherUserID}
	if err := c.do(ctx, "create conversation", http.MethodPost, "/api/conversations", nil, body, &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Login exchanges credentials for a bearer token and starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	body := credentials{Username: username, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", nil, body, &res); err != nil {
		return LoginResult{}, err
	}
	c.SetToken(res.Token)
	return res, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (models.UserSummary, error) {
	var u models.UserSummary
	if err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", nil, nil, &u); err != nil {
		return models.UserSummary{}, err
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query map[string]string, body, dst any) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		raw, err := wire.MarshalSnake(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(raw)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		reqErr := &RequestError{Op: op, StatusCode: resp.StatusCode()}
		var eb errorBody
		if wire.UnmarshalSnake(resp.Body(), &eb) == nil {
			reqErr.Message = eb.Error
		}
		c.log.Debug("request failed", zap.String("op", op), zap.Int("status", resp.StatusCode()))
		return reqErr
	}
	if err := wire.UnmarshalSnake(resp.Body(), dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
