package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const callTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type User struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Chat struct {
	ID      string               `json:"id"`
	UserIDs []string             `json:"userIds"`
	Users   []User               `json:"users"`
	ReadAt  map[string]time.Time `json:"readAt"`
}

type Message struct {
	ID          string    `json:"id"`
	User        User      `json:"user"`
	CreatedAt   time.Time `json:"createdAt"`
	Text        string    `json:"text,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	UnreadCount int       `json:"unreadCount"`
}

// Event is one server-sent event of a conversation stream.
type Event struct {
	Type     string               `json:"type"`
	ChatID   string               `json:"chatId"`
	Messages []Message            `json:"messages,omitempty"`
	ReadAt   map[string]time.Time `json:"readAt,omitempty"`
	Sending  bool                 `json:"sending"`
}

// Client talks to a chatsync server.
type Client struct {
	r *resty.Client
}

func NewClient(baseURL, token string) *Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if token != "" {
		r.SetAuthToken(token)
	}
	return &Client{r: r}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.r.R().SetContext(ctx).SetError(&APIError{}).ForceContentType("application/json")
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}

func (c *Client) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out Session
	err := check(c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password, "name": name}).
		SetResult(&out).
		Post("/v1/signup"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Signin(ctx context.Context, email, password string) (*Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out Session
	err := check(c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post("/v1/signin"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out struct {
		Users []User `json:"users"`
	}
	if err := check(c.request(ctx).SetResult(&out).Get("/v1/users")); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// Open loads or creates the conversation with the given participants.
func (c *Client) Open(ctx context.Context, participants []string) (*Chat, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out Chat
	err := check(c.request(ctx).
		SetBody(map[string][]string{"participants": participants}).
		SetResult(&out).
		Post("/v1/chats"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendText(ctx context.Context, chatID, text string) (*Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out Message
	err := check(c.request(ctx).
		SetPathParam("chatId", chatID).
		SetBody(map[string]string{"text": text}).
		SetResult(&out).
		Post("/v1/chats/{chatId}/messages"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMedia uploads the file at path as an image or audio message.
func (c *Client) SendMedia(ctx context.Context, chatID, kind, path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out Message
	err = check(c.request(ctx).
		SetPathParam("chatId", chatID).
		SetQueryParams(map[string]string{"kind": kind, "filename": filepath.Base(path)}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(f).
		SetResult(&out).
		Post("/v1/chats/{chatId}/media"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Messages(ctx context.Context, chatID string) ([]Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var out struct {
		Messages []Message `json:"messages"`
	}
	err := check(c.request(ctx).
		SetPathParam("chatId", chatID).
		SetResult(&out).
		Get("/v1/chats/{chatId}/messages"))
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return check(c.request(ctx).SetPathParam("chatId", chatID).Post("/v1/chats/{chatId}/read"))
}

// Watch streams conversation events to fn until ctx is done or the server
// closes the stream.
func (c *Client) Watch(ctx context.Context, chatID string, fn func(Event)) error {
	resp, err := c.r.R().
		SetContext(ctx).
		SetPathParam("chatId", chatID).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/v1/chats/{chatId}/events")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() >= 300 {
		apiErr := &APIError{Status: resp.StatusCode()}
		data, _ := io.ReadAll(body)
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(ev)
	}
	if err := sc.Err(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return nil
}
