package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrTransport wraps network failures reaching the panel.
var ErrTransport = errors.New("panel: transport error")

// StatusError carries a non-2xx answer from the panel so the caller can
// hand the same status back to its own client.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("panel: unexpected status %d", e.Code)
}

// AuthEvent is the payload forwarded to the main panel after each login.
type AuthEvent struct {
	SteamID    string    `json:"steam_id"`
	Username   string    `json:"username"`
	UserIP     string    `json:"user_ip"`
	DomainID   int       `json:"domain_id"`
	Avatar     string    `json:"avatar,omitempty"`
	ProfileURL string    `json:"profile_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Notifier struct {
	url    string
	token  string
	client *resty.Client
}

func NewNotifier(url, token string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		url:    url,
		token:  token,
		client: resty.New().SetTimeout(timeout),
	}
}

// Enabled reports whether a panel URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify posts the event once; delivery is not retried.
func (n *Notifier) Notify(ctx context.Context, event AuthEvent) error {
	if !n.Enabled() {
		return nil
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event)
	if n.token != "" {
		req.SetAuthToken(n.token)
	}

	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !resp.IsSuccess() {
		body := string(resp.Body())
		if len(body) > 512 {
			body = body[:512]
		}
		return &StatusError{Code: resp.StatusCode(), Body: body}
	}
	return nil
}
