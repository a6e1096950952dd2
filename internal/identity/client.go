// Package identity links contacts to users in the external identity service
// and backfills the contact fields that service knows about.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfman30/support-integrations/internal/integration"
)

// ErrLookupFailed wraps any identity call that produced no usable answer:
// transport failure, non-200 status or an undecodable body.
var ErrLookupFailed = errors.New("identity: lookup failed")

// User is the profile returned by GET /v1/users/{id}.
type User struct {
	ID    string
	Phone string
	Email string
}

// Caller is the subset of integration.Client used here.
type Caller interface {
	Call(ctx context.Context, method, url string, payload any) (*integration.Response, error)
}

// Client calls the identity service.
type Client struct {
	host   string
	caller Caller
}

// NewClient builds a client for host (e.g. "http://thor.production").
func NewClient(host string, caller Caller) *Client {
	if caller == nil {
		caller = integration.New("identity")
	}
	return &Client{host: strings.TrimRight(host, "/"), caller: caller}
}

// FindByPhone looks up a user id by the last digits of a phone number. An
// empty id with a nil error means the service answered but knows no user.
func (c *Client) FindByPhone(ctx context.Context, phone string) (string, error) {
	return c.findBy(ctx, map[string]string{"phone": phone})
}

// FindByEmail looks up a user id by email.
func (c *Client) FindByEmail(ctx context.Context, email string) (string, error) {
	return c.findBy(ctx, map[string]string{"email": email})
}

func (c *Client) findBy(ctx context.Context, body map[string]string) (string, error) {
	resp, err := c.caller.Call(ctx, http.MethodPost, c.host+"/v1/users/findBy", body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: findBy returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var users []map[string]any
	if err := decode(resp.Body, &users); err != nil {
		return "", fmt.Errorf("%w: decode findBy: %w", ErrLookupFailed, err)
	}
	if len(users) == 0 || users[0] == nil {
		return "", nil
	}
	return idString(users[0]["id"]), nil
}

// GetUser fetches the full profile for a resolved id.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	resp, err := c.caller.Call(ctx, http.MethodGet, c.host+"/v1/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: get user returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var raw map[string]any
	if err := decode(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode user: %w", ErrLookupFailed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty user body", ErrLookupFailed)
	}
	return &User{
		ID:    idString(raw["id"]),
		Phone: idString(raw["phone"]),
		Email: idString(raw["email"]),
	}, nil
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// idString renders ids and phone numbers that may arrive as JSON numbers.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
