// Package contacts holds the contact record the enrichment resolver reads and
// backfills.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExternalIDKey is the custom attribute that marks a contact as resolved.
const ExternalIDKey = "external_id"

// ErrNotFound is returned when a contact id does not exist.
var ErrNotFound = errors.New("contacts: contact not found")

// Contact is the subset of the contact record used by integrations.
type Contact struct {
	ID               int64
	AccountID        int64
	Name             string
	PhoneNumber      string
	Email            string
	CustomAttributes map[string]any
}

// ExternalID returns the recorded external id, if any. A null value counts as
// absent.
func (c *Contact) ExternalID() (any, bool) {
	if c == nil || c.CustomAttributes == nil {
		return nil, false
	}
	v, ok := c.CustomAttributes[ExternalIDKey]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ExternalIDString renders the external id for payloads and logs.
func (c *Contact) ExternalIDString() string {
	v, ok := c.ExternalID()
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

// SetExternalID records the resolved id. An existing id is never replaced.
func (c *Contact) SetExternalID(id string) bool {
	if _, ok := c.ExternalID(); ok {
		return false
	}
	if c.CustomAttributes == nil {
		c.CustomAttributes = map[string]any{}
	}
	c.CustomAttributes[ExternalIDKey] = id
	return true
}

// HasPhone reports whether a phone number is recorded.
func (c *Contact) HasPhone() bool {
	return strings.TrimSpace(c.PhoneNumber) != ""
}

// HasEmail reports whether an email is recorded.
func (c *Contact) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

// Normalize applies the persistence rules for email before a save.
func (c *Contact) Normalize() {
	c.Email = NormalizeEmail(c.Email)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
}

// NormalizeEmail lower-cases an email; blank becomes empty so the column is
// stored as NULL and the per-account unique index ignores it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store loads and persists contacts.
type Store interface {
	Get(ctx context.Context, id int64) (*Contact, error)
	Save(ctx context.Context, contact *Contact) error
}
