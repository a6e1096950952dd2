package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/support-integrations/internal/contacts"
)

// ContactStore implements contacts.Store.
type ContactStore struct {
	db rowQuerier
}

var _ contacts.Store = (*ContactStore)(nil)

func (s *ContactStore) Get(ctx context.Context, id int64) (*contacts.Contact, error) {
	query := `
		SELECT id, account_id, name, email, phone_number, custom_attributes
		FROM contacts
		WHERE id = $1
	`
	var (
		c          contacts.Contact
		name       pgtype.Text
		email      pgtype.Text
		phone      pgtype.Text
		attributes []byte
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.AccountID, &name, &email, &phone, &attributes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contacts.ErrNotFound
		}
		return nil, fmt.Errorf("store: select contact %d: %w", id, err)
	}
	c.Name = textOrEmpty(name)
	c.Email = textOrEmpty(email)
	c.PhoneNumber = textOrEmpty(phone)
	attrs, err := decodeAttributes(attributes)
	if err != nil {
		return nil, fmt.Errorf("store: contact %d custom_attributes: %w", id, err)
	}
	c.CustomAttributes = attrs
	return &c, nil
}

// Save fills the enrichment-owned columns. Email and phone are written only
// where the row has none, and external_id is merged into custom_attributes
// only when the row lacks one, so a concurrent edit made after the contact
// was loaded is kept. Email is normalized first so a blank value is NULL.
func (s *ContactStore) Save(ctx context.Context, contact *contacts.Contact) error {
	contact.Normalize()

	query := `
		UPDATE contacts
		SET email = COALESCE(NULLIF(email, ''), $2),
			phone_number = COALESCE(NULLIF(phone_number, ''), $3),
			custom_attributes = CASE
				WHEN $4::text IS NULL OR custom_attributes->>'external_id' IS NOT NULL THEN custom_attributes
				ELSE jsonb_set(COALESCE(custom_attributes, '{}'::jsonb), '{external_id}', to_jsonb($4::text))
			END,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, contact.ID, nullText(contact.Email), nullText(contact.PhoneNumber), nullText(contact.ExternalIDString()))
	if err != nil {
		return fmt.Errorf("store: update contact %d: %w", contact.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return contacts.ErrNotFound
	}
	return nil
}

func decodeAttributes(raw []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}
