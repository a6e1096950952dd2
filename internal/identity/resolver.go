package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/support-integrations/internal/audit"
	"github.com/wolfman30/support-integrations/internal/contacts"
	"github.com/wolfman30/support-integrations/pkg/logging"
)

// ErrNotFound is returned by ResolveByID when the contact is gone.
var ErrNotFound = errors.New("identity: contact not found")

const lookupDigits = 10

// Strategy names the lookup key that produced an id.
type Strategy string

const (
	StrategyPhone Strategy = "phone"
	StrategyEmail Strategy = "email"
	StrategyFetch Strategy = "details"
)

// Status describes how a resolution ended.
type Status string

const (
	// StatusAlreadyLinked means the contact had an external id; no calls made.
	StatusAlreadyLinked Status = "already_linked"
	// StatusUnresolved means no lookup produced an id; nothing was written.
	StatusUnresolved Status = "unresolved"
	// StatusLinked means an id was recorded and the contact saved.
	StatusLinked Status = "linked"
	// StatusInFlight means another worker holds the claim for this contact.
	StatusInFlight Status = "in_flight"
)

// Resolution reports what Resolve did.
type Resolution struct {
	Status     Status
	ExternalID string
	Strategy   Strategy
	Filled     []string
	// DetailsErr is set when the id was saved but the profile fetch failed.
	DetailsErr error
}

// Directory is the identity service.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (string, error)
	FindByEmail(ctx context.Context, email string) (string, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// Claimer guards against two workers enriching the same contact at once.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// LookupRecorder counts lookups per strategy and result.
type LookupRecorder interface {
	ObserveIdentityLookup(strategy, result string)
}

// Auditor persists audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPhonePrefix overrides DefaultPhonePrefix.
func WithPhonePrefix(prefix string) Option {
	return func(r *Resolver) {
		if prefix != "" {
			r.phonePrefix = prefix
		}
	}
}

// WithClaims enables the concurrent-enrichment claim.
func WithClaims(c Claimer, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.claims = c
		if ttl > 0 {
			r.claimTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records lookups.
func WithMetrics(m LookupRecorder) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithAuditor records a contact.enriched event per linked contact.
func WithAuditor(a Auditor) Option {
	return func(r *Resolver) {
		r.audit = a
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// Resolver runs the phone-then-email lookup chain and backfills contacts.
type Resolver struct {
	directory   Directory
	contacts    contacts.Store
	phonePrefix string
	claims      Claimer
	claimTTL    time.Duration
	logger      *logging.Logger
	metrics     LookupRecorder
	audit       Auditor
	tracer      trace.Tracer
}

// NewResolver panics when directory or store is nil.
func NewResolver(directory Directory, store contacts.Store, opts ...Option) *Resolver {
	if directory == nil {
		panic("identity: directory required")
	}
	if store == nil {
		panic("identity: contact store required")
	}
	r := &Resolver{
		directory:   directory,
		contacts:    store,
		phonePrefix: DefaultPhonePrefix,
		claimTTL:    time.Minute,
		logger:      logging.Default(),
		tracer:      otel.Tracer("support.internal.identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveByID loads the contact and resolves it.
func (r *Resolver) ResolveByID(ctx context.Context, contactID int64) (Resolution, error) {
	contact, err := r.contacts.Get(ctx, contactID)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			return Resolution{}, fmt.Errorf("identity: contact %d: %w: %w", contactID, ErrNotFound, err)
		}
		return Resolution{}, fmt.Errorf("identity: load contact %d: %w", contactID, err)
	}
	return r.Resolve(ctx, contact)
}

// Resolve links contact to its external user. It is idempotent: a contact
// that already carries an external id is returned untouched without any
// network call. The contact is saved at most once.
func (r *Resolver) Resolve(ctx context.Context, contact *contacts.Contact) (Resolution, error) {
	if _, ok := contact.ExternalID(); ok {
		return Resolution{Status: StatusAlreadyLinked, ExternalID: contact.ExternalIDString()}, nil
	}

	ctx, span := r.tracer.Start(ctx, "identity.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int64("support.contact_id", contact.ID))

	if r.claims != nil {
		key := claimKey(contact.ID)
		ok, err := r.claims.Claim(ctx, key, r.claimTTL)
		switch {
		case err != nil:
			r.logger.Warn("enrichment claim unavailable, continuing", "contact_id", contact.ID, "error", err)
		case !ok:
			r.logger.Info("contact enrichment already in flight", "contact_id", contact.ID)
			span.SetAttributes(attribute.String("support.identity_status", string(StatusInFlight)))
			return Resolution{Status: StatusInFlight}, nil
		default:
			defer func() {
				if err := r.claims.Release(context.WithoutCancel(ctx), key); err != nil {
					r.logger.Warn("failed to release enrichment claim", "contact_id", contact.ID, "error", err)
				}
			}()
		}
	}

	res, err := r.resolve(ctx, contact)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("support.identity_status", string(res.Status)),
		attribute.String("support.identity_strategy", string(res.Strategy)),
	)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, contact *contacts.Contact) (Resolution, error) {
	log := r.logger.With("contact_id", contact.ID)

	id, strategy := r.lookup(ctx, log, contact)
	if id == "" {
		log.Info("no external user matched contact")
		return Resolution{Status: StatusUnresolved}, nil
	}

	res := Resolution{Status: StatusLinked, ExternalID: id, Strategy: strategy}
	if contact.SetExternalID(id) {
		res.Filled = append(res.Filled, FieldExternalID)
	}

	if !contact.HasPhone() || !contact.HasEmail() {
		user, err := r.directory.GetUser(ctx, id)
		if err != nil {
			r.observe(StrategyFetch, err, true)
			log.Warn("failed to fetch external user details", "external_id", id, "error", err)
			res.DetailsErr = err
		} else {
			r.observe(StrategyFetch, nil, true)
			merged, filled := MergeMissing(
				Profile{Phone: contact.PhoneNumber, Email: contact.Email},
				Profile{Phone: NormalizePhone(user.Phone, r.phonePrefix), Email: user.Email},
			)
			contact.PhoneNumber = merged.Phone
			contact.Email = merged.Email
			res.Filled = append(res.Filled, filled...)
		}
	}

	if err := r.contacts.Save(ctx, contact); err != nil {
		return res, fmt.Errorf("identity: save contact %d: %w", contact.ID, err)
	}
	log.Info("contact linked to external user",
		"external_id", id,
		"strategy", string(strategy),
		"filled", res.Filled,
	)
	r.record(ctx, contact, res)
	return res, nil
}

// lookup runs the fallback chain and stops at the first id.
func (r *Resolver) lookup(ctx context.Context, log *logging.Logger, contact *contacts.Contact) (string, Strategy) {
	if digits := LastDigits(contact.PhoneNumber, lookupDigits); digits != "" {
		id, err := r.directory.FindByPhone(ctx, digits)
		r.observe(StrategyPhone, err, id != "")
		if err != nil {
			log.Warn("identity lookup by phone failed", "error", err)
		}
		if id != "" {
			return id, StrategyPhone
		}
	}
	if contact.HasEmail() {
		id, err := r.directory.FindByEmail(ctx, contact.Email)
		r.observe(StrategyEmail, err, id != "")
		if err != nil {
			log.Warn("identity lookup by email failed", "error", err)
		}
		if id != "" {
			return id, StrategyEmail
		}
	}
	return "", ""
}

func (r *Resolver) observe(strategy Strategy, err error, found bool) {
	if r.metrics == nil {
		return
	}
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case found:
		result = "found"
	}
	r.metrics.ObserveIdentityLookup(string(strategy), result)
}

func (r *Resolver) record(ctx context.Context, contact *contacts.Contact, res Resolution) {
	if r.audit == nil {
		return
	}
	err := r.audit.Record(ctx, audit.Event{
		Type:         audit.EventContactEnriched,
		AccountID:    contact.AccountID,
		ContactID:    contact.ID,
		Outcome:      string(res.Strategy),
		FilledFields: res.Filled,
	})
	if err != nil {
		r.logger.Warn("failed to record audit event", "contact_id", contact.ID, "error", err)
	}
}

func claimKey(contactID int64) string {
	return "enrich:contact:" + strconv.FormatInt(contactID, 10)
}
