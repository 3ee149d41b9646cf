// Package tenant implements the tenant registry: registration, authorized
// lookup and partial updates of tenant connection profiles.
package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// secretBytes is the entropy of a tenant secret (256 bits).
const secretBytes = 32

// Store is the persistence required by the registry.
type Store interface {
	InsertTenant(ctx context.Context, p models.TenantProfile, secretHash string) error
	GetTenant(ctx context.Context, org string) (*models.TenantProfile, string, error)
	UpdateTenant(ctx context.Context, org string, u models.TenantUpdate, now time.Time) (bool, error)
	ResetAll(ctx context.Context) error
}

// Registry maps organizations to their connection profiles.
type Registry struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a new Registry.
func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "tenant").Logger(),
	}
}

// Register creates a tenant and returns its freshly generated secret.
func (r *Registry) Register(ctx context.Context, p models.TenantProfile) (string, error) {
	p.Org = strings.TrimSpace(p.Org)
	if err := validateProfile(p); err != nil {
		return "", err
	}

	secret, err := newSecret()
	if err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}

	now := r.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := r.store.InsertTenant(ctx, p, hashSecret(secret)); err != nil {
		return "", err
	}

	r.logger.Info().Str("org", p.Org).Msg("tenant registered")
	return secret, nil
}

// Lookup returns the profile of org if secret matches. Unknown orgs and wrong
// secrets both yield errs.ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, org, secret string) (*models.TenantProfile, error) {
	org = strings.TrimSpace(org)
	if org == "" || secret == "" {
		return nil, errs.Validation("org and secret are required")
	}

	p, storedHash, err := r.store.GetTenant(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	presented := hashSecret(secret)
	if p == nil {
		// Keep the comparison cost identical for unknown orgs.
		subtle.ConstantTimeCompare([]byte(presented), []byte(presented))
		return nil, errs.ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) != 1 {
		r.logger.Warn().Str("org", org).Msg("secret mismatch")
		return nil, errs.ErrNotFound
	}

	return p, nil
}

// Update applies the supplied fields of u after authorizing the caller.
func (r *Registry) Update(ctx context.Context, org, secret string, u models.TenantUpdate) (*models.TenantProfile, error) {
	org = strings.TrimSpace(org)
	for name, v := range map[string]*string{"url": u.URL, "bucket": u.Bucket, "measurement": u.Measurement, "field": u.Field} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, errs.Validation("%s must not be empty", name)
		}
	}

	current, err := r.Lookup(ctx, org, secret)
	if err != nil {
		return nil, err
	}
	if u.Empty() {
		return current, nil
	}

	ok, err := r.store.UpdateTenant(ctx, org, u, r.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound
	}

	updated, _, err := r.store.GetTenant(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("reloading tenant: %w", err)
	}
	if updated == nil {
		return nil, errs.ErrNotFound
	}

	r.logger.Info().Str("org", org).Msg("tenant updated")
	return updated, nil
}

// ResetAll removes all tenants and all ledger state.
func (r *Registry) ResetAll(ctx context.Context) error {
	return r.store.ResetAll(ctx)
}

func validateProfile(p models.TenantProfile) error {
	fields := []struct {
		name, value string
	}{
		{"org", p.Org},
		{"url", p.URL},
		{"bucket", p.Bucket},
		{"measurement", p.Measurement},
		{"field", p.Field},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errs.Validation("%s is required", f.name)
		}
	}
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
