package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// InsertTenant stores a new tenant. It returns errs.ErrConflict when the org or
// the secret hash is already taken.
func (d *DB) InsertTenant(ctx context.Context, p models.TenantProfile, secretHash string) error {
	query := d.Rebind(`
		INSERT INTO tenants (org, url, bucket, measurement, field, secret_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := d.db.ExecContext(ctx, query,
		p.Org,
		p.URL,
		p.Bucket,
		p.Measurement,
		p.Field,
		secretHash,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	d.observe("insert_tenant", err)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("inserting tenant %q: %w", p.Org, errs.ErrConflict)
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	d.logger.Debug().Str("org", p.Org).Msg("inserted tenant")
	return nil
}

// GetTenant returns the tenant profile and its secret hash. A missing tenant yields (nil, "", nil).
func (d *DB) GetTenant(ctx context.Context, org string) (*models.TenantProfile, string, error) {
	query := d.Rebind(`
		SELECT org, url, bucket, measurement, field, secret_hash, created_at, updated_at
		FROM tenants
		WHERE org = ?
	`)

	var p models.TenantProfile
	var secretHash string
	err := d.db.QueryRowContext(ctx, query, org).Scan(
		&p.Org,
		&p.URL,
		&p.Bucket,
		&p.Measurement,
		&p.Field,
		&secretHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting tenant: %w", err)
	}

	return &p, secretHash, nil
}

// UpdateTenant applies the non-nil fields of u to the tenant. It reports whether a row matched.
func (d *DB) UpdateTenant(ctx context.Context, org string, u models.TenantUpdate, now time.Time) (bool, error) {
	var sets []string
	var args []any

	add := func(column string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, *v)
	}
	add("url", u.URL)
	add("bucket", u.Bucket)
	add("measurement", u.Measurement)
	add("field", u.Field)

	if len(sets) == 0 {
		return true, nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, now.UTC(), org)

	query := d.Rebind("UPDATE tenants SET " + strings.Join(sets, ", ") + " WHERE org = ?")
	res, err := d.db.ExecContext(ctx, query, args...)
	d.observe("update_tenant", err)
	if err != nil {
		return false, fmt.Errorf("updating tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating tenant: %w", err)
	}

	d.logger.Debug().Str("org", org).Int("fields", len(sets)-1).Msg("updated tenant")
	return n > 0, nil
}
