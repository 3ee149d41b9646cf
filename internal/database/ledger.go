package database

import (
	"context"
	"fmt"

	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// InsertEvent appends a ledger event. Each insert is a single atomic statement.
func (d *DB) InsertEvent(ctx context.Context, e models.LedgerEvent) error {
	query := d.Rebind(`
		INSERT INTO ledger_events (id, org, pump_id, kind, amount, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := d.db.ExecContext(ctx, query,
		e.ID,
		e.Org,
		e.PumpID,
		string(e.Kind),
		e.Amount,
		e.OccurredAt.UTC(),
	)
	d.observe("insert_event", err)
	if err != nil {
		return fmt.Errorf("inserting ledger event: %w", err)
	}

	d.logger.Debug().
		Str("org", e.Org).
		Str("pump", e.PumpID).
		Str("kind", string(e.Kind)).
		Float64("amount", e.Amount).
		Msg("inserted ledger event")

	return nil
}

// EventsFor returns all ledger events of a pump in chronological order.
func (d *DB) EventsFor(ctx context.Context, org, pumpID string) ([]models.LedgerEvent, error) {
	query := d.Rebind(`
		SELECT id, org, pump_id, kind, amount, occurred_at
		FROM ledger_events
		WHERE org = ? AND pump_id = ?
		ORDER BY occurred_at ASC, id ASC
	`)

	rows, err := d.db.QueryContext(ctx, query, org, pumpID)
	if err != nil {
		return nil, fmt.Errorf("querying ledger events: %w", err)
	}
	defer rows.Close()

	var events []models.LedgerEvent
	for rows.Next() {
		var e models.LedgerEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.Org, &e.PumpID, &kind, &e.Amount, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Kind = models.EventKind(kind)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return events, nil
}
