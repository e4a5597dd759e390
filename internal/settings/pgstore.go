package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PGStore keeps the settings snapshot in a single-row Postgres table
// so several bot instances can share one roster.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore wraps an open connection; the schema comes from migrations.
func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

type settingsRow struct {
	Admins            pq.Int64Array `db:"admins"`
	Moderators        pq.Int64Array `db:"moderators"`
	Channel           int64         `db:"channel_id"`
	MinApproval       int           `db:"min_approval"`
	MinRejection      int           `db:"min_rejection"`
	ActiveTemplates   pq.Int64Array `db:"active_templates"`
	InactiveTemplates pq.Int64Array `db:"inactive_templates"`
}

func (p *PGStore) Load(ctx context.Context) (Snapshot, bool, error) {
	var row settingsRow
	err := p.db.GetContext(ctx, &row, `
		SELECT admins, moderators, channel_id, min_approval, min_rejection, active_templates, inactive_templates
		FROM bot_settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("settings load: %w", err)
	}

	return Snapshot{
		Admins:            []int64(row.Admins),
		Moderators:        []int64(row.Moderators),
		Channel:           row.Channel,
		MinApproval:       row.MinApproval,
		MinRejection:      row.MinRejection,
		ActiveTemplates:   toInts(row.ActiveTemplates),
		InactiveTemplates: toInts(row.InactiveTemplates),
	}, true, nil
}

func (p *PGStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bot_settings (id, admins, moderators, channel_id, min_approval, min_rejection, active_templates, inactive_templates)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			admins = EXCLUDED.admins,
			moderators = EXCLUDED.moderators,
			channel_id = EXCLUDED.channel_id,
			min_approval = EXCLUDED.min_approval,
			min_rejection = EXCLUDED.min_rejection,
			active_templates = EXCLUDED.active_templates,
			inactive_templates = EXCLUDED.inactive_templates,
			updated_at = now()`,
		pq.Int64Array(snap.Admins),
		pq.Int64Array(snap.Moderators),
		snap.Channel,
		snap.MinApproval,
		snap.MinRejection,
		toInt64s(snap.ActiveTemplates),
		toInt64s(snap.InactiveTemplates),
	)
	if err != nil {
		return fmt.Errorf("settings save: %w", err)
	}
	return nil
}

func toInts(a pq.Int64Array) []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

func toInt64s(a []int) pq.Int64Array {
	out := make(pq.Int64Array, len(a))
	for i, v := range a {
		out[i] = int64(v)
	}
	return out
}
