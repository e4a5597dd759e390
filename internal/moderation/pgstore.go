package moderation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PGStore keeps pending submissions in Postgres for multi-instance or
// restart-heavy deployments.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore wraps an open connection; the schema comes from migrations.
func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

type postRow struct {
	ID         string        `db:"id"`
	Title      string        `db:"title"`
	Data       []byte        `db:"data"`
	UserID     int64         `db:"user_id"`
	Username   string        `db:"username"`
	FullName   string        `db:"full_name"`
	ApprovedBy pq.Int64Array `db:"approved_by"`
	RejectedBy pq.Int64Array `db:"rejected_by"`
}

func (r postRow) toPost() (*Post, error) {
	var data map[string]any
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, fmt.Errorf("post data decode: %w", err)
		}
	}
	return &Post{
		ID:         r.ID,
		Title:      r.Title,
		Data:       data,
		UserID:     r.UserID,
		Username:   r.Username,
		FullName:   r.FullName,
		ApprovedBy: []int64(r.ApprovedBy),
		RejectedBy: []int64(r.RejectedBy),
	}, nil
}

func (p *PGStore) Add(ctx context.Context, post *Post) error {
	data, err := json.Marshal(post.Data)
	if err != nil {
		return fmt.Errorf("post data encode: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO posts (id, title, data, user_id, username, full_name, approved_by, rejected_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, post.Title, data, post.UserID, post.Username, post.FullName,
		pq.Int64Array(post.ApprovedBy), pq.Int64Array(post.RejectedBy),
	)
	if err != nil {
		return fmt.Errorf("post insert: %w", err)
	}
	return nil
}

func (p *PGStore) Get(ctx context.Context, id string) (*Post, error) {
	var row postRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, title, data, user_id, username, full_name, approved_by, rejected_by
		FROM posts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post select: %w", err)
	}
	return row.toPost()
}

func (p *PGStore) Update(ctx context.Context, post *Post) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE posts SET approved_by = $2, rejected_by = $3 WHERE id = $1`,
		post.ID, pq.Int64Array(post.ApprovedBy), pq.Int64Array(post.RejectedBy),
	)
	if err != nil {
		return fmt.Errorf("post update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (p *PGStore) Remove(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("post delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (p *PGStore) List(ctx context.Context) ([]*Post, error) {
	var rows []postRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, title, data, user_id, username, full_name, approved_by, rejected_by
		FROM posts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("post list: %w", err)
	}
	posts := make([]*Post, 0, len(rows))
	for _, r := range rows {
		post, err := r.toPost()
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}
