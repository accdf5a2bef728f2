package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/lostfound/internal/dbx"
	"github.com/erazemk/lostfound/internal/model"
)

// UpsertUser creates the user or refreshes its profile fields. CreatedAt is
// kept from the first insert.
func UpsertUser(ctx context.Context, db dbx.DBTX, u *model.User) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, student_id, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     email = excluded.email,
		     display_name = excluded.display_name,
		     student_id = excluded.student_id,
		     is_admin = excluded.is_admin,
		     updated_at = excluded.updated_at`,
		u.ID, u.Email, u.DisplayName, u.StudentID, u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID, or nil if it does not exist.
func GetUser(ctx context.Context, db dbx.DBTX, id string) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, display_name, student_id, is_admin, created_at, updated_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.StudentID, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}
