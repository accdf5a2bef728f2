package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/dbx"
	"github.com/erazemk/lostfound/internal/model"
)

const processColumns = `p.id, p.item_id, p.user_id, p.requestor_user_id, p.status, p.message,
	p.verification_attempts, p.version, p.created_at, p.updated_at`

// ProcessFilter narrows ListProcesses. Zero values match everything.
type ProcessFilter struct {
	UserID string
	Status string
}

// CreateProcess inserts p. An empty ID is replaced with a new UUID.
func CreateProcess(ctx context.Context, db dbx.DBTX, p *model.Process) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Version = 1

	_, err := db.ExecContext(ctx,
		`INSERT INTO processes (id, item_id, user_id, requestor_user_id, status, message,
		                        verification_attempts, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ItemID, p.UserID, p.RequestorUserID, p.Status, p.Message,
		p.VerificationAttempts, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating process: %w", err)
	}
	return nil
}

// GetProcess returns a process by ID, or nil if it does not exist.
func GetProcess(ctx context.Context, db dbx.DBTX, id string) (*model.Process, error) {
	return getProcess(ctx, db, `p.id = ?`, id)
}

// GetProcessByItem returns the process of an item, or nil if it has none.
func GetProcessByItem(ctx context.Context, db dbx.DBTX, itemID string) (*model.Process, error) {
	return getProcess(ctx, db, `p.item_id = ?`, itemID)
}

func getProcess(ctx context.Context, db dbx.DBTX, where string, arg any) (*model.Process, error) {
	p := &model.Process{}
	err := db.QueryRowContext(ctx,
		`SELECT `+processColumns+` FROM processes p WHERE `+where, arg,
	).Scan(processDest(p)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting process: %w", err)
	}
	return p, nil
}

// ListProcesses returns processes matching filter with their items attached,
// oldest first.
func ListProcesses(ctx context.Context, db dbx.DBTX, filter ProcessFilter) ([]model.Process, error) {
	query := `SELECT ` + processColumns + `, ` + itemColumns + `
	          FROM processes p
	          JOIN items i ON i.id = p.item_id
	          WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND (p.user_id = ? OR p.requestor_user_id = ?)`
		args = append(args, filter.UserID, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, filter.Status)
	}

	query += ` ORDER BY p.created_at, p.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var processes []model.Process
	for rows.Next() {
		var p model.Process
		item := &model.Item{}
		dest := append(processDest(&p), itemDest(item)...)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning process: %w", err)
		}
		p.Item = item
		processes = append(processes, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	rows.Close()

	for i := range processes {
		item := processes[i].Item
		item.AdditionalDescriptions, err = listDescriptions(ctx, db, item.ID)
		if err != nil {
			return nil, err
		}
	}
	return processes, nil
}

// UpdateProcess replaces every mutable field of p. It fails with ErrConflict
// when p.Version is stale and bumps p.Version on success.
func UpdateProcess(ctx context.Context, db dbx.DBTX, p *model.Process) error {
	result, err := db.ExecContext(ctx,
		`UPDATE processes SET user_id = ?, requestor_user_id = ?, status = ?, message = ?,
		        verification_attempts = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		p.UserID, p.RequestorUserID, p.Status, p.Message,
		p.VerificationAttempts, p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("updating process: %w", err)
	}
	if err := checkOneRow(result, "process"); err != nil {
		return err
	}
	p.Version++
	return nil
}

// DeleteProcess removes a process and, through ON DELETE CASCADE, its
// verification questions.
func DeleteProcess(ctx context.Context, db dbx.DBTX, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM processes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting process: %w", err)
	}
	return nil
}

func processDest(p *model.Process) []any {
	return []any{
		&p.ID, &p.ItemID, &p.UserID, &p.RequestorUserID, &p.Status, &p.Message,
		&p.VerificationAttempts, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	}
}
