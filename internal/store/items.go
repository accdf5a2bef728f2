package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/dbx"
	"github.com/erazemk/lostfound/internal/model"
)

const itemColumns = `i.id, i.name, i.description, i.category, i.location, i.image, i.student_id,
	i.reporter_id, i.status, i.approved, i.version, i.created_at, i.updated_at`

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	Status       string
	Category     string
	ReporterID   string
	Query        string
	ApprovedOnly bool
}

// CreateItem inserts item and its additional descriptions. An empty ID is
// replaced with a new UUID.
func CreateItem(ctx context.Context, db dbx.DBTX, item *model.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Version = 1

	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, name, description, category, location, image, student_id,
		                    reporter_id, status, approved, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, item.Category, item.Location, item.Image, item.StudentID,
		item.ReporterID, item.Status, item.Approved, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}

	return replaceDescriptions(ctx, db, item.ID, item.AdditionalDescriptions)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db dbx.DBTX, id string) (*model.Item, error) {
	item := &model.Item{}
	err := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id,
	).Scan(itemDest(item)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	item.AdditionalDescriptions, err = listDescriptions(ctx, db, item.ID)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns items matching filter, newest first.
func ListItems(ctx context.Context, db dbx.DBTX, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		query += ` AND i.category = ?`
		args = append(args, filter.Category)
	}
	if filter.ReporterID != "" {
		query += ` AND i.reporter_id = ?`
		args = append(args, filter.ReporterID)
	}
	if filter.ApprovedOnly {
		query += ` AND i.approved = 1`
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		query += ` AND (i.name LIKE ? OR i.description LIKE ? OR i.location LIKE ?)`
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}

	query += ` ORDER BY i.created_at DESC, i.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(itemDest(&item)...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing items: %w", err)
	}
	rows.Close()

	// Descriptions are loaded only after rows is closed: a single-connection
	// pool would otherwise block on the nested query.
	for i := range items {
		items[i].AdditionalDescriptions, err = listDescriptions(ctx, db, items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// UpdateItem replaces every mutable field of item, including its additional
// descriptions. It fails with ErrConflict when item.Version is stale and bumps
// item.Version on success.
func UpdateItem(ctx context.Context, db dbx.DBTX, item *model.Item) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, category = ?, location = ?, image = ?,
		        student_id = ?, reporter_id = ?, status = ?, approved = ?,
		        version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		item.Name, item.Description, item.Category, item.Location, item.Image,
		item.StudentID, item.ReporterID, item.Status, item.Approved,
		item.UpdatedAt, item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if err := checkOneRow(result, "item"); err != nil {
		return err
	}
	item.Version++

	return replaceDescriptions(ctx, db, item.ID, item.AdditionalDescriptions)
}

// DeleteItem removes an item. Its process, questions and descriptions go with
// it through ON DELETE CASCADE.
func DeleteItem(ctx context.Context, db dbx.DBTX, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

func itemDest(item *model.Item) []any {
	return []any{
		&item.ID, &item.Name, &item.Description, &item.Category, &item.Location, &item.Image, &item.StudentID,
		&item.ReporterID, &item.Status, &item.Approved, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	}
}

func listDescriptions(ctx context.Context, db dbx.DBTX, itemID string) ([]model.AdditionalDescription, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT title, text FROM additional_descriptions WHERE item_id = ? ORDER BY position`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing additional descriptions: %w", err)
	}
	defer rows.Close()

	descriptions := []model.AdditionalDescription{}
	for rows.Next() {
		var d model.AdditionalDescription
		if err := rows.Scan(&d.Title, &d.Text); err != nil {
			return nil, fmt.Errorf("scanning additional description: %w", err)
		}
		descriptions = append(descriptions, d)
	}
	return descriptions, rows.Err()
}

func replaceDescriptions(ctx context.Context, db dbx.DBTX, itemID string, descriptions []model.AdditionalDescription) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM additional_descriptions WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing additional descriptions: %w", err)
	}
	for i, d := range descriptions {
		_, err := db.ExecContext(ctx,
			`INSERT INTO additional_descriptions (item_id, position, title, text) VALUES (?, ?, ?, ?)`,
			itemID, i, d.Title, d.Text,
		)
		if err != nil {
			return fmt.Errorf("adding additional description: %w", err)
		}
	}
	return nil
}

func checkOneRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s update: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("updating %s: %w", what, ErrConflict)
	}
	return nil
}
