package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mstgnz/dukapi/infra/conn"
)

// Catalog manages categories, subcategories and their specifications
type Catalog struct {
	db *conn.DB
}

func NewCatalog(db *conn.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	features, err := encodeFeatures(in.Features)
	if err != nil {
		return nil, err
	}

	cat := &Category{
		Name:        in.Name,
		Title:       in.Title,
		Subtitle:    in.Subtitle,
		Description: in.Description,
		Features:    nonNil(in.Features),
	}
	err = c.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, title, subtitle, description, features)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, in.Name, in.Title, in.Subtitle, in.Description, features).Scan(&cat.ID)
	if err != nil {
		if conn.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

func (c *Catalog) UpdateCategory(ctx context.Context, id int, in CategoryInput) (*Category, error) {
	features, err := encodeFeatures(in.Features)
	if err != nil {
		return nil, err
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE categories SET name = $1, title = $2, subtitle = $3, description = $4, features = $5
		WHERE id = $6
	`, in.Name, in.Title, in.Subtitle, in.Description, features, id)
	if err != nil {
		if conn.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrCategoryNotFound
	}

	return &Category{
		ID:          id,
		Name:        in.Name,
		Title:       in.Title,
		Subtitle:    in.Subtitle,
		Description: in.Description,
		Features:    nonNil(in.Features),
	}, nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, title, subtitle, description, features FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var cat Category
		var raw []byte
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Title, &cat.Subtitle, &cat.Description, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cat.Features = decodeFeatures(raw)
		out = append(out, cat)
	}
	return out, rows.Err()
}

// DeleteCategory refuses while products still reference the category
func (c *Catalog) DeleteCategory(ctx context.Context, id int) error {
	return c.deleteUnreferenced(ctx, "categories", id, ErrCategoryNotFound,
		`SELECT EXISTS(SELECT 1 FROM products WHERE category_id = $1)
		     OR EXISTS(SELECT 1 FROM subcategories WHERE category_id = $1)`)
}

func (c *Catalog) CreateSubcategory(ctx context.Context, in SubcategoryInput) (*Subcategory, error) {
	if err := c.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	sub := &Subcategory{Name: in.Name, Description: in.Description, CategoryID: in.CategoryID}
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO subcategories (name, description, category_id) VALUES ($1, $2, $3) RETURNING id
	`, in.Name, in.Description, in.CategoryID).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create subcategory: %w", err)
	}
	return sub, nil
}

func (c *Catalog) UpdateSubcategory(ctx context.Context, id int, in SubcategoryInput) (*Subcategory, error) {
	if err := c.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE subcategories SET name = $1, description = $2, category_id = $3 WHERE id = $4
	`, in.Name, in.Description, in.CategoryID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update subcategory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSubcategoryNotFound
	}
	return &Subcategory{ID: id, Name: in.Name, Description: in.Description, CategoryID: in.CategoryID}, nil
}

// ListSubcategories lists all subcategories, or those of categoryID when it is non-zero
func (c *Catalog) ListSubcategories(ctx context.Context, categoryID int) ([]Subcategory, error) {
	query := `SELECT id, name, description, category_id FROM subcategories`
	args := []any{}
	if categoryID > 0 {
		query += ` WHERE category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	defer rows.Close()

	out := []Subcategory{}
	for rows.Next() {
		var s Subcategory
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Catalog) DeleteSubcategory(ctx context.Context, id int) error {
	return c.deleteUnreferenced(ctx, "subcategories", id, ErrSubcategoryNotFound,
		`SELECT EXISTS(SELECT 1 FROM products WHERE subcategory_id = $1)`)
}

func (c *Catalog) CreateSpecification(ctx context.Context, subcategoryID int, in SpecificationInput) (*Specification, error) {
	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM subcategories WHERE id = $1)`, subcategoryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check subcategory: %w", err)
	}
	if !exists {
		return nil, ErrSubcategoryNotFound
	}

	spec := &Specification{SubcategoryID: subcategoryID, Name: in.Name, ValueType: valueType(in.ValueType)}
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO specifications (subcategory_id, name, value_type) VALUES ($1, $2, $3) RETURNING id
	`, subcategoryID, spec.Name, spec.ValueType).Scan(&spec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create specification: %w", err)
	}
	return spec, nil
}

func (c *Catalog) ListSpecifications(ctx context.Context, subcategoryID int) ([]Specification, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, subcategory_id, name, value_type FROM specifications WHERE subcategory_id = $1 ORDER BY id
	`, subcategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}
	defer rows.Close()

	out := []Specification{}
	for rows.Next() {
		var s Specification
		if err := rows.Scan(&s.ID, &s.SubcategoryID, &s.Name, &s.ValueType); err != nil {
			return nil, fmt.Errorf("failed to scan specification: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Catalog) UpdateSpecification(ctx context.Context, subcategoryID, id int, in SpecificationInput) (*Specification, error) {
	spec := &Specification{ID: id, SubcategoryID: subcategoryID, Name: in.Name, ValueType: valueType(in.ValueType)}
	res, err := c.db.ExecContext(ctx, `
		UPDATE specifications SET name = $1, value_type = $2 WHERE id = $3 AND subcategory_id = $4
	`, spec.Name, spec.ValueType, id, subcategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to update specification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSpecificationNotFound
	}
	return spec, nil
}

func (c *Catalog) DeleteSpecification(ctx context.Context, subcategoryID, id int) error {
	var found bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM specifications WHERE id = $1 AND subcategory_id = $2)`,
		id, subcategoryID).Scan(&found)
	if err != nil {
		return fmt.Errorf("failed to load specification: %w", err)
	}
	if !found {
		return ErrSpecificationNotFound
	}

	return c.deleteUnreferenced(ctx, "specifications", id, ErrSpecificationNotFound,
		`SELECT EXISTS(SELECT 1 FROM product_specifications WHERE specification_id = $1)`)
}

func (c *Catalog) requireCategory(ctx context.Context, id int) error {
	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if !exists {
		return ErrCategoryNotFound
	}
	return nil
}

// deleteUnreferenced deletes id from table unless refQuery reports a reference
func (c *Catalog) deleteUnreferenced(ctx context.Context, table string, id int, notFound error, refQuery string) error {
	return c.db.WithTx(ctx, func(tx *sql.Tx) error {
		var referenced bool
		if err := tx.QueryRowContext(ctx, refQuery, id).Scan(&referenced); err != nil {
			return fmt.Errorf("failed to check references: %w", err)
		}
		if referenced {
			return ErrInUse
		}

		// table is always a literal from this file
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
		if err != nil {
			if conn.IsForeignKeyViolation(err) {
				return ErrInUse
			}
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound
		}
		return nil
	})
}

// encodeFeatures returns JSON text; lib/pq would send []byte as bytea
func encodeFeatures(features []string) (string, error) {
	b, err := json.Marshal(nonNil(features))
	if err != nil {
		return "", fmt.Errorf("failed to encode features: %w", err)
	}
	return string(b), nil
}

func decodeFeatures(raw []byte) []string {
	var out []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return nonNil(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func valueType(v string) string {
	if v == "" {
		return "string"
	}
	return v
}

func notFoundOr(err error, notFound error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
