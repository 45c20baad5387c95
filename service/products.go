package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/response"
)

const (
	defaultProductLimit = 8
	maxLimit            = 100
	maxPage             = 10000

	productColumns = `p.id, p.name, p.cost, p.price, p.original_price, p.stock_quantity, p.barcode,
		p.brand, p.description, p.rating, p.discount, p.is_new, p.category_id, p.subcategory_id,
		p.user_id, p.created_at`
)

// Products manages the product catalog and its images and specification values
type Products struct {
	db      *conn.DB
	uploads *Uploads
}

func NewProducts(db *conn.DB, uploads *Uploads) *Products {
	return &Products{db: db, uploads: uploads}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Cost, &p.Price, &p.OriginalPrice, &p.StockQuantity, &p.Barcode,
		&p.Brand, &p.Description, &p.Rating, &p.Discount, &p.IsNew, &p.CategoryID, &p.SubcategoryID,
		&p.UserID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Images = []ProductImage{}
	p.Specifications = []SpecValue{}
	return &p, nil
}

// normalizePage clamps page and limit to sane values
func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// ListPublic returns a filtered page of products with their images
func (s *Products) ListPublic(ctx context.Context, f ProductFilter) (response.Page[Product], error) {
	page, limit := normalizePage(f.Page, f.Limit, defaultProductLimit)

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Search != "" {
		add(`p.name ILIKE $%d ESCAPE '\'`, containsPattern(f.Search))
	}
	if f.CategoryID > 0 {
		add("p.category_id = $%d", f.CategoryID)
	}
	if f.SubcategoryID > 0 {
		add("p.subcategory_id = $%d", f.SubcategoryID)
	}
	if len(f.IDs) > 0 {
		add("p.id = ANY($%d)", pq.Array(int64s(f.IDs)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+clause, args...).Scan(&total); err != nil {
		return response.Page[Product]{}, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products p%s ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		productColumns, clause, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	products, err := s.query(ctx, query, args...)
	if err != nil {
		return response.Page[Product]{}, err
	}
	if err := s.attachImages(ctx, products); err != nil {
		return response.Page[Product]{}, err
	}

	return response.NewPage(products, total, page, limit), nil
}

// BySubcategory lists every product of a subcategory
func (s *Products) BySubcategory(ctx context.Context, subcategoryID int) ([]Product, error) {
	products, err := s.query(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.subcategory_id = $1 ORDER BY p.name`, subcategoryID)
	if err != nil {
		return nil, err
	}
	if err := s.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Get loads a product with its images and specification values
func (s *Products) Get(ctx context.Context, id int) (*Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, ErrProductNotFound, "load product")
	}

	if p.Images, err = s.ListImages(ctx, id); err != nil {
		return nil, err
	}
	if p.Specifications, err = s.ListSpecValues(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a product owned by the actor together with its images and specification values
func (s *Products) Create(ctx context.Context, actor Actor, in ProductInput) (*Product, error) {
	var id int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO products (name, cost, price, original_price, stock_quantity, barcode, brand,
			                      description, discount, is_new, category_id, subcategory_id, user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id
		`, in.Name, in.Cost, in.Price, in.OriginalPrice, in.StockQuantity, in.Barcode, in.Brand,
			in.Description, in.Discount, in.IsNew, in.CategoryID, in.SubcategoryID, actor.ID).Scan(&id)
		if err != nil {
			return productWriteError(err, "create product")
		}

		for _, url := range in.Images {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO product_images (product_id, image_url) VALUES ($1, $2)`, id, url); err != nil {
				return fmt.Errorf("failed to add image: %w", err)
			}
		}

		for _, sv := range in.Specifications {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO product_specifications (product_id, specification_id, value) VALUES ($1, $2, $3)`,
				id, sv.SpecificationID, sv.Value); err != nil {
				if conn.IsForeignKeyViolation(err) {
					return ErrSpecificationNotFound
				}
				return fmt.Errorf("failed to add specification value: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Update applies a partial update. Only the owning admin may change a product.
func (s *Products) Update(ctx context.Context, actor Actor, id int, patch ProductPatch) (*Product, error) {
	owner, err := s.owner(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(owner) {
		return nil, ErrForbidden
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Cost != nil {
		set("cost", *patch.Cost)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.OriginalPrice != nil {
		set("original_price", *patch.OriginalPrice)
	}
	if patch.StockQuantity != nil {
		set("stock_quantity", *patch.StockQuantity)
	}
	if patch.Barcode != nil {
		set("barcode", *patch.Barcode)
	}
	if patch.Brand != nil {
		set("brand", *patch.Brand)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Discount != nil {
		set("discount", *patch.Discount)
	}
	if patch.IsNew != nil {
		set("is_new", *patch.IsNew)
	}
	if patch.CategoryID != nil {
		set("category_id", *patch.CategoryID)
	}
	if patch.SubcategoryID != nil {
		set("subcategory_id", *patch.SubcategoryID)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, productWriteError(err, "update product")
		}
	}

	return s.Get(ctx, id)
}

// Delete removes a product that no order references, along with its local image files
func (s *Products) Delete(ctx context.Context, actor Actor, id int) error {
	owner, err := s.owner(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(owner) {
		return ErrForbidden
	}

	images, err := s.ListImages(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var ordered bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM order_details WHERE product_id = $1)`, id).Scan(&ordered); err != nil {
			return fmt.Errorf("failed to check order references: %w", err)
		}
		if ordered {
			return ErrInUse
		}

		for _, q := range []string{
			`DELETE FROM favorites WHERE product_id = $1`,
			`DELETE FROM reviews WHERE product_id = $1`,
			`DELETE FROM products WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				if conn.IsForeignKeyViolation(err) {
					return ErrInUse
				}
				return fmt.Errorf("failed to delete product: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, img := range images {
		s.uploads.Remove(img.ImageURL)
	}
	return nil
}

func (s *Products) AddImage(ctx context.Context, productID int, url string) (*ProductImage, error) {
	img := &ProductImage{ProductID: productID, ImageURL: url}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO product_images (product_id, image_url) VALUES ($1, $2) RETURNING id, created_at
	`, productID, url).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		if conn.IsForeignKeyViolation(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to add image: %w", err)
	}
	return img, nil
}

func (s *Products) ListImages(ctx context.Context, productID int) ([]ProductImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, image_url, created_at FROM product_images WHERE product_id = $1 ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	out := []ProductImage{}
	for rows.Next() {
		var img ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.ImageURL, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// DeleteImage removes the image row and its local file
func (s *Products) DeleteImage(ctx context.Context, productID, imageID int) error {
	var url string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM product_images WHERE id = $1 AND product_id = $2 RETURNING image_url`,
		imageID, productID).Scan(&url)
	if err != nil {
		return notFoundOr(err, ErrImageNotFound, "delete image")
	}

	s.uploads.Remove(url)
	return nil
}

func (s *Products) AddSpecValue(ctx context.Context, productID int, in SpecValueInput) (*SpecValue, error) {
	sv := &SpecValue{ProductID: productID, SpecificationID: in.SpecificationID, Value: in.Value}
	err := s.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO product_specifications (product_id, specification_id, value)
			VALUES ($1, $2, $3)
			RETURNING id, specification_id
		)
		SELECT ins.id, s.name FROM ins JOIN specifications s ON s.id = ins.specification_id
	`, productID, in.SpecificationID, in.Value).Scan(&sv.ID, &sv.Name)
	if err != nil {
		if conn.IsForeignKeyViolation(err) {
			if s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID) {
				return nil, ErrSpecificationNotFound
			}
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to add specification value: %w", err)
	}
	return sv, nil
}

func (s *Products) ListSpecValues(ctx context.Context, productID int) ([]SpecValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.id, ps.product_id, ps.specification_id, s.name, ps.value
		FROM product_specifications ps
		JOIN specifications s ON s.id = ps.specification_id
		WHERE ps.product_id = $1
		ORDER BY ps.id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specification values: %w", err)
	}
	defer rows.Close()

	out := []SpecValue{}
	for rows.Next() {
		var sv SpecValue
		if err := rows.Scan(&sv.ID, &sv.ProductID, &sv.SpecificationID, &sv.Name, &sv.Value); err != nil {
			return nil, fmt.Errorf("failed to scan specification value: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *Products) owner(ctx context.Context, id int) (*int, error) {
	var owner *int
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM products WHERE id = $1`, id).Scan(&owner); err != nil {
		return nil, notFoundOr(err, ErrProductNotFound, "load product")
	}
	return owner, nil
}

func (s *Products) exists(ctx context.Context, query string, args ...any) bool {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		logger.Warn("Existence check failed", logger.LogContext{Fields: map[string]any{"error": err.Error()}})
		return false
	}
	return ok
}

func (s *Products) query(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// attachImages loads the images of all products in one query
func (s *Products) attachImages(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	index := make(map[int]int, len(products))
	for i, p := range products {
		ids[i] = int64(p.ID)
		index[p.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, image_url, created_at FROM product_images
		WHERE product_id = ANY($1) ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.ImageURL, &img.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		i := index[img.ProductID]
		products[i].Images = append(products[i].Images, img)
	}
	return rows.Err()
}

func productWriteError(err error, action string) error {
	if conn.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	if conn.IsForeignKeyViolation(err) {
		if strings.Contains(err.Error(), "subcategor") {
			return ErrSubcategoryNotFound
		}
		return ErrCategoryNotFound
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s literally anywhere
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func int64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
