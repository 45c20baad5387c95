package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mstgnz/dukapi/infra/conn"
)

// Engagement covers favorites, reviews, banners and newsletter signups
type Engagement struct {
	db      *conn.DB
	uploads *Uploads
}

func NewEngagement(db *conn.DB, uploads *Uploads) *Engagement {
	return &Engagement{db: db, uploads: uploads}
}

func (s *Engagement) AddFavorite(ctx context.Context, userID, productID int) (*Favorite, error) {
	f := &Favorite{UserID: userID, ProductID: productID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO favorites (user_id, product_id) VALUES ($1, $2) RETURNING id, created_at
	`, userID, productID).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if conn.IsUniqueViolation(err) {
			return nil, ErrAlreadyFavorite
		}
		if conn.IsForeignKeyViolation(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	return f, nil
}

// ListFavorites returns the user's favorites with their products
func (s *Engagement) ListFavorites(ctx context.Context, userID int) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.user_id, f.product_id, f.created_at, `+productColumns+`
		FROM favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	out := []Favorite{}
	var products []Product
	for rows.Next() {
		var f Favorite
		var p Product
		if err := rows.Scan(&f.ID, &f.UserID, &f.ProductID, &f.CreatedAt,
			&p.ID, &p.Name, &p.Cost, &p.Price, &p.OriginalPrice, &p.StockQuantity, &p.Barcode,
			&p.Brand, &p.Description, &p.Rating, &p.Discount, &p.IsNew, &p.CategoryID, &p.SubcategoryID,
			&p.UserID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		p.Images = []ProductImage{}
		p.Specifications = []SpecValue{}
		products = append(products, p)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := (&Products{db: s.db}).attachImages(ctx, products); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Product = &products[i]
	}
	return out, nil
}

// DeleteFavorite removes one of the user's favorites
func (s *Engagement) DeleteFavorite(ctx context.Context, userID, id int) error {
	var owner int
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM favorites WHERE id = $1`, id).Scan(&owner); err != nil {
		return notFoundOr(err, ErrFavoriteNotFound, "load favorite")
	}
	if owner != userID {
		return ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	return nil
}

// CreateReview adds a review for a product the user ordered
func (s *Engagement) CreateReview(ctx context.Context, userID int, in ReviewInput) (*Review, error) {
	r := &Review{UserID: userID, ProductID: in.ProductID, OrderID: in.OrderID, Rating: in.Rating, Comment: in.Comment}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var ordered bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM orders o JOIN order_details d ON d.order_id = o.order_id
				WHERE o.order_id = $1 AND o.user_id = $2 AND d.product_id = $3
			)
		`, in.OrderID, userID, in.ProductID).Scan(&ordered); err != nil {
			return fmt.Errorf("failed to check order: %w", err)
		}
		if !ordered {
			return ErrReviewNotAllowed
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO reviews (user_id, product_id, order_id, rating, comment)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, userID, in.ProductID, in.OrderID, in.Rating, in.Comment).Scan(&r.ID, &r.CreatedAt)
		if err != nil {
			if conn.IsUniqueViolation(err) {
				return ErrAlreadyReviewed
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		return recomputeRating(ctx, tx, in.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ProductReviews lists the reviews of a product, newest first
func (s *Engagement) ProductReviews(ctx context.Context, productID int) ([]Review, error) {
	return s.reviews(ctx, `WHERE r.product_id = $1`, productID)
}

func (s *Engagement) MyReviews(ctx context.Context, userID int) ([]Review, error) {
	return s.reviews(ctx, `WHERE r.user_id = $1`, userID)
}

// UpdateReview edits one of the user's reviews and refreshes the product rating
func (s *Engagement) UpdateReview(ctx context.Context, userID, id int, patch ReviewPatch) (*Review, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		productID, err := lockOwnReview(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		var sets []string
		var args []any
		if patch.Rating != nil {
			args = append(args, *patch.Rating)
			sets = append(sets, fmt.Sprintf("rating = $%d", len(args)))
		}
		if patch.Comment != nil {
			args = append(args, *patch.Comment)
			sets = append(sets, fmt.Sprintf("comment = $%d", len(args)))
		}
		if len(sets) == 0 {
			return nil
		}

		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE reviews SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...); err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}
		return recomputeRating(ctx, tx, productID)
	})
	if err != nil {
		return nil, err
	}

	reviews, err := s.reviews(ctx, `WHERE r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, ErrReviewNotFound
	}
	return &reviews[0], nil
}

func (s *Engagement) DeleteReview(ctx context.Context, userID, id int) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		productID, err := lockOwnReview(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		return recomputeRating(ctx, tx, productID)
	})
}

// RecalculateRatings rebuilds every product rating from its reviews
func (s *Engagement) RecalculateRatings(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products p
		SET rating = COALESCE((SELECT ROUND(AVG(r.rating), 2) FROM reviews r WHERE r.product_id = p.id), 0)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate ratings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func lockOwnReview(ctx context.Context, tx *sql.Tx, userID, id int) (int, error) {
	var owner, productID int
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id, product_id FROM reviews WHERE id = $1 FOR UPDATE`, id).Scan(&owner, &productID); err != nil {
		return 0, notFoundOr(err, ErrReviewNotFound, "load review")
	}
	if owner != userID {
		return 0, ErrForbidden
	}
	return productID, nil
}

func recomputeRating(ctx context.Context, tx *sql.Tx, productID int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET rating = COALESCE((SELECT ROUND(AVG(rating), 2) FROM reviews WHERE product_id = $1), 0)
		WHERE id = $1
	`, productID); err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	return nil
}

func (s *Engagement) reviews(ctx context.Context, clause string, args ...any) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, u.username, r.product_id, r.order_id, r.rating, r.comment, r.created_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		`+clause+`
		ORDER BY r.created_at DESC, r.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.Username, &r.ProductID, &r.OrderID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const bannerColumns = `id, image_url, title, subtitle, active, type, category_id, button_text, created_at`

func scanBanner(row rowScanner) (*Banner, error) {
	var b Banner
	if err := row.Scan(&b.ID, &b.ImageURL, &b.Title, &b.Subtitle, &b.Active, &b.Type, &b.CategoryID,
		&b.ButtonText, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Engagement) CreateBanner(ctx context.Context, in BannerInput) (*Banner, error) {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	b, err := scanBanner(s.db.QueryRowContext(ctx, `
		INSERT INTO banners (image_url, title, subtitle, active, type, category_id, button_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+bannerColumns,
		in.ImageURL, in.Title, in.Subtitle, active, in.Type, in.CategoryID, in.ButtonText))
	if err != nil {
		if conn.IsForeignKeyViolation(err) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to create banner: %w", err)
	}
	return b, nil
}

// ListBanners returns banners newest first. Public callers only see active ones.
func (s *Engagement) ListBanners(ctx context.Context, bannerType string, categoryID int, activeOnly bool) ([]Banner, error) {
	var where []string
	var args []any
	if activeOnly {
		where = append(where, "active")
	}
	if bannerType != "" {
		args = append(args, bannerType)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if categoryID > 0 {
		args = append(args, categoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}

	query := `SELECT ` + bannerColumns + ` FROM banners`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list banners: %w", err)
	}
	defer rows.Close()

	out := []Banner{}
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan banner: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Engagement) UpdateBanner(ctx context.Context, id int, patch BannerPatch) (*Banner, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Subtitle != nil {
		set("subtitle", *patch.Subtitle)
	}
	if patch.Active != nil {
		set("active", *patch.Active)
	}
	if patch.Type != nil {
		set("type", *patch.Type)
	}
	if patch.CategoryID != nil {
		set("category_id", *patch.CategoryID)
	}
	if patch.ButtonText != nil {
		set("button_text", *patch.ButtonText)
	}

	var query string
	if len(sets) == 0 {
		query = `SELECT ` + bannerColumns + ` FROM banners WHERE id = $1`
	} else {
		query = fmt.Sprintf(`UPDATE banners SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args)+1, bannerColumns)
	}
	args = append(args, id)

	b, err := scanBanner(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if conn.IsForeignKeyViolation(err) {
			return nil, ErrCategoryNotFound
		}
		return nil, notFoundOr(err, ErrBannerNotFound, "update banner")
	}
	return b, nil
}

func (s *Engagement) DeleteBanner(ctx context.Context, id int) error {
	var url string
	if err := s.db.QueryRowContext(ctx, `DELETE FROM banners WHERE id = $1 RETURNING image_url`, id).Scan(&url); err != nil {
		return notFoundOr(err, ErrBannerNotFound, "delete banner")
	}
	s.uploads.Remove(url)
	return nil
}

// RemoveBannerImage clears the banner image and deletes the local file
func (s *Engagement) RemoveBannerImage(ctx context.Context, id int) (*Banner, error) {
	var old string
	if err := s.db.QueryRowContext(ctx, `SELECT image_url FROM banners WHERE id = $1`, id).Scan(&old); err != nil {
		return nil, notFoundOr(err, ErrBannerNotFound, "load banner")
	}

	b, err := scanBanner(s.db.QueryRowContext(ctx,
		`UPDATE banners SET image_url = '' WHERE id = $1 RETURNING `+bannerColumns, id))
	if err != nil {
		return nil, notFoundOr(err, ErrBannerNotFound, "update banner")
	}
	s.uploads.Remove(old)
	return b, nil
}

// Subscribe adds an email to the newsletter list
func (s *Engagement) Subscribe(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscribers (email) VALUES ($1)`, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if conn.IsUniqueViolation(err) {
			return ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}
