package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mstgnz/dukapi/infra/conn"
)

const addressColumns = `id, user_id, first_name, last_name, phone_number, address, additional_info,
	region, city, is_default, created_at`

// Addresses manages delivery addresses scoped to their owner
type Addresses struct {
	db *conn.DB
}

func NewAddresses(db *conn.DB) *Addresses {
	return &Addresses{db: db}
}

func scanAddress(row rowScanner) (*Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.FirstName, &a.LastName, &a.PhoneNumber, &a.Address,
		&a.AdditionalInfo, &a.Region, &a.City, &a.IsDefault, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create adds an address; a default address replaces the user's previous default
func (s *Addresses) Create(ctx context.Context, userID int, in AddressInput) (*Address, error) {
	var addr *Address
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if in.IsDefault {
			if err := clearDefault(ctx, tx, userID, 0); err != nil {
				return err
			}
		}

		a, err := scanAddress(tx.QueryRowContext(ctx, `
			INSERT INTO addresses (user_id, first_name, last_name, phone_number, address, additional_info,
			                       region, city, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+addressColumns,
			userID, in.FirstName, in.LastName, in.PhoneNumber, in.Address, in.AdditionalInfo,
			in.Region, in.City, in.IsDefault))
		if err != nil {
			return fmt.Errorf("failed to create address: %w", err)
		}
		addr = a
		return nil
	})
	return addr, err
}

// List returns the user's addresses, default first
func (s *Addresses) List(ctx context.Context, userID int) ([]Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	out := []Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get loads one of the user's addresses
func (s *Addresses) Get(ctx context.Context, userID, id int) (*Address, error) {
	a, err := scanAddress(s.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFoundOr(err, ErrAddressNotFound, "load address")
	}
	return a, nil
}

func (s *Addresses) Update(ctx context.Context, userID, id int, in AddressInput) (*Address, error) {
	var addr *Address
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if in.IsDefault {
			if err := clearDefault(ctx, tx, userID, id); err != nil {
				return err
			}
		}

		a, err := scanAddress(tx.QueryRowContext(ctx, `
			UPDATE addresses
			SET first_name = $1, last_name = $2, phone_number = $3, address = $4, additional_info = $5,
			    region = $6, city = $7, is_default = $8
			WHERE id = $9 AND user_id = $10
			RETURNING `+addressColumns,
			in.FirstName, in.LastName, in.PhoneNumber, in.Address, in.AdditionalInfo,
			in.Region, in.City, in.IsDefault, id, userID))
		if err != nil {
			return notFoundOr(err, ErrAddressNotFound, "update address")
		}
		addr = a
		return nil
	})
	return addr, err
}

// SetDefault marks an address as the user's only default
func (s *Addresses) SetDefault(ctx context.Context, userID, id int) (*Address, error) {
	var addr *Address
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := clearDefault(ctx, tx, userID, id); err != nil {
			return err
		}
		a, err := scanAddress(tx.QueryRowContext(ctx,
			`UPDATE addresses SET is_default = TRUE WHERE id = $1 AND user_id = $2 RETURNING `+addressColumns,
			id, userID))
		if err != nil {
			return notFoundOr(err, ErrAddressNotFound, "set default address")
		}
		addr = a
		return nil
	})
	return addr, err
}

// Delete removes an address not used by any order
func (s *Addresses) Delete(ctx context.Context, userID, id int) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var used bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE address_id = $1)`, id).Scan(&used); err != nil {
			return fmt.Errorf("failed to check address usage: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2 AND NOT $3`, id, userID, used)
		if err != nil {
			if conn.IsForeignKeyViolation(err) {
				return ErrInUse
			}
			return fmt.Errorf("failed to delete address: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var mine bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`, id, userID).Scan(&mine); err != nil {
				return fmt.Errorf("failed to load address: %w", err)
			}
			if !mine {
				return ErrAddressNotFound
			}
			return ErrInUse
		}
		return nil
	})
}

func clearDefault(ctx context.Context, tx *sql.Tx, userID, except int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND id <> $2 AND is_default`, userID, except); err != nil {
		return fmt.Errorf("failed to clear default address: %w", err)
	}
	return nil
}
