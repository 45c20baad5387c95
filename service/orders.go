package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/mail"
	"github.com/mstgnz/dukapi/infra/metrics"
)

const orderColumns = `o.order_id, o.total, o.datetime, o.status, o.user_id, o.address_id,
	o.delivery_fee, o.completed_at, u.username`

// OrderNotifier sends order related emails
type OrderNotifier interface {
	SendOrderConfirmation(o mail.OrderMail)
	SendAdminNewOrder(o mail.OrderMail)
	SendCancellationRequest(orderID int, username, reason string)
}

// Orders turns carts into orders and links accepted payments to them
type Orders struct {
	db       *conn.DB
	notifier OrderNotifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewOrders(db *conn.DB, notifier OrderNotifier, m *metrics.Metrics) *Orders {
	return &Orders{db: db, notifier: notifier, metrics: m, now: time.Now}
}

type pricedLine struct {
	productID int
	name      string
	quantity  decimal.Decimal
	total     decimal.Decimal
}

// mergeCart sums duplicate products and orders lines by product id so
// concurrent checkouts lock product rows in the same order.
func mergeCart(cart []CartItem) ([]CartItem, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}

	byID := make(map[int]decimal.Decimal, len(cart))
	for _, item := range cart {
		if !item.Quantity.IsPositive() || !item.Quantity.Equal(item.Quantity.Round(2)) {
			return nil, ErrInvalidQuantity
		}
		byID[item.ID] = byID[item.ID].Add(item.Quantity)
	}

	out := make([]CartItem, 0, len(byID))
	for id, qty := range byID {
		out = append(out, CartItem{ID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateOrder checks out a cart in a single database transaction. Stock is
// decremented conditionally, and an optional accepted payment is locked and
// linked to the new order.
func (s *Orders) CreateOrder(ctx context.Context, userID int, in OrderInput) (*Order, error) {
	cart, err := mergeCart(in.Cart)
	if err != nil {
		return nil, err
	}
	if in.DeliveryFee.IsNegative() {
		return nil, fmt.Errorf("%w: negative delivery fee", ErrInvalidAmount)
	}

	var order *Order
	var mailTo mail.OrderMail

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var username, email string
		if err := tx.QueryRowContext(ctx, `SELECT username, email FROM users WHERE id = $1`, userID).Scan(&username, &email); err != nil {
			return notFoundOr(err, ErrForbidden, "load user")
		}

		if in.AddressID != nil {
			var ok bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`,
				*in.AddressID, userID).Scan(&ok); err != nil {
				return fmt.Errorf("failed to check address: %w", err)
			}
			if !ok {
				return ErrAddressNotFound
			}
		}

		lines := make([]pricedLine, 0, len(cart))
		total := decimal.Zero
		for _, item := range cart {
			line, err := takeStock(ctx, tx, item)
			if err != nil {
				return err
			}
			lines = append(lines, line)
			total = total.Add(line.total)
		}
		total = total.Add(in.DeliveryFee)

		status := OrderPending
		if in.TransactionID != nil {
			if err := claimTransaction(ctx, tx, *in.TransactionID, userID, total); err != nil {
				return err
			}
			status = OrderProcessing
		}

		o := &Order{
			Total:       total,
			Status:      status,
			UserID:      userID,
			AddressID:   in.AddressID,
			DeliveryFee: in.DeliveryFee,
			Username:    username,
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (total, datetime, status, user_id, address_id, delivery_fee)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING order_id, datetime
		`, total, s.now(), status, userID, in.AddressID, in.DeliveryFee).Scan(&o.ID, &o.Datetime)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, l := range lines {
			d := OrderDetail{OrderID: o.ID, ProductID: &l.productID, ProductName: l.name, Quantity: l.quantity, TotalPrice: l.total}
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO order_details (order_id, product_id, quantity, total_price)
				VALUES ($1, $2, $3, $4)
				RETURNING order_detail_id
			`, o.ID, l.productID, l.quantity, l.total).Scan(&d.ID); err != nil {
				return fmt.Errorf("failed to create order line: %w", err)
			}
			o.Details = append(o.Details, d)
		}

		if in.TransactionID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE transactions SET order_id = $1, updated_at = $2 WHERE id = $3`,
				o.ID, s.now(), *in.TransactionID); err != nil {
				if conn.IsUniqueViolation(err) {
					return ErrTransactionUnavailable
				}
				return fmt.Errorf("failed to link transaction: %w", err)
			}
		}

		order = o
		mailTo = orderMail(o, email)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementOrders()
	if s.notifier != nil {
		s.notifier.SendOrderConfirmation(mailTo)
		s.notifier.SendAdminNewOrder(mailTo)
	}
	return order, nil
}

// takeStock decrements stock only when enough is left and prices the line
func takeStock(ctx context.Context, tx *sql.Tx, item CartItem) (pricedLine, error) {
	var price decimal.Decimal
	var name string
	err := tx.QueryRowContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity >= $1
		RETURNING price, name
	`, item.Quantity, item.ID).Scan(&price, &name)
	if err == nil {
		return pricedLine{
			productID: item.ID,
			name:      name,
			quantity:  item.Quantity,
			total:     price.Mul(item.Quantity),
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return pricedLine{}, fmt.Errorf("failed to reserve stock: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1`, item.ID).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricedLine{}, fmt.Errorf("%w: %d", ErrProductNotFound, item.ID)
		}
		return pricedLine{}, fmt.Errorf("failed to check product: %w", err)
	}
	return pricedLine{}, fmt.Errorf("%w for product %s", ErrInsufficientStock, name)
}

// claimTransaction locks a payment row and checks it can pay for total
func claimTransaction(ctx context.Context, tx *sql.Tx, id, userID int, total decimal.Decimal) error {
	var owner int
	var status TxStatus
	var orderID *int
	var amount decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		SELECT user_id, status, order_id, amount FROM transactions WHERE id = $1 FOR UPDATE
	`, id).Scan(&owner, &status, &orderID, &amount)
	if err != nil {
		return notFoundOr(err, ErrTransactionUnavailable, "lock transaction")
	}

	if owner != userID || status != TxAccepted || orderID != nil {
		return ErrTransactionUnavailable
	}
	if amount.LessThan(total) {
		return ErrInsufficientAmount
	}
	return nil
}

// AvailableTransactions lists the user's accepted payments not yet used by an order
func (s *Orders) AvailableTransactions(ctx context.Context, userID int) ([]Transaction, error) {
	return queryTransactions(ctx, s.db,
		`WHERE user_id = $1 AND status = $2 AND order_id IS NULL ORDER BY created_at DESC`, userID, TxAccepted)
}

// ListOrders returns the user's own orders, newest first
func (s *Orders) ListOrders(ctx context.Context, userID int, f OrderFilter) ([]Order, error) {
	limit := clampLimit(f.Limit)
	where := []string{"o.user_id = $1"}
	args := []any{userID}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	return s.list(ctx, where, args, max(f.Skip, 0), limit)
}

// GetOrder loads one of the user's orders with its lines and address
func (s *Orders) GetOrder(ctx context.Context, userID, id int) (*Order, error) {
	orders, err := s.list(ctx, []string{"o.order_id = $1", "o.user_id = $2"}, []any{id, userID}, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	o := &orders[0]

	if o.AddressID != nil {
		a, err := scanAddress(s.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, *o.AddressID))
		if err == nil {
			o.Address = a
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load address: %w", err)
		}
	}
	return o, nil
}

// AdminListOrders lists all orders, optionally filtered by status and by a
// search on username or address names.
func (s *Orders) AdminListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	limit := clampLimit(f.Limit)
	var where []string
	var args []any
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, containsPattern(f.Search))
		n := len(args)
		where = append(where, fmt.Sprintf(`(u.username ILIKE $%d ESCAPE '\' OR a.first_name ILIKE $%d ESCAPE '\' OR a.last_name ILIKE $%d ESCAPE '\')`, n, n, n))
	}
	return s.list(ctx, where, args, max(f.Skip, 0), limit)
}

// UpdateStatus changes an order's status. Delivered orders get a completion time.
func (s *Orders) UpdateStatus(ctx context.Context, id int, status OrderStatus) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	var completed *time.Time
	if status == OrderDelivered {
		now := s.now()
		completed = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, completed_at = $2 WHERE order_id = $3`, status, completed, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrOrderNotFound
	}

	orders, err := s.list(ctx, []string{"o.order_id = $1"}, []any{id}, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

// CancelRequest forwards a customer's cancellation request to the admin.
// The order status is left to the admin.
func (s *Orders) CancelRequest(ctx context.Context, userID, id int, reason string) error {
	o, err := s.GetOrder(ctx, userID, id)
	if err != nil {
		return err
	}
	if o.Status == OrderDelivered || o.Status == OrderCancelled {
		return ErrInvalidStatus
	}

	if s.notifier != nil {
		s.notifier.SendCancellationRequest(o.ID, o.Username, reason)
	}
	return nil
}

func (s *Orders) list(ctx context.Context, where []string, args []any, skip, limit int) ([]Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders o
		JOIN users u ON u.id = o.user_id
		LEFT JOIN addresses a ON a.id = o.address_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY o.datetime DESC, o.order_id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	index := map[int]int{}
	var ids []int64
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Total, &o.Datetime, &o.Status, &o.UserID, &o.AddressID,
			&o.DeliveryFee, &o.CompletedAt, &o.Username); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Details = []OrderDetail{}
		index[o.ID] = len(orders)
		ids = append(ids, int64(o.ID))
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	drows, err := s.db.QueryContext(ctx, `
		SELECT d.order_detail_id, d.order_id, d.product_id, COALESCE(p.name, ''), d.quantity, d.total_price
		FROM order_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.order_id = ANY($1)
		ORDER BY d.order_detail_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	defer drows.Close()

	for drows.Next() {
		var d OrderDetail
		if err := drows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.ProductName, &d.Quantity, &d.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		i := index[d.OrderID]
		orders[i].Details = append(orders[i].Details, d)
	}
	return orders, drows.Err()
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func orderMail(o *Order, email string) mail.OrderMail {
	m := mail.OrderMail{
		OrderID:     o.ID,
		Username:    o.Username,
		Email:       email,
		Status:      string(o.Status),
		DeliveryFee: o.DeliveryFee,
		Total:       o.Total,
		CreatedAt:   o.Datetime,
	}
	for _, d := range o.Details {
		m.Lines = append(m.Lines, mail.OrderLine{Name: d.ProductName, Quantity: d.Quantity, LineTotal: d.TotalPrice})
	}
	return m
}
