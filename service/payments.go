package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/metrics"
	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/mstgnz/dukapi/provider"
)

const (
	transactionColumns = `id, order_id, party_a, party_b, account_reference, transaction_category,
		transaction_type, transaction_channel, transaction_aggregator, transaction_id, merchant_request_id,
		amount, transaction_code, transaction_timestamp, transaction_details, feedback, status, user_id,
		callback_ref, created_at, updated_at`

	dedupeTTL = 24 * time.Hour

	// transaction classification stored with every push
	categoryPayment = 0
	typeSTKPush     = 1
	channelMobile   = 1
	aggregatorNone  = 0
)

// Outcome is what applying a payment result did
type Outcome string

const (
	OutcomeAccepted     Outcome = "accepted"
	OutcomeRejected     Outcome = "rejected"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUnknown      Outcome = "unknown"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomePending      Outcome = "pending"
	OutcomeError        Outcome = "error"
)

// Result sources recorded with every applied result
const (
	SourceCallback  = "callback"
	SourceQuery     = "query"
	SourceReconcile = "reconcile"
)

// Gateway is the push-payment API used by Payments
type Gateway interface {
	InitiatePush(ctx context.Context, request provider.PushRequest) (*provider.PushResponse, error)
	QueryPush(ctx context.Context, checkoutRequestID string) (*provider.PushResult, error)
	ParseCallback(body []byte) (*provider.PushResult, error)
}

// Deduper claims a key once; *cache.Client implements it
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// Payments initiates push payments and reconciles their results
type Payments struct {
	db          *conn.DB
	gateway     Gateway
	signer      *provider.CallbackSigner
	callbackURL string
	dedupe      Deduper
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewPayments(db *conn.DB, gateway Gateway, signer *provider.CallbackSigner, callbackURL string, dedupe Deduper, m *metrics.Metrics) *Payments {
	return &Payments{
		db:          db,
		gateway:     gateway,
		signer:      signer,
		callbackURL: callbackURL,
		dedupe:      dedupe,
		metrics:     m,
		now:         time.Now,
	}
}

func (s *Payments) ready() bool {
	return s.gateway != nil && s.signer != nil && s.callbackURL != ""
}

// Transact sends an STK push and stores the PROCESSING transaction
func (s *Payments) Transact(ctx context.Context, userID int, in TransactInput) (*Transaction, error) {
	if !s.ready() {
		return nil, ErrGatewayUnavailable
	}
	if !in.Amount.IsPositive() || !in.Amount.IsInteger() {
		return nil, ErrInvalidAmount
	}
	phone, err := validate.NormalizeMSISDN(in.PhoneNumber)
	if err != nil {
		return nil, err
	}

	reference := "dukapi"
	details := "Payment"
	if in.OrderID != nil {
		if err := s.checkOrderPayable(ctx, userID, *in.OrderID); err != nil {
			return nil, err
		}
		reference = strconv.Itoa(*in.OrderID)
		details = fmt.Sprintf("Payment for order %d", *in.OrderID)
	}

	ref := uuid.NewString()
	callback, err := s.signer.URL(s.callbackURL, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	resp, err := s.gateway.InitiatePush(ctx, provider.PushRequest{
		Amount:           in.Amount,
		PhoneNumber:      phone,
		AccountReference: reference,
		Description:      details,
		CallbackURL:      callback,
	})
	if err != nil {
		var gwErr *provider.GatewayError
		if errors.As(err, &gwErr) {
			s.metrics.IncrementPayment("rejected")
			return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, gwErr.Message)
		}
		s.metrics.IncrementPayment("error")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	feedback, _ := json.Marshal(resp)
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (order_id, party_a, party_b, account_reference, transaction_category,
		                          transaction_type, transaction_channel, transaction_aggregator, transaction_id,
		                          merchant_request_id, amount, transaction_timestamp, transaction_details,
		                          feedback, status, user_id, callback_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+transactionColumns,
		in.OrderID, resp.PartyA, resp.PartyB, reference, categoryPayment,
		typeSTKPush, channelMobile, aggregatorNone, resp.CheckoutRequestID,
		resp.MerchantRequestID, in.Amount, s.now(), details,
		string(feedback), TxProcessing, userID, ref))
	if err != nil {
		// the push went out; keep enough to reconcile by hand
		logger.Error("Failed to store sent push", err, logger.LogContext{
			UserID:   strconv.Itoa(userID),
			Provider: "mpesa",
			Fields:   map[string]any{"checkout_request_id": resp.CheckoutRequestID},
		})
		s.metrics.IncrementPayment("error")
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}

	s.metrics.IncrementPayment("sent")
	return t, nil
}

func (s *Payments) checkOrderPayable(ctx context.Context, userID, orderID int) error {
	var paid bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE order_id = o.order_id AND status = $3)
		FROM orders o WHERE o.order_id = $1 AND o.user_id = $2
	`, orderID, userID, TxAccepted).Scan(&paid)
	if err != nil {
		return notFoundOr(err, ErrOrderNotFound, "load order")
	}
	if paid {
		return ErrOrderAlreadyPaid
	}
	return nil
}

// Query asks the gateway for the status of one of the user's pushes and applies it
func (s *Payments) Query(ctx context.Context, userID int, checkoutRequestID string) (*Transaction, Outcome, error) {
	if s.gateway == nil {
		return nil, "", ErrGatewayUnavailable
	}

	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1 AND user_id = $2`,
		checkoutRequestID, userID))
	if err != nil {
		return nil, "", notFoundOr(err, ErrTransactionNotFound, "load transaction")
	}
	if t.Status.Terminal() {
		return t, OutcomeDuplicate, nil
	}

	outcome, err := s.poll(ctx, t.TransactionID, SourceQuery)
	if err != nil {
		return nil, outcome, err
	}

	t, err = s.byCheckoutID(ctx, checkoutRequestID)
	return t, outcome, err
}

// Callback authenticates and applies a gateway notification
func (s *Payments) Callback(ctx context.Context, body []byte, ref, sig string) (Outcome, error) {
	if s.signer == nil || s.gateway == nil {
		return OutcomeError, ErrGatewayUnavailable
	}
	if err := s.signer.Verify(ref, sig); err != nil {
		s.metrics.IncrementCallback(SourceCallback, string(OutcomeUnauthorized))
		return OutcomeUnauthorized, fmt.Errorf("%w: %v", ErrCallbackUnauthorized, err)
	}

	result, err := s.gateway.ParseCallback(body)
	if err != nil {
		s.metrics.IncrementCallback(SourceCallback, string(OutcomeError))
		return OutcomeError, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	return s.apply(ctx, result, body, SourceCallback, ref)
}

// poll queries the gateway and applies a final result. In-flight pushes are left alone.
func (s *Payments) poll(ctx context.Context, checkoutRequestID, source string) (Outcome, error) {
	if s.gateway == nil {
		return OutcomeError, ErrGatewayUnavailable
	}
	result, err := s.gateway.QueryPush(ctx, checkoutRequestID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if result.Pending {
		return OutcomePending, nil
	}
	if result.CheckoutRequestID == "" {
		result.CheckoutRequestID = checkoutRequestID
	}

	raw, _ := json.Marshal(result)
	return s.apply(ctx, result, raw, source, "")
}

// apply moves a PROCESSING transaction to its final state exactly once. A
// non-empty ref must match the reference the callback URL was signed for.
func (s *Payments) apply(ctx context.Context, result *provider.PushResult, raw []byte, source, ref string) (Outcome, error) {
	key := fmt.Sprintf("mpesa:result:%s:%d", result.CheckoutRequestID, result.ResultCode)

	claimed := true
	if s.dedupe != nil {
		ok, err := s.dedupe.Claim(ctx, key, dedupeTTL)
		if err != nil {
			logger.Warn("Result dedupe unavailable, relying on row lock", logger.LogContext{
				Provider: "mpesa",
				Fields:   map[string]any{"error": err.Error()},
			})
		} else {
			claimed = ok
		}
	}

	outcome := OutcomeDuplicate
	var err error
	switch {
	case claimed:
		outcome, err = s.applyLocked(ctx, result, raw, ref)
		if outcome != OutcomeAccepted && outcome != OutcomeRejected && outcome != OutcomeDuplicate && s.dedupe != nil {
			s.dedupe.Release(ctx, key)
		}
	case !s.settled(ctx, result.CheckoutRequestID):
		// a claim left by a crashed or refused attempt; the row lock decides
		outcome, err = s.applyLocked(ctx, result, raw, ref)
	}

	s.recordResult(ctx, result, raw, source, outcome)
	s.metrics.IncrementCallback(source, string(outcome))

	fields := map[string]any{
		"checkout_request_id": result.CheckoutRequestID,
		"result_code":         result.ResultCode,
		"source":              source,
		"outcome":             string(outcome),
	}
	switch outcome {
	case OutcomeUnknown, OutcomeUnauthorized:
		logger.Warn("Payment result not applied", logger.LogContext{Provider: "mpesa", Fields: fields})
	case OutcomeError:
		logger.Error("Payment result failed", err, logger.LogContext{Provider: "mpesa", Fields: fields})
	default:
		logger.Info("Payment result processed", logger.LogContext{Provider: "mpesa", Fields: fields})
	}

	return outcome, err
}

// settled reports whether the transaction already has a final status. Read
// errors count as unsettled.
func (s *Payments) settled(ctx context.Context, checkoutRequestID string) bool {
	var status TxStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE transaction_id = $1`, checkoutRequestID).Scan(&status)
	return err == nil && status.Terminal()
}

func (s *Payments) applyLocked(ctx context.Context, result *provider.PushResult, raw []byte, ref string) (Outcome, error) {
	outcome := OutcomeError
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var id int
		var orderID *int
		var amount decimal.Decimal
		var status TxStatus
		var callbackRef string

		err := tx.QueryRowContext(ctx, `
			SELECT id, order_id, amount, status, callback_ref
			FROM transactions WHERE transaction_id = $1
			FOR UPDATE
		`, result.CheckoutRequestID).Scan(&id, &orderID, &amount, &status, &callbackRef)
		if errors.Is(err, sql.ErrNoRows) {
			outcome = OutcomeUnknown
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock transaction: %w", err)
		}

		if ref != "" && ref != callbackRef {
			outcome = OutcomeUnauthorized
			return ErrCallbackUnauthorized
		}
		if status.Terminal() {
			outcome = OutcomeDuplicate
			return nil
		}

		next := TxRejected
		var receipt *string
		if result.Accepted() {
			next = TxAccepted
			if result.Receipt != "" {
				receipt = &result.Receipt
			}
			if result.Amount.Valid {
				amount = result.Amount.Decimal
			}
		}

		if next == TxAccepted && orderID != nil {
			var taken bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM transactions WHERE order_id = $1 AND status = $2 AND id <> $3)`,
				*orderID, TxAccepted, id).Scan(&taken); err != nil {
				return fmt.Errorf("failed to check order payment: %w", err)
			}
			if taken {
				// leave the payment free for another order
				orderID = nil
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $1, transaction_code = $2, amount = $3, feedback = $4, order_id = $5, updated_at = $6
			WHERE id = $7
		`, next, receipt, amount, string(raw), orderID, s.now(), id); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		if next == TxAccepted && orderID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET status = $1
				WHERE order_id = $2 AND status = $3 AND total <= $4
			`, OrderProcessing, *orderID, OrderPending, amount); err != nil {
				return fmt.Errorf("failed to update order: %w", err)
			}
		}

		outcome = OutcomeRejected
		if next == TxAccepted {
			outcome = OutcomeAccepted
		}
		return nil
	})
	if errors.Is(err, ErrCallbackUnauthorized) {
		return OutcomeUnauthorized, err
	}
	return outcome, err
}

// recordResult keeps every received result for audit
func (s *Payments) recordResult(ctx context.Context, result *provider.PushResult, raw []byte, source string, outcome Outcome) {
	if !json.Valid(raw) {
		raw, _ = json.Marshal(string(raw))
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_callbacks (checkout_request_id, result_code, source, outcome, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, result.CheckoutRequestID, result.ResultCode, source, string(outcome), string(raw)); err != nil {
		logger.Warn("Failed to record payment result", logger.LogContext{
			Provider: "mpesa",
			Fields:   map[string]any{"checkout_request_id": result.CheckoutRequestID, "error": err.Error()},
		})
	}
}

// ListTransactions returns the user's transactions, newest first
func (s *Payments) ListTransactions(ctx context.Context, userID int) ([]Transaction, error) {
	return queryTransactions(ctx, s.db, `WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

// LatestForOrder returns the most recent transaction of one of the user's orders
func (s *Payments) LatestForOrder(ctx context.Context, userID, orderID int) (*Transaction, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE order_id = $1 AND user_id = $2)`, orderID, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		orderID))
	if err != nil {
		return nil, notFoundOr(err, ErrTransactionNotFound, "load transaction")
	}
	return t, nil
}

// StaleProcessing lists PROCESSING transactions created before cutoff, oldest first
func (s *Payments) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error) {
	return queryTransactions(ctx, s.db,
		`WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`, TxProcessing, cutoff, limit)
}

func (s *Payments) byCheckoutID(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, checkoutRequestID))
	if err != nil {
		return nil, notFoundOr(err, ErrTransactionNotFound, "load transaction")
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.PartyA, &t.PartyB, &t.AccountReference, &t.Category,
		&t.Type, &t.Channel, &t.Aggregator, &t.TransactionID, &t.MerchantRequestID,
		&t.Amount, &t.TransactionCode, &t.Timestamp, &t.Details, &t.Feedback, &t.Status, &t.UserID,
		&t.CallbackRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryTransactions(ctx context.Context, db *conn.DB, clause string, args ...any) ([]Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
