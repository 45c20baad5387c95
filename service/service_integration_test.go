//go:build integration

package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/mail"
	"github.com/mstgnz/dukapi/provider"
	"github.com/mstgnz/dukapi/provider/mpesa"
)

func startPostgres(t *testing.T) *conn.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dukapi"),
		tcpostgres.WithUsername("dukapi"),
		tcpostgres.WithPassword("dukapi"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := &conn.DB{DB: sqlDB}
	require.NoError(t, db.Migrate(ctx))
	return db
}

func seedUser(t *testing.T, db *conn.DB, name string) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO users (username, email, hashed_password, role, is_verified)
		VALUES ($1, $2, 'x', 'customer', TRUE) RETURNING id
	`, name, name+"@example.com").Scan(&id)
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, db *conn.DB, name string, price, stock int64) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO products (name, cost, price, stock_quantity, barcode) VALUES ($1, 1, $2, $3, 1) RETURNING id
	`, name, price, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedTransaction(t *testing.T, db *conn.DB, userID int, checkoutID string, amount int64, status TxStatus, ref string) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO transactions (party_a, party_b, account_reference, transaction_id, amount, status, user_id, callback_ref)
		VALUES ('254712345678', '174379', 'dukapi', $1, $2, $3, $4, $5) RETURNING id
	`, checkoutID, amount, status, userID, ref).Scan(&id)
	require.NoError(t, err)
	return id
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []mail.OrderMail
	admin  int
}

func (n *recordingNotifier) SendOrderConfirmation(o mail.OrderMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o)
}

func (n *recordingNotifier) SendAdminNewOrder(mail.OrderMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin++
}

func (n *recordingNotifier) SendCancellationRequest(int, string, string) {}

func TestOrders_CreateOrderDecrementsStock(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "amina")
	kettle := seedProduct(t, db, "Kettle", 500, 3)
	notifier := &recordingNotifier{}
	orders := NewOrders(db, notifier, nil)

	o, err := orders.CreateOrder(ctx, user, OrderInput{
		Cart:        []CartItem{{ID: kettle, Quantity: decimal.NewFromInt(2)}},
		DeliveryFee: decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, OrderPending, o.Status)
	require.Len(t, o.Details, 1)

	var stock decimal.Decimal
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, kettle).Scan(&stock))
	assert.True(t, stock.Equal(decimal.NewFromInt(1)))
	assert.Len(t, notifier.orders, 1)
	assert.Equal(t, 1, notifier.admin)

	_, err = orders.CreateOrder(ctx, user, OrderInput{Cart: []CartItem{{ID: kettle, Quantity: decimal.NewFromInt(2)}}})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = orders.CreateOrder(ctx, user, OrderInput{Cart: []CartItem{{ID: 9999, Quantity: decimal.NewFromInt(1)}}})
	assert.ErrorIs(t, err, ErrProductNotFound)

	// a failed checkout leaves stock untouched
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, kettle).Scan(&stock))
	assert.True(t, stock.Equal(decimal.NewFromInt(1)))

	got, err := orders.GetOrder(ctx, user, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", got.Details[0].ProductName)

	other := seedUser(t, db, "brian")
	_, err = orders.GetOrder(ctx, other, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrders_TransactionLinkage(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "wanjiru")
	other := seedUser(t, db, "kamau")
	radio := seedProduct(t, db, "Radio", 1000, 10)
	orders := NewOrders(db, nil, nil)
	cart := []CartItem{{ID: radio, Quantity: decimal.NewFromInt(1)}}

	small := seedTransaction(t, db, user, "ws_small", 500, TxAccepted, "r1")
	_, err := orders.CreateOrder(ctx, user, OrderInput{Cart: cart, TransactionID: &small})
	assert.ErrorIs(t, err, ErrInsufficientAmount)

	pending := seedTransaction(t, db, user, "ws_pending", 5000, TxProcessing, "r2")
	_, err = orders.CreateOrder(ctx, user, OrderInput{Cart: cart, TransactionID: &pending})
	assert.ErrorIs(t, err, ErrTransactionUnavailable)

	foreign := seedTransaction(t, db, other, "ws_foreign", 5000, TxAccepted, "r3")
	_, err = orders.CreateOrder(ctx, user, OrderInput{Cart: cart, TransactionID: &foreign})
	assert.ErrorIs(t, err, ErrTransactionUnavailable)

	good := seedTransaction(t, db, user, "ws_good", 1000, TxAccepted, "r4")
	available, err := orders.AvailableTransactions(ctx, user)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	o, err := orders.CreateOrder(ctx, user, OrderInput{Cart: cart, TransactionID: &good})
	require.NoError(t, err)
	assert.Equal(t, OrderProcessing, o.Status)

	_, err = orders.CreateOrder(ctx, user, OrderInput{Cart: cart, TransactionID: &good})
	assert.ErrorIs(t, err, ErrTransactionUnavailable)
}

func TestOrders_ConcurrentCheckoutLinksOnce(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "njeri")
	radio := seedProduct(t, db, "Radio", 1000, 100)
	orders := NewOrders(db, nil, nil)
	txID := seedTransaction(t, db, user, "ws_race", 1000, TxAccepted, "r")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orders.CreateOrder(ctx, user, OrderInput{
				Cart:          []CartItem{{ID: radio, Quantity: decimal.NewFromInt(1)}},
				TransactionID: &txID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrTransactionUnavailable)
	}
	assert.Equal(t, 1, succeeded)

	var stock decimal.Decimal
	require.NoError(t, db.QueryRow(`SELECT stock_quantity FROM products WHERE id = $1`, radio).Scan(&stock))
	assert.True(t, stock.Equal(decimal.NewFromInt(99)), "losing checkouts must roll back stock")
}

func callbackBody(checkoutID string, code int, amount int64, receipt string) []byte {
	if code != 0 {
		return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"cancelled"}}}`, checkoutID, code))
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":%q}]}}}}`,
		checkoutID, amount, receipt))
}

// callbackGateway parses notifications with the real M-Pesa parser
type callbackGateway struct {
	stubGateway
	parser provider.PaymentProvider
}

func (g *callbackGateway) ParseCallback(body []byte) (*provider.PushResult, error) {
	return g.parser.ParseCallback(body)
}

func newCallbackPayments(t *testing.T, db *conn.DB) (*Payments, *provider.CallbackSigner) {
	t.Helper()
	signer := newSigner(t)
	gw := &callbackGateway{parser: mpesa.NewProvider()}
	return NewPayments(db, gw, signer, "https://shop.example.com/cb", nil, nil), signer
}

func TestPayments_CallbackIsIdempotent(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "achieng")
	orders := NewOrders(db, nil, nil)
	product := seedProduct(t, db, "Blender", 800, 5)

	o, err := orders.CreateOrder(ctx, user, OrderInput{Cart: []CartItem{{ID: product, Quantity: decimal.NewFromInt(1)}}})
	require.NoError(t, err)

	txID := seedTransaction(t, db, user, "ws_cb", 800, TxProcessing, "ref-cb")
	_, err = db.Exec(`UPDATE transactions SET order_id = $1 WHERE id = $2`, o.ID, txID)
	require.NoError(t, err)

	payments, signer := newCallbackPayments(t, db)

	// a valid signature for another payment's reference is refused
	seedTransaction(t, db, user, "ws_other", 10, TxProcessing, "ref-other")
	outcome, err := payments.Callback(ctx, callbackBody("ws_cb", 0, 800, "FORGED"), "ref-other", signer.Sign("ref-other"))
	assert.Equal(t, OutcomeUnauthorized, outcome)
	assert.ErrorIs(t, err, ErrCallbackUnauthorized)

	outcome, err = payments.Callback(ctx, callbackBody("ws_cb", 0, 800, "QWE123"), "ref-cb", signer.Sign("ref-cb"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)

	outcome, err = payments.Callback(ctx, callbackBody("ws_cb", 0, 800, "QWE123"), "ref-cb", signer.Sign("ref-cb"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = payments.Callback(ctx, callbackBody("ws_cb", 1032, 0, ""), "ref-cb", signer.Sign("ref-cb"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	var status TxStatus
	var code sql.NullString
	require.NoError(t, db.QueryRow(`SELECT status, transaction_code FROM transactions WHERE id = $1`, txID).Scan(&status, &code))
	assert.Equal(t, TxAccepted, status)
	assert.Equal(t, "QWE123", code.String)

	got, err := orders.GetOrder(ctx, user, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderProcessing, got.Status)

	var recorded int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM payment_callbacks WHERE checkout_request_id = 'ws_cb'`).Scan(&recorded))
	assert.Equal(t, 4, recorded)

	outcome, err = payments.Callback(ctx, callbackBody("ws_missing", 0, 1, "X"), "ref-cb", signer.Sign("ref-cb"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, outcome)
}

func TestPayments_ConcurrentCallbacksApplyOnce(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "mutua")
	seedTransaction(t, db, user, "ws_many", 300, TxProcessing, "ref-many")
	payments, signer := newCallbackPayments(t, db)

	const workers = 6
	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = payments.Callback(ctx, callbackBody("ws_many", 0, 300, "R1"), "ref-many", signer.Sign("ref-many"))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, o := range outcomes {
		if o == OutcomeAccepted {
			accepted++
		} else {
			assert.Equal(t, OutcomeDuplicate, o)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestPayments_StaleProcessing(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "chebet")
	seedTransaction(t, db, user, "ws_old", 10, TxProcessing, "a")
	seedTransaction(t, db, user, "ws_done", 10, TxAccepted, "b")
	_, err := db.Exec(`UPDATE transactions SET created_at = NOW() - INTERVAL '1 hour'`)
	require.NoError(t, err)
	seedTransaction(t, db, user, "ws_fresh", 10, TxProcessing, "c")

	payments, _ := newCallbackPayments(t, db)
	stale, err := payments.StaleProcessing(ctx, time.Now().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ws_old", stale[0].TransactionID)
}

func TestAddresses_SingleDefault(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "wekesa")
	addresses := NewAddresses(db)

	in := AddressInput{FirstName: "W", LastName: "K", PhoneNumber: "0712345678", Address: "Moi Ave", Region: "Nairobi", City: "Nairobi", IsDefault: true}
	first, err := addresses.Create(ctx, user, in)
	require.NoError(t, err)
	second, err := addresses.Create(ctx, user, in)
	require.NoError(t, err)

	list, err := addresses.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	_, err = addresses.SetDefault(ctx, user, first.ID)
	require.NoError(t, err)

	other := seedUser(t, db, "otherone")
	_, err = addresses.Get(ctx, other, first.ID)
	assert.ErrorIs(t, err, ErrAddressNotFound)

	product := seedProduct(t, db, "Fan", 100, 5)
	_, err = NewOrders(db, nil, nil).CreateOrder(ctx, user, OrderInput{
		Cart:      []CartItem{{ID: product, Quantity: decimal.NewFromInt(1)}},
		AddressID: &first.ID,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, addresses.Delete(ctx, user, first.ID), ErrInUse)
	assert.NoError(t, addresses.Delete(ctx, user, second.ID))
}

func TestEngagement_ReviewsUpdateRating(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "halima")
	product := seedProduct(t, db, "Iron", 100, 5)
	o, err := NewOrders(db, nil, nil).CreateOrder(ctx, user, OrderInput{Cart: []CartItem{{ID: product, Quantity: decimal.NewFromInt(1)}}})
	require.NoError(t, err)

	eng := NewEngagement(db, nil)
	r, err := eng.CreateReview(ctx, user, ReviewInput{ProductID: product, OrderID: o.ID, Rating: 4})
	require.NoError(t, err)

	_, err = eng.CreateReview(ctx, user, ReviewInput{ProductID: product, OrderID: o.ID, Rating: 5})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	stranger := seedUser(t, db, "stranger")
	_, err = eng.CreateReview(ctx, stranger, ReviewInput{ProductID: product, OrderID: o.ID, Rating: 1})
	assert.ErrorIs(t, err, ErrReviewNotAllowed)

	rating := func() decimal.Decimal {
		var d decimal.Decimal
		require.NoError(t, db.QueryRow(`SELECT rating FROM products WHERE id = $1`, product).Scan(&d))
		return d
	}
	assert.True(t, rating().Equal(decimal.NewFromInt(4)))

	two := 2
	_, err = eng.UpdateReview(ctx, user, r.ID, ReviewPatch{Rating: &two})
	require.NoError(t, err)
	assert.True(t, rating().Equal(decimal.NewFromInt(2)))

	assert.ErrorIs(t, eng.DeleteReview(ctx, stranger, r.ID), ErrForbidden)
	require.NoError(t, eng.DeleteReview(ctx, user, r.ID))
	assert.True(t, rating().IsZero())

	require.NoError(t, eng.Subscribe(ctx, "News@Example.com"))
	assert.ErrorIs(t, eng.Subscribe(ctx, "news@example.com"), ErrAlreadySubscribed)

	_, err = eng.AddFavorite(ctx, user, product)
	require.NoError(t, err)
	_, err = eng.AddFavorite(ctx, user, product)
	assert.ErrorIs(t, err, ErrAlreadyFavorite)
	favs, err := eng.ListFavorites(ctx, user)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "Iron", favs[0].Product.Name)
}

func TestAudit_PaymentStatsAndCallbacks(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "njeri")

	seedTransaction(t, db, user, "ws_a", 500, TxAccepted, "ref-a")
	seedTransaction(t, db, user, "ws_b", 250, TxAccepted, "ref-b")
	seedTransaction(t, db, user, "ws_c", 100, TxRejected, "ref-c")
	seedTransaction(t, db, user, "ws_d", 100, TxProcessing, "ref-d")

	_, err := db.Exec(`
		INSERT INTO gateway_logs (provider, method, endpoint, error_code, processing_ms)
		VALUES ('mpesa', 'POST', '/mpesa/stkpush/v1/processrequest', NULL, 120),
		       ('mpesa', 'POST', '/mpesa/stkpushquery/v1/query', '500.001.1001', 80)
	`)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO payment_callbacks (checkout_request_id, result_code, source, outcome, payload)
		VALUES ('ws_a', 0, 'callback', 'accepted', '{}'), ('ws_a', 0, 'callback', 'duplicate', '{}')
	`)
	require.NoError(t, err)

	audit := NewAudit(db)

	stats, err := audit.PaymentStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 24, stats.Hours)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Processing)
	assert.True(t, decimal.NewFromInt(750).Equal(stats.Volume))
	assert.Equal(t, 2, stats.GatewayCalls)
	assert.Equal(t, 1, stats.GatewayErrors)
	assert.InDelta(t, 100.0, stats.AvgGatewayMs, 0.01)

	logs, err := audit.GatewayLogs(ctx, LogFilter{ErrorsOnly: true})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "/mpesa/stkpushquery/v1/query", logs[0].Endpoint)

	records, err := audit.Callbacks(ctx, "ws_a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "accepted", records[0].Outcome)
	assert.Equal(t, "duplicate", records[1].Outcome)
}

// heldClaims refuses every claim, as when an earlier attempt died holding it
type heldClaims struct {
	released int
}

func (h *heldClaims) Claim(context.Context, string, time.Duration) (bool, error) { return false, nil }

func (h *heldClaims) Release(context.Context, string) { h.released++ }

type queryGateway struct {
	callbackGateway
	result provider.PushResult
}

func (g *queryGateway) QueryPush(_ context.Context, checkoutRequestID string) (*provider.PushResult, error) {
	r := g.result
	r.CheckoutRequestID = checkoutRequestID
	return &r, nil
}

func TestPayments_HeldClaimDoesNotBlockSettlement(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	user := seedUser(t, db, "kiprono")
	txID := seedTransaction(t, db, user, "ws_stuck", 450, TxProcessing, "ref-stuck")
	seedTransaction(t, db, user, "ws_cb_stuck", 90, TxProcessing, "ref-cb-stuck")

	claims := &heldClaims{}
	gw := &queryGateway{
		callbackGateway: callbackGateway{parser: mpesa.NewProvider()},
		result:          provider.PushResult{ResultCode: 0, Receipt: "RCP1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(450))},
	}
	signer := newSigner(t)
	payments := NewPayments(db, gw, signer, "https://shop.example.com/cb", claims, nil)

	outcome, err := payments.poll(ctx, "ws_stuck", SourceReconcile)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)

	var status TxStatus
	var code sql.NullString
	require.NoError(t, db.QueryRow(`SELECT status, transaction_code FROM transactions WHERE id = $1`, txID).Scan(&status, &code))
	assert.Equal(t, TxAccepted, status)
	assert.Equal(t, "RCP1", code.String)

	outcome, err = payments.poll(ctx, "ws_stuck", SourceReconcile)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = payments.Callback(ctx, callbackBody("ws_cb_stuck", 0, 90, "RCP2"), "ref-cb-stuck", signer.Sign("ref-cb-stuck"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)

	// claims this worker never took are left alone
	assert.Zero(t, claims.released)
}

func TestProducts_SearchMatchesLiterally(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	seedProduct(t, db, "Kettle", 500, 3)
	seedProduct(t, db, "Radio_FM", 900, 3)

	products := NewProducts(db, nil)
	page, err := products.ListPublic(ctx, ProductFilter{Search: "_"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Radio_FM", page.Items[0].Name)

	page, err = products.ListPublic(ctx, ProductFilter{Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = products.ListPublic(ctx, ProductFilter{Page: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func seedStaff(t *testing.T, db *conn.DB, name string, role auth.Role) Actor {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO users (username, email, hashed_password, role, is_verified)
		VALUES ($1, $2, 'x', $3, TRUE) RETURNING id
	`, name, name+"@example.com", role).Scan(&id)
	require.NoError(t, err)
	return Actor{ID: id, Role: role}
}

func TestCatalog_DeleteRefusedWhileInUse(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	catalog := NewCatalog(db)
	products := NewProducts(db, nil)
	admin := seedStaff(t, db, "njeri", auth.RoleAdmin)

	cat, err := catalog.CreateCategory(ctx, CategoryInput{Name: "Kitchen", Features: []string{"Durable"}})
	require.NoError(t, err)
	sub, err := catalog.CreateSubcategory(ctx, SubcategoryInput{Name: "Kettles", CategoryID: cat.ID})
	require.NoError(t, err)
	spec, err := catalog.CreateSpecification(ctx, sub.ID, SpecificationInput{Name: "Capacity", ValueType: "number"})
	require.NoError(t, err)

	_, err = catalog.CreateCategory(ctx, CategoryInput{Name: "Kitchen"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	assert.ErrorIs(t, catalog.DeleteCategory(ctx, cat.ID), ErrInUse, "subcategory still attached")

	p, err := products.Create(ctx, admin, ProductInput{
		Name:           "Steel Kettle",
		Cost:           decimal.NewFromInt(300),
		Price:          decimal.NewFromInt(500),
		StockQuantity:  decimal.NewFromInt(4),
		Barcode:        1001,
		CategoryID:     &cat.ID,
		SubcategoryID:  &sub.ID,
		Specifications: []SpecValueInput{{SpecificationID: spec.ID, Value: "1.7"}},
	})
	require.NoError(t, err)
	require.Len(t, p.Specifications, 1)

	assert.ErrorIs(t, catalog.DeleteSpecification(ctx, sub.ID, spec.ID), ErrInUse)
	assert.ErrorIs(t, catalog.DeleteSubcategory(ctx, sub.ID), ErrInUse)
	assert.ErrorIs(t, catalog.DeleteSpecification(ctx, sub.ID+1, spec.ID), ErrSpecificationNotFound)

	require.NoError(t, products.Delete(ctx, admin, p.ID))
	require.NoError(t, catalog.DeleteSpecification(ctx, sub.ID, spec.ID))
	require.NoError(t, catalog.DeleteSubcategory(ctx, sub.ID))
	require.NoError(t, catalog.DeleteCategory(ctx, cat.ID))
	assert.ErrorIs(t, catalog.DeleteCategory(ctx, cat.ID), ErrCategoryNotFound)
}

func TestProducts_OnlyOwnerOrSuperadminEdits(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	products := NewProducts(db, nil)
	owner := seedStaff(t, db, "otieno", auth.RoleAdmin)
	other := seedStaff(t, db, "wairimu", auth.RoleAdmin)
	super := seedStaff(t, db, "root", auth.RoleSuperadmin)

	p, err := products.Create(ctx, owner, ProductInput{
		Name: "Jiko", Cost: decimal.NewFromInt(100), Price: decimal.NewFromInt(250),
		StockQuantity: decimal.NewFromInt(2), Barcode: 2002,
	})
	require.NoError(t, err)

	renamed := "Jiko Bora"
	_, err = products.Update(ctx, other, p.ID, ProductPatch{Name: &renamed})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, products.Delete(ctx, other, p.ID), ErrForbidden)

	got, err := products.Update(ctx, owner, p.ID, ProductPatch{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Jiko Bora", got.Name)

	price := decimal.NewFromInt(300)
	got, err = products.Update(ctx, super, p.ID, ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price))

	_, err = products.Update(ctx, owner, p.ID+100, ProductPatch{Name: &renamed})
	assert.ErrorIs(t, err, ErrProductNotFound)
}
