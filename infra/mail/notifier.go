package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"sync"
	"time"

	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/metrics"
	"github.com/shopspring/decimal"
)

const sendTimeout = 30 * time.Second

// OrderLine is one product row in an order email
type OrderLine struct {
	Name      string
	Quantity  decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderMail carries what order emails render
type OrderMail struct {
	OrderID     int
	Username    string
	Email       string
	Status      string
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
	CreatedAt   time.Time
	Lines       []OrderLine
}

var pages = htmltemplate.Must(htmltemplate.New("mail").Parse(`
{{define "link"}}<p>Hello {{.Username}},</p><p>{{.Intro}}</p><p><a href="{{.Link}}">{{.Action}}</a></p><p>{{.Footer}}</p>{{end}}
{{define "order"}}<p>Hello {{.Username}},</p><p>Order #{{.OrderID}} ({{.Status}})</p>
<table>{{range .Lines}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.LineTotal.StringFixed 2}}</td></tr>{{end}}</table>
<p>Delivery: {{.DeliveryFee.StringFixed 2}}</p><p><strong>Total: {{.Total.StringFixed 2}}</strong></p>{{end}}
{{define "cancel"}}<p>User {{.Username}} asked to cancel order #{{.OrderID}}.</p><p>Reason: {{.Reason}}</p>{{end}}
`))

type linkPage struct {
	Username string
	Intro    string
	Link     string
	Action   string
	Footer   string
}

type cancelPage struct {
	OrderID  int
	Username string
	Reason   string
}

// Notifier composes account and order emails and sends them in the background.
// Failures are logged and counted, never returned.
type Notifier struct {
	sender     Sender
	adminEmail string
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

func NewNotifier(sender Sender, adminEmail string, m *metrics.Metrics) *Notifier {
	return &Notifier{sender: sender, adminEmail: adminEmail, metrics: m}
}

func (n *Notifier) SendVerification(_ context.Context, to, username, link string) {
	n.dispatch("verification", Message{
		To:      to,
		Subject: "Verify your account",
		Text:    fmt.Sprintf("Hello %s,\n\nConfirm your email address by opening:\n%s\n\nThe link expires in 24 hours.\n", username, link),
		HTML: render("link", linkPage{
			Username: username,
			Intro:    "Confirm your email address to activate your account.",
			Link:     link,
			Action:   "Verify email",
			Footer:   "The link expires in 24 hours.",
		}),
	})
}

func (n *Notifier) SendPasswordReset(_ context.Context, to, username, link string) {
	n.dispatch("password_reset", Message{
		To:      to,
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Hello %s,\n\nReset your password here:\n%s\n\nThe link expires in 30 minutes. Ignore this email if you did not ask for it.\n", username, link),
		HTML: render("link", linkPage{
			Username: username,
			Intro:    "We received a request to reset your password.",
			Link:     link,
			Action:   "Reset password",
			Footer:   "The link expires in 30 minutes. Ignore this email if you did not ask for it.",
		}),
	})
}

func (n *Notifier) SendOrderConfirmation(o OrderMail) {
	n.dispatch("order_confirmation", Message{
		To:      o.Email,
		Subject: fmt.Sprintf("Order #%d confirmation", o.OrderID),
		Text:    orderText(o),
		HTML:    render("order", o),
	})
}

func (n *Notifier) SendAdminNewOrder(o OrderMail) {
	if n.adminEmail == "" {
		return
	}
	n.dispatch("admin_new_order", Message{
		To:      n.adminEmail,
		Subject: fmt.Sprintf("New order #%d received", o.OrderID),
		Text:    orderText(o),
		HTML:    render("order", o),
	})
}

func (n *Notifier) SendCancellationRequest(orderID int, username, reason string) {
	if n.adminEmail == "" {
		return
	}
	n.dispatch("cancellation_request", Message{
		To:      n.adminEmail,
		Subject: fmt.Sprintf("Order cancellation request: order #%d", orderID),
		Text:    fmt.Sprintf("User %s asked to cancel order #%d.\nReason: %s\n", username, orderID, reason),
		HTML:    render("cancel", cancelPage{OrderID: orderID, Username: username, Reason: reason}),
	})
}

// Wait blocks until queued emails have been attempted
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(kind string, msg Message) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		err := n.sender.Send(ctx, msg)
		n.metrics.IncrementEmail(kind, err)
		if err != nil {
			logger.Error("Failed to send email", err, logger.LogContext{
				Fields: map[string]any{"kind": kind, "to": msg.To},
			})
		}
	}()
}

func orderText(o OrderMail) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Hello %s,\n\nOrder #%d (%s)\n\n", o.Username, o.OrderID, o.Status)
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "%s x%s  %s\n", l.Name, l.Quantity.String(), l.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nDelivery: %s\nTotal: %s\n", o.DeliveryFee.StringFixed(2), o.Total.StringFixed(2))
	return b.String()
}

func render(name string, data any) string {
	var b bytes.Buffer
	if err := pages.ExecuteTemplate(&b, name, data); err != nil {
		logger.Warn("Failed to render email", logger.LogContext{
			Fields: map[string]any{"template": name, "error": err.Error()},
		})
		return ""
	}
	return b.String()
}
