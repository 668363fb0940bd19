package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/metrics"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Notification kinds
const (
	NotifyOrderCreated      = "order_created"
	NotifyOrderConfirmation = "order_confirmation"
	NotifyOrderReady        = "order_ready"
)

// OrderSummary is the payload of an order email
type OrderSummary struct {
	LaboratoryID string
	OrderNumbers []string
	ClinicName   string
	DoctorName   string
	DoctorEmail  string
	PatientName  string
	Teeth        []string
	Services     []string
	Total        decimal.Decimal
	Currency     string
	DueDate      *time.Time
	Status       string
}

// Notifier sends transactional order emails
type Notifier interface {
	// OrderCreated tells the laboratory about a new submission
	OrderCreated(ctx context.Context, summary OrderSummary) error
	// OrderConfirmation tells the submitting doctor the order was received
	OrderConfirmation(ctx context.Context, summary OrderSummary) error
	// OrderReady tells the doctor the order can be picked up
	OrderReady(ctx context.Context, summary OrderSummary) error
}

// NoopNotifier discards every notification
type NoopNotifier struct{}

func (NoopNotifier) OrderCreated(ctx context.Context, summary OrderSummary) error      { return nil }
func (NoopNotifier) OrderConfirmation(ctx context.Context, summary OrderSummary) error { return nil }
func (NoopNotifier) OrderReady(ctx context.Context, summary OrderSummary) error        { return nil }

// MailNotifier sends order emails through Resend
type MailNotifier struct {
	client   *resend.Client
	from     string
	labEmail string
}

// NewMailNotifier returns a MailNotifier, or a NoopNotifier when no API key is configured
func NewMailNotifier(cfg *config.Config) Notifier {
	if cfg.ResendAPIKey == "" {
		log.Warn().Msg("RESEND_API_KEY not set, order emails disabled")
		return NoopNotifier{}
	}
	return newMailNotifier(resend.NewClient(cfg.ResendAPIKey), cfg.MailFrom, cfg.LabNotifyEmail)
}

func newMailNotifier(client *resend.Client, from, labEmail string) *MailNotifier {
	return &MailNotifier{client: client, from: from, labEmail: labEmail}
}

func (n *MailNotifier) OrderCreated(ctx context.Context, summary OrderSummary) error {
	if n.labEmail == "" {
		return nil
	}
	return n.send(ctx, n.labEmail,
		fmt.Sprintf("Nueva orden %s - %s", strings.Join(summary.OrderNumbers, ", "), summary.ClinicName),
		renderSummary("Nueva orden recibida", summary))
}

func (n *MailNotifier) OrderConfirmation(ctx context.Context, summary OrderSummary) error {
	if summary.DoctorEmail == "" {
		return nil
	}
	return n.send(ctx, summary.DoctorEmail,
		fmt.Sprintf("Confirmación de orden %s", strings.Join(summary.OrderNumbers, ", ")),
		renderSummary("Hemos recibido su orden", summary)+
			"<p>Nos pondremos en contacto con usted cuando su orden esté lista para recoger.</p>")
}

func (n *MailNotifier) OrderReady(ctx context.Context, summary OrderSummary) error {
	if summary.DoctorEmail == "" {
		return nil
	}
	return n.send(ctx, summary.DoctorEmail,
		fmt.Sprintf("Orden %s lista para entrega", strings.Join(summary.OrderNumbers, ", ")),
		renderSummary("Su orden está lista para entrega", summary))
}

func (n *MailNotifier) send(ctx context.Context, to, subject, body string) error {
	sent, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send email %q: %w", subject, err)
	}
	log.Debug().Str("email_id", sent.Id).Str("subject", subject).Msg("Order email sent")
	return nil
}

func renderSummary(title string, s OrderSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2><ul>", html.EscapeString(title))
	fmt.Fprintf(&b, "<li>Orden: %s</li>", html.EscapeString(strings.Join(s.OrderNumbers, ", ")))
	fmt.Fprintf(&b, "<li>Clínica: %s</li>", html.EscapeString(s.ClinicName))
	fmt.Fprintf(&b, "<li>Doctor: %s</li>", html.EscapeString(s.DoctorName))
	fmt.Fprintf(&b, "<li>Paciente: %s</li>", html.EscapeString(s.PatientName))
	if len(s.Teeth) > 0 {
		fmt.Fprintf(&b, "<li>Piezas: %s</li>", html.EscapeString(strings.Join(s.Teeth, ", ")))
	}
	if len(s.Services) > 0 {
		fmt.Fprintf(&b, "<li>Servicios: %s</li>", html.EscapeString(strings.Join(s.Services, ", ")))
	}
	if s.Total.IsPositive() {
		fmt.Fprintf(&b, "<li>Total: %s %s</li>", html.EscapeString(s.Currency), s.Total.StringFixed(2))
	}
	if s.DueDate != nil {
		fmt.Fprintf(&b, "<li>Fecha de entrega: %s</li>", s.DueDate.Format("2006-01-02"))
	}
	b.WriteString("</ul>")
	return b.String()
}

// dispatcher runs notifications in the background. A failure is logged and
// counted; it never reaches the write that triggered it.
type dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func newDispatcher(n Notifier) *dispatcher {
	if n == nil {
		n = NoopNotifier{}
	}
	return &dispatcher{notifier: n, timeout: 15 * time.Second}
}

func (d *dispatcher) dispatch(kind string, summary OrderSummary) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		var err error
		switch kind {
		case NotifyOrderCreated:
			err = d.notifier.OrderCreated(ctx, summary)
		case NotifyOrderConfirmation:
			err = d.notifier.OrderConfirmation(ctx, summary)
		case NotifyOrderReady:
			err = d.notifier.OrderReady(ctx, summary)
		}
		if err != nil {
			metrics.NotificationsFailed.WithLabelValues(kind).Inc()
			log.Error().Err(err).Str("kind", kind).Strs("orders", summary.OrderNumbers).Msg("Failed to send order notification")
		}
	}()
}

// wait blocks until every dispatched notification has finished
func (d *dispatcher) wait() {
	d.wg.Wait()
}
