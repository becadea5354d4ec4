package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"badgerland/internal/metrics"
	"badgerland/internal/models"

	"github.com/resend/resend-go/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const (
	channelEmail = "email"
	channelSMS   = "sms"
)

type EmailMessage struct {
	To      []string
	Subject string
	HTML    string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type resendSender struct {
	client  *resend.Client
	from    string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewResendSender sends transactional email through Resend.
func NewResendSender(apiKey, from string, breakerCfg BreakerConfig, logger *zap.Logger, m *metrics.Metrics) EmailSender {
	return &resendSender{
		client:  resend.NewClient(apiKey),
		from:    from,
		breaker: newBreaker("resend", breakerCfg, logger, m),
	}
}

func (s *resendSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	_, err := execute(s.breaker, func() (*resend.SendEmailResponse, error) {
		return s.client.Emails.SendWithContext(ctx, params)
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

type twilioSender struct {
	client  *twilio.RestClient
	from    string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewTwilioSender sends SMS from a Twilio number.
func NewTwilioSender(accountSID, authToken, from string, breakerCfg BreakerConfig, logger *zap.Logger, m *metrics.Metrics) SMSSender {
	return &twilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:    from,
		breaker: newBreaker("twilio", breakerCfg, logger, m),
	}
}

func (s *twilioSender) SendSMS(_ context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	_, err := execute(s.breaker, func() (*openapi.ApiV2010Message, error) {
		return s.client.Api.CreateMessage(params)
	})
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	return nil
}

// LogSender stands in for both providers when they are not configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email (not sent, provider disabled)", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info("sms (not sent, provider disabled)", zap.String("to", to), zap.String("body", body))
	return nil
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "admin_booking"}}
<h2>New Pickup Request</h2>
<p><strong>Name:</strong> {{.FullName}}</p>
<p><strong>Address:</strong> {{.Address}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Pickup:</strong> {{.PickupDate}} at {{.PickupTime}}</p>
<p><strong>Service:</strong> {{.Service}}</p>
<p><strong>Detergent:</strong> {{.Detergent}}</p>
<p><strong>Dryer Sheets:</strong> {{.DryerSheets}}</p>
<p><strong>Bags/Loads:</strong> {{.Bags}}</p>
<p><strong>Estimated Cost:</strong> ${{.Estimate}}</p>
<p><strong>Instructions:</strong> {{.Instructions}}</p>
{{end}}
{{define "customer_booking"}}
<h2>Thanks for scheduling with Badgerland Laundry!</h2>
<p>Your pickup is scheduled for:</p>
<p><strong>{{.PickupDate}}</strong> at <strong>{{.PickupTime}}</strong></p>
<p><strong>Bags/Loads:</strong> {{.Bags}}</p>
<p><strong>Estimated Cost:</strong> ${{.Estimate}}</p>
<p>We'll notify you when your laundry is being washed and when it's out for delivery.</p>
{{end}}
{{define "plain"}}
<p>Hi {{.Name}},</p>
<p>{{.Body}}</p>
<p>Thank you for choosing Badgerland Laundry!</p>
{{end}}
`))

type bookingView struct {
	FullName     string
	Address      string
	Phone        string
	Email        string
	PickupDate   string
	PickupTime   string
	Service      string
	Detergent    string
	DryerSheets  bool
	Bags         string
	Estimate     string
	Instructions string
}

func newBookingView(o *models.Order) bookingView {
	v := bookingView{
		FullName:     deref(o.FullName),
		Address:      deref(o.Address),
		Phone:        deref(o.Phone),
		Email:        deref(o.Email),
		PickupDate:   o.PickupDate.Format(dateLayout),
		PickupTime:   o.PickupTime,
		Service:      o.Service,
		Detergent:    deref(o.Detergent),
		DryerSheets:  o.DryerSheets,
		Instructions: deref(o.Instructions),
	}
	if o.Bags != nil {
		v.Bags = fmt.Sprint(*o.Bags)
	}
	if o.Estimate != nil {
		v.Estimate = fmt.Sprintf("%.2f", *o.Estimate)
	}
	return v
}

func renderPlain(name, body string) (string, error) {
	if name == "" {
		name = "there"
	}
	return render("plain", map[string]string{"Name": name, "Body": body})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Notifier turns bookings, status changes and stored notifications into
// outbound email and SMS.
type Notifier struct {
	email      EmailSender
	sms        SMSSender
	adminEmail string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewNotifier(email EmailSender, sms SMSSender, adminEmail string, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{email: email, sms: sms, adminEmail: adminEmail, metrics: m, logger: logger}
}

func (n *Notifier) sendEmail(ctx context.Context, msg EmailMessage) error {
	err := n.email.SendEmail(ctx, msg)
	n.metrics.IncNotificationSend(channelEmail, err)
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, body string) error {
	err := n.sms.SendSMS(ctx, to, body)
	n.metrics.IncNotificationSend(channelSMS, err)
	return err
}

// NotifyBooking emails the shop about a new booking and confirms it to the
// customer by the channels they picked.
func (n *Notifier) NotifyBooking(ctx context.Context, o *models.Order) error {
	view := newBookingView(o)
	var errs []error

	if n.adminEmail != "" {
		html, err := render("admin_booking", view)
		if err == nil {
			err = n.sendEmail(ctx, EmailMessage{To: []string{n.adminEmail}, Subject: "New Laundry Pickup Scheduled", HTML: html})
		}
		errs = append(errs, err)
	}

	pref := deref(o.NotificationPreference)
	if (pref == "email" || pref == "both") && deref(o.Email) != "" {
		html, err := render("customer_booking", view)
		if err == nil {
			err = n.sendEmail(ctx, EmailMessage{To: []string{*o.Email}, Subject: "Your Pickup is Scheduled", HTML: html})
		}
		errs = append(errs, err)
	}
	if (pref == "sms" || pref == "both") && deref(o.Phone) != "" {
		body := fmt.Sprintf("Badgerland Laundry: your pickup is scheduled for %s at %s.", view.PickupDate, o.PickupTime)
		errs = append(errs, n.sendSMS(ctx, *o.Phone, body))
	}
	return errors.Join(errs...)
}

// StatusMessage returns the subject and customer-facing text for a status change.
func StatusMessage(status models.OrderStatus, name string) (subject, message string) {
	if name == "" {
		name = "there"
	}
	switch status {
	case models.OrderStatusPickedUp:
		return "Your laundry has been picked up",
			fmt.Sprintf("Hi %s, your Badgerland Laundry pickup is complete and your laundry is on its way to be washed.", name)
	case models.OrderStatusWashing:
		return "Your laundry is being washed",
			fmt.Sprintf("Hi %s, your laundry is now being washed and processed.", name)
	case models.OrderStatusReadyForDelivery:
		return "Your laundry is ready for delivery",
			fmt.Sprintf("Hi %s, your laundry is ready and will be delivered during your scheduled window.", name)
	case models.OrderStatusDelivered:
		return "Your laundry has been delivered",
			fmt.Sprintf("Hi %s, your laundry has been delivered. Thank you for choosing Badgerland Laundry!", name)
	default:
		return "Update on your laundry order",
			fmt.Sprintf("Hi %s, there is an update on your laundry order. Current status: %s.", name, status.Label())
	}
}

// NotifyOrderStatus tells the customer about a status change. Contact details
// come from the profile when there is one, otherwise from the booking.
func (n *Notifier) NotifyOrderStatus(ctx context.Context, o *models.Order, profile *models.Profile) error {
	name, email, phone := deref(o.FullName), deref(o.Email), ""
	emailOn, smsOn := email != "", false
	if profile != nil {
		if profile.FullName != nil {
			name = *profile.FullName
		}
		if profile.Email != nil {
			email = *profile.Email
		}
		phone = deref(profile.Phone)
		emailOn = profile.EmailEnabled && email != ""
		smsOn = profile.SMSEnabled && phone != ""
	}

	subject, message := StatusMessage(o.Status, name)
	var errs []error
	if emailOn {
		html, err := renderPlain(name, message)
		if err == nil {
			err = n.sendEmail(ctx, EmailMessage{To: []string{email}, Subject: subject, HTML: html})
		}
		errs = append(errs, err)
	}
	if smsOn {
		errs = append(errs, n.sendSMS(ctx, phone, fmt.Sprintf("Badgerland Laundry: Your order is now %s.", o.Status.Label())))
	}
	return errors.Join(errs...)
}

// Deliver pushes a stored notification to the user's enabled channels.
func (n *Notifier) Deliver(ctx context.Context, notification *models.Notification, profile *models.Profile) error {
	var errs []error
	if profile.EmailEnabled && deref(profile.Email) != "" {
		html, err := renderPlain(deref(profile.FullName), notification.Message)
		if err == nil {
			err = n.sendEmail(ctx, EmailMessage{To: []string{*profile.Email}, Subject: notification.Subject(), HTML: html})
		}
		errs = append(errs, err)
	}
	if profile.SMSEnabled && deref(profile.Phone) != "" {
		errs = append(errs, n.sendSMS(ctx, *profile.Phone, "Badgerland Laundry: "+notification.Message))
	}
	return errors.Join(errs...)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
