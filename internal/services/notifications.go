package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrMailNotConfigured is returned when SMTP is not set up outside
// development.
var ErrMailNotConfigured = errors.New("smtp is not configured")

// Recipient is the person an email is addressed to.
type Recipient struct {
	Name  string
	Email string
}

func (r Recipient) FirstName() string {
	if fields := strings.Fields(r.Name); len(fields) > 0 {
		return fields[0]
	}
	return r.Name
}

// Mailer sends the account emails.
type Mailer interface {
	SendWelcome(ctx context.Context, to Recipient, url string) error
	SendPasswordReset(ctx context.Context, to Recipient, url string) error
}

type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	SiteName    string
	Development bool
}

// NotificationService renders the embedded templates and delivers them
// over SMTP. Without an SMTP host it only logs in development.
type NotificationService struct {
	cfg     MailConfig
	tmpl    *template.Template
	log     *zap.Logger
	deliver func(ctx context.Context, msg *mail.Msg) error
}

var _ Mailer = (*NotificationService)(nil)

func NewNotificationService(cfg MailConfig, log *zap.Logger) (*NotificationService, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	s := &NotificationService{cfg: cfg, tmpl: tmpl, log: log}

	if cfg.Host != "" {
		opts := []mail.Option{
			mail.WithPort(cfg.Port),
			mail.WithTLSPolicy(mail.TLSOpportunistic),
		}
		if cfg.Username != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password))
		}
		client, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		s.deliver = func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		}
	}
	return s, nil
}

func (s *NotificationService) SendWelcome(ctx context.Context, to Recipient, url string) error {
	return s.send(ctx, "welcome.html", fmt.Sprintf("Welcome to %s family", s.cfg.SiteName), to, url)
}

func (s *NotificationService) SendPasswordReset(ctx context.Context, to Recipient, url string) error {
	return s.send(ctx, "passwordReset.html", "Your password reset token (valid for only 10 minutes)", to, url)
}

type emailData struct {
	Subject   string
	FirstName string
	URL       string
	SiteName  string
}

func (s *NotificationService) send(ctx context.Context, name, subject string, to Recipient, url string) error {
	var body bytes.Buffer
	err := s.tmpl.ExecuteTemplate(&body, name, emailData{
		Subject:   subject,
		FirstName: to.FirstName(),
		URL:       url,
		SiteName:  s.cfg.SiteName,
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	if s.deliver == nil {
		if !s.cfg.Development {
			return ErrMailNotConfigured
		}
		s.log.Info("email not sent, smtp is not configured",
			zap.String("template", name),
			zap.String("to", to.Email),
			zap.String("url", url))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to.Email); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, htmlToText(body.String()))
	msg.AddAlternativeString(mail.TypeTextHTML, body.String())

	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", name, to.Email, err)
	}
	s.log.Info("email sent", zap.String("template", name), zap.String("to", to.Email))
	return nil
}

var (
	tags       = regexp.MustCompile(`(?s)<head.*?</head>|<[^>]+>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

func htmlToText(markup string) string {
	text := tags.ReplaceAllString(markup, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(html.UnescapeString(text))
}
