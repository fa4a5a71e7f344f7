package services

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Mailer sends composed messages. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService is the out-of-app delivery channel. Every failure it returns
// is a notification delivery failure and must never fail a workflow.
type EmailService struct {
	cfg    config.EmailConfig
	mailer Mailer
	log    zerolog.Logger
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{
		cfg:    *cfg,
		mailer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    logger.Component("email"),
	}
}

// SetMailer replaces the SMTP dialer.
func (s *EmailService) SetMailer(m Mailer) {
	s.mailer = m
}

func (s *EmailService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.cfg.Host != ""
}

// Send delivers an HTML message to a single recipient.
func (s *EmailService) Send(to, subject, htmlBody string) error {
	if !s.Enabled() {
		return nil
	}
	if to == "" {
		return &Error{Kind: KindNotificationDelivery, Message: "email recipient is empty"}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.From, s.cfg.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.mailer.DialAndSend(m); err != nil {
		return &Error{Kind: KindNotificationDelivery, Message: "failed to send email", Err: err}
	}
	s.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// AcceptURL links to the accept screen for an invitation code.
func (s *EmailService) AcceptURL(code string) string {
	base := strings.TrimSuffix(s.cfg.PublicURL, "/")
	return fmt.Sprintf("%s/invitations/%s", base, url.PathEscape(code))
}

// VerifyURL links to the email confirmation screen.
func (s *EmailService) VerifyURL(token string) string {
	base := strings.TrimSuffix(s.cfg.PublicURL, "/")
	return fmt.Sprintf("%s/verify-email?token=%s", base, url.QueryEscape(token))
}

// InvitationEmail is the data rendered into the invitation template.
type InvitationEmail struct {
	ProjectName string
	InviterName string
	Role        models.Role
	Message     string
	Code        string
	AcceptURL   string
	ExpiresAt   time.Time
}

var invitationEmailTmpl = template.Must(template.New("invitation").Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>You're invited to join {{.ProjectName}}</h2>
<p><strong>{{.InviterName}}</strong> invited you to collaborate on <strong>{{.ProjectName}}</strong> as <strong>{{.Role}}</strong>.</p>
{{if .Message}}<blockquote style="background: #f5f5f5; padding: 12px; border-radius: 4px;">{{.Message}}</blockquote>{{end}}
<p><a href="{{.AcceptURL}}" style="background: #5271ff; color: #ffffff; padding: 10px 20px; border-radius: 4px; text-decoration: none;">Accept invitation</a></p>
<p>Or use this invitation code: <code>{{.Code}}</code></p>
<p style="color: #888; font-size: 12px;">This invitation expires on {{.ExpiresAt.Format "Jan 2, 2006 15:04 MST"}}. If you were not expecting it you can ignore this email.</p>
</body></html>`))

var notificationEmailTmpl = template.Must(template.New("notification").Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<hr><p style="color: #888; font-size: 12px;">You received this because you have an account on TeamHub.</p>
</body></html>`))

var verificationEmailTmpl = template.Must(template.New("verification").Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>Confirm your email address</h2>
<p>Hi {{.Name}}, confirm that <strong>{{.Email}}</strong> belongs to you so invitations sent to it reach your account.</p>
<p><a href="{{.URL}}" style="background: #5271ff; color: #ffffff; padding: 10px 20px; border-radius: 4px; text-decoration: none;">Confirm email</a></p>
<p style="color: #888; font-size: 12px;">If you did not create a TeamHub account you can ignore this email.</p>
</body></html>`))

// RenderVerification builds the email confirmation message for user.
func (s *EmailService) RenderVerification(user *models.User, token string) (string, string, error) {
	var buf bytes.Buffer
	err := verificationEmailTmpl.Execute(&buf, map[string]string{
		"Name":  user.DisplayName(),
		"Email": user.Email,
		"URL":   s.VerifyURL(token),
	})
	if err != nil {
		return "", "", err
	}
	return "[TeamHub] Confirm your email address", buf.String(), nil
}

// RenderInvitation builds the subject and body of an invitation email.
func (s *EmailService) RenderInvitation(data *InvitationEmail) (string, string, error) {
	if data == nil {
		return "", "", errors.New("nil invitation email")
	}
	if data.AcceptURL == "" {
		data.AcceptURL = s.AcceptURL(data.Code)
	}

	var buf bytes.Buffer
	if err := invitationEmailTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("[TeamHub] %s invited you to %s", data.InviterName, data.ProjectName)
	return subject, buf.String(), nil
}

// RenderNotification builds the email mirror of an in-app notification.
func (s *EmailService) RenderNotification(n *models.Notification) (string, string, error) {
	var buf bytes.Buffer
	if err := notificationEmailTmpl.Execute(&buf, n); err != nil {
		return "", "", err
	}
	return "[TeamHub] " + n.Title, buf.String(), nil
}
