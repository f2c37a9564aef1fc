// Package email sends notification mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   SendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// WithSender replaces the SMTP transport.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
}

// buildMessage writes a multipart/alternative message with a plain text
// and an HTML part.
func buildMessage(from string, to []string, replyTo, subject, textBody, htmlBody string) []byte {
	const boundary = "boundary-diocese"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	if replyTo != "" {
		fmt.Fprintf(&msg, "Reply-To: %s\r\n", replyTo)
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func (s *Service) SendHTMLEmail(to []string, replyTo, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := buildMessage(s.fromHeader(), to, replyTo, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// ContactNotice is a contact form submission forwarded to the office.
type ContactNotice struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Subject    string
	Message    string
	ReceivedAt time.Time
}

// SendContactNotification forwards a submission to the diocesan office.
// Replies go straight to the sender.
func (s *Service) SendContactNotification(officeAddress string, notice ContactNotice) error {
	if officeAddress == "" {
		return ErrNotConfigured
	}
	html, err := renderTemplate(contactNotificationTemplate, notice)
	if err != nil {
		return fmt.Errorf("render contact template: %w", err)
	}
	text := fmt.Sprintf("From: %s %s <%s>\nPhone: %s\nSubject: %s\n\n%s",
		notice.FirstName, notice.LastName, notice.Email, notice.Phone, notice.Subject, notice.Message)
	subject := "Website enquiry: " + notice.Subject
	return s.SendHTMLEmail([]string{officeAddress}, notice.Email, subject, text, html)
}

var contactNotificationTemplate = template.Must(template.New("contact").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Georgia, serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #5b2c6f; padding-bottom: 10px; margin-bottom: 20px; }
        .meta td { padding: 2px 12px 2px 0; vertical-align: top; }
        .message { white-space: pre-wrap; background: #f7f5f9; padding: 12px; border-radius: 4px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>New website enquiry</h1>
    </div>
    <table class="meta">
        <tr><td>From</td><td>{{.FirstName}} {{.LastName}}</td></tr>
        <tr><td>Email</td><td>{{.Email}}</td></tr>
        {{if .Phone}}<tr><td>Phone</td><td>{{.Phone}}</td></tr>{{end}}
        <tr><td>Subject</td><td>{{.Subject}}</td></tr>
        <tr><td>Received</td><td>{{.ReceivedAt.Format "2 Jan 2006 15:04"}}</td></tr>
    </table>
    <p class="message">{{.Message}}</p>
    <div class="footer">
        <p>Reply to this email to answer the sender directly. The message is also in the admin inbox.</p>
    </div>
</body>
</html>`))

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
