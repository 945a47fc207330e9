package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/matcornic/hermes/v2"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers one rendered email.
type Mailer interface {
	Send(ctx context.Context, to Recipient, subject, html, text string) error
}

// Renderer turns a notification into HTML and plain text bodies.
type Renderer struct {
	h hermes.Hermes
}

func NewRenderer(productName, productLink string) *Renderer {
	return &Renderer{h: hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:        productName,
			Link:        productLink,
			Copyright:   "You receive this email because you play on " + productName + ".",
			TroubleText: "If the {ACTION} button does not work, copy this link into your browser:",
		},
	}}
}

func (r *Renderer) Render(n Notification, to Recipient) (html, text string, err error) {
	body := hermes.Body{
		Name:   to.Name,
		Intros: []string{n.Body},
	}
	if n.Link != "" {
		label := n.LinkText
		if label == "" {
			label = "Open"
		}
		body.Actions = []hermes.Action{{
			Button: hermes.Button{Color: "#16a34a", Text: label, Link: n.Link},
		}}
	}
	email := hermes.Email{Body: body}

	if html, err = r.h.GenerateHTML(email); err != nil {
		return "", "", fmt.Errorf("render html for %s: %w", n.Kind, err)
	}
	if text, err = r.h.GeneratePlainText(email); err != nil {
		return "", "", fmt.Errorf("render text for %s: %w", n.Kind, err)
	}
	return html, text, nil
}

type SendgridMailer struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

func NewSendgridMailer(apiKey, fromName, fromAddr string) *SendgridMailer {
	return &SendgridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

func (m *SendgridMailer) Send(ctx context.Context, to Recipient, subject, html, text string) error {
	from := mail.NewEmail(m.fromName, m.fromAddr)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail(to.Name, to.Email), text, html)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer sends through a plain SMTP relay. Port 465 uses implicit TLS,
// anything else STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to Recipient, subject, html, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to.Email, "\r\n") {
		return errors.New("smtp: invalid recipient address")
	}

	msg := []byte("To: " + to.Email + "\r\n" +
		"From: " + m.cfg.From + "\r\n" +
		"Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		html + "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	var client *smtp.Client
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, m.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if m.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to.Email); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
