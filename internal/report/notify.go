package report

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// Notifier delivers run reports. Implementations must be safe to call
// with an empty body; they skip the send.
type Notifier interface {
	Notify(subject, htmlBody string) error
}

// NopNotifier discards everything; used when no recipient is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string) error { return nil }

// SMTPNotifier sends HTML mail over SMTP with STARTTLS.
type SMTPNotifier struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Recipient string
}

func (n *SMTPNotifier) Notify(subject, htmlBody string) error {
	if htmlBody == "" {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)

	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if n.Username != "" {
		auth := smtp.PlainAuth("", n.Username, n.Password, n.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from := n.From
	if from == "" {
		from = n.Username
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(n.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(from, n.Recipient, subject, htmlBody)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return c.Quit()
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
