package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// sendMail is a seam for tests.
var sendMail = smtp.SendMail

// SMTPNotifier sends events as plain-text email over SMTP.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier validates cfg and returns a notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Notify implements Notifier. The context is only checked before sending;
// net/smtp has no cancellation.
func (n *SMTPNotifier) Notify(ctx context.Context, e Event) error {
	if e.To == "" {
		return fmt.Errorf("no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port)
	if err := sendMail(addr, auth, n.cfg.From, []string{e.To}, n.message(e)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) message(e Event) []byte {
	subject, body := Render(e)

	from := n.cfg.From
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.cfg.FromName, n.cfg.From)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", e.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}
