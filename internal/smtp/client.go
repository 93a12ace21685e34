package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"mailbatch/internal/email"
)

const defaultTimeout = 30 * time.Second

type messageBuilder interface {
	Build(msg email.Message) ([]byte, error)
}

type Client struct {
	cfg     Config
	builder messageBuilder
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:     cfg,
		builder: email.NewBuilder(),
	}
}

// Send delivers msg in a single SMTP transaction, with one RCPT per envelope
// recipient (To and every Bcc address).
func (c *Client) Send(ctx context.Context, msg email.Message) error {
	if msg.From == "" {
		msg.From = c.cfg.From
	}

	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	var recipients []string
	for _, raw := range msg.Recipients() {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid recipient %q: %w", raw, err)
		}
		recipients = append(recipients, addr.Address)
	}

	message, err := c.builder.Build(msg)
	if err != nil {
		return err
	}

	server := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}

	defer func() { _ = client.Close() }()

	if err := client.Hello("localhost"); err != nil {
		return err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{
			ServerName:         c.cfg.Host,
			InsecureSkipVerify: c.cfg.AllowInsecureTls,
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return err
		}
	}

	if c.cfg.User != "" {
		auth := smtp.PlainAuth("", c.cfg.User, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from.Address); err != nil {
		return err
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("recipient %s rejected: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}
