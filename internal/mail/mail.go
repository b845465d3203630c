package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds the SMTP relay settings.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Sender delivers plain text mail through an SMTP relay using STARTTLS.
type Sender struct {
	config Config
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	now    func() time.Time
}

func NewSender(c Config) *Sender {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.From == "" {
		c.From = c.Username
	}
	d := &net.Dialer{Timeout: c.Timeout}
	return &Sender{config: c, dial: d.DialContext, now: time.Now}
}

// Notify sends subject and body to the address in target.
func (s *Sender) Notify(ctx context.Context, target, subject, body string) error {
	addr := net.JoinHostPort(s.config.Server, strconv.Itoa(s.config.Port))
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "could not connect to %s", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Server)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "could not start smtp session")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Server, MinVersion: tls.VersionTLS12}); err != nil {
			return errors.Wrap(err, "starttls failed")
		}
	}
	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Server)
		if err := c.Auth(auth); err != nil {
			return errors.Wrap(err, "smtp auth failed")
		}
	}
	if err := c.Mail(s.config.From); err != nil {
		return errors.Wrap(err, "smtp MAIL FROM rejected")
	}
	if err := c.Rcpt(target); err != nil {
		return errors.Wrapf(err, "smtp RCPT TO %s rejected", target)
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp DATA rejected")
	}
	if _, err := w.Write(BuildMessage(s.config.From, target, subject, body, s.now())); err != nil {
		w.Close()
		return errors.Wrap(err, "could not write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "could not finish message")
	}

	log.WithFields(log.Fields{"component": "mail", "to": target}).Debug("Mail sent")
	return c.Quit()
}

// BuildMessage renders an RFC 5322 plain text message.
func BuildMessage(from, to, subject, body string, date time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}
