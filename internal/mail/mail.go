// Package mail renders HTML notifications from embedded templates and
// delivers them over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lawdesk.org/internal/obs"
)

const (
	TemplatePasswordReset    = "password_reset.html"
	TemplateDeadlineReminder = "deadline_reminder.html"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipient = errors.New("mail: no recipient")

// Message is one outgoing notification. Template names a file under templates/.
type Message struct {
	To       []string
	Subject  string
	Template string
	Data     any
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render executes the named template.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

type Encryption string

const (
	EncNone     Encryption = "NONE"
	EncStartTLS Encryption = "STARTTLS"
	EncTLS      Encryption = "TLS"
)

// ParseEncryption accepts NONE, STARTTLS and TLS (or SSL/TLS). Anything else
// falls back to STARTTLS.
func ParseEncryption(s string) Encryption {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return EncNone
	case "TLS", "SSL", "SSL/TLS":
		return EncTLS
	default:
		return EncStartTLS
	}
}

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Encryption string
}

// SMTP sends mail through a single relay.
type SMTP struct {
	addr     string
	host     string
	username string
	password string
	from     string
	fromName string
	enc      Encryption
	timeout  time.Duration
}

func NewSMTP(cfg Config) *SMTP {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTP{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		fromName: cfg.FromName,
		enc:      ParseEncryption(cfg.Encryption),
		timeout:  15 * time.Second,
	}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	body, err := Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}
	raw, err := buildMessage(s.from, s.fromName, msg.To, msg.Subject, body)
	if err != nil {
		return err
	}

	d := net.Dialer{Timeout: s.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	var conn net.Conn
	if s.enc == EncTLS {
		conn, err = tls.DialWithDialer(&d, "tcp", s.addr, &tls.Config{ServerName: s.host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("mail: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: new client: %w", err)
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return fmt.Errorf("mail: hello: %w", err)
	}
	if s.enc == EncStartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("mail: starttls: %w", err)
			}
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := c.Mail(s.from); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close data: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, fromName string, to []string, subject, html string) ([]byte, error) {
	sender := (&netmail.Address{Name: fromName, Address: from}).String()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(html)); err != nil {
		return nil, fmt.Errorf("mail: encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("mail: encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// LogSender renders messages and logs them instead of sending. Used when no
// SMTP host is configured.
type LogSender struct {
	log *logrus.Entry
}

func NewLogSender() *LogSender {
	return &LogSender{log: obs.Component("mail")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	if _, err := Render(msg.Template, msg.Data); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"to":       strings.Join(msg.To, ","),
		"subject":  msg.Subject,
		"template": msg.Template,
	}).Info("mail_not_sent_no_smtp")
	return nil
}

// New returns an SMTP sender when a host is configured, otherwise a LogSender.
func New(cfg Config) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender()
	}
	return NewSMTP(cfg)
}
