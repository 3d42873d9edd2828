package notifier

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"errortracker/src/model"
)

var ErrNoRecipients = errors.New("no recipients configured")

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications as plain text mail.
type EmailNotifier struct {
	addr     string
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmailNotifier(config Config) (*EmailNotifier, error) {
	if config.SMTPHost == "" {
		return nil, errors.New("SMTP_HOST is required for the email notifier")
	}

	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}

	return &EmailNotifier{
		addr:     net.JoinHostPort(config.SMTPHost, strconv.Itoa(config.SMTPPort)),
		auth:     auth,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (e *EmailNotifier) Notify(_ context.Context, _ *http.Request, _ *model.ErrorAggregate, n model.Notification) error {
	if len(n.Recipients) == 0 {
		return ErrNoRecipients
	}

	if err := e.sendMail(e.addr, e.auth, n.Sender, n.Recipients, e.message(n)); err != nil {
		return fmt.Errorf("send mail via %s: %w", e.addr, err)
	}
	return nil
}

func (e *EmailNotifier) message(n model.Notification) []byte {
	var b strings.Builder
	b.WriteString("From: " + n.Sender + "\r\n")
	b.WriteString("To: " + strings.Join(n.Recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", headerSafe(n.Subject)) + "\r\n")
	b.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(n.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
