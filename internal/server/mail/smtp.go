package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wayfarerapp/wayfarer-server/internal/logging"
)

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPConfig carries the settings for the SMTP relay.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// SMTPMailer implements Mailer over a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer constructs an SMTPMailer with the given settings.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendExportReady sends the notification with the download link.
func (m *SMTPMailer) SendExportReady(ctx context.Context, address, downloadLink string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", address)
	b.WriteString("Subject: Your travel data export is ready\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your export has finished. Download it here:\r\n\r\n")
	b.WriteString(downloadLink)
	b.WriteString("\r\n\r\nThe link expires; request a new export if you miss it.\r\n")

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host := m.cfg.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	return sendMail(m.cfg.Addr, auth, m.cfg.From, []string{address}, []byte(b.String()))
}

// LogMailer is a Mailer for development setups without an SMTP relay: it
// only logs what would have been sent.
type LogMailer struct {
	logger logging.Logger
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer constructs a LogMailer.
func NewLogMailer(l logging.Logger) *LogMailer {
	return &LogMailer{logger: l.With("module", "mail")}
}

// SendExportReady logs the notification instead of sending it.
func (m *LogMailer) SendExportReady(ctx context.Context, address, downloadLink string) error {
	m.logger.Info(ctx, "export ready notification (not sent)", "address", address, "link", downloadLink)
	return nil
}
