// internal/infra/email/mailer.go
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"channel_broadcast_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Mailer delivers contact-request notifications to the operator mailbox.
// Port 465 uses implicit TLS; any other port goes through STARTTLS via
// smtp.SendMail.
type Mailer struct {
	cfg    *config.AppConfig
	logger *logrus.Entry
}

func NewMailer(cfg *config.AppConfig, logger *logrus.Entry) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// Enabled reports whether SMTP credentials are configured. When they are
// not, contact requests are logged but no email goes out.
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPUser != "" && m.cfg.SMTPPassword != "" && m.cfg.SMTPToEmail != ""
}

// SendContactNotification emails the operator about a user's contact
// request.
func (m *Mailer) SendContactNotification(userID int64, username, text string) error {
	if !m.Enabled() {
		m.logger.WithField("user_id", userID).Warn("SMTP not configured, skipping contact notification email")
		return nil
	}

	body := fmt.Sprintf(
		"Пользователь: %s (ID: %d)\n\nСообщение:\n%s\n",
		displayName(username), userID, text,
	)
	msg := strings.Join([]string{
		"From: " + m.cfg.SMTPUser,
		"To: " + m.cfg.SMTPToEmail,
		"Subject: " + m.cfg.SMTPSubject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPServer, m.cfg.SMTPPort)
	auth := smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPServer)

	var err error
	if m.cfg.SMTPPort == 465 {
		err = m.sendImplicitTLS(addr, auth, []byte(msg))
	} else {
		err = smtp.SendMail(addr, auth, m.cfg.SMTPUser, []string{m.cfg.SMTPToEmail}, []byte(msg))
	}
	if err != nil {
		return fmt.Errorf("failed to send contact notification email: %w", err)
	}

	m.logger.WithField("user_id", userID).Info("Contact notification email sent")
	return nil
}

func (m *Mailer) sendImplicitTLS(addr string, auth smtp.Auth, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.SMTPServer})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.SMTPServer)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(m.cfg.SMTPUser); err != nil {
		return err
	}
	if err := client.Rcpt(m.cfg.SMTPToEmail); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func displayName(username string) string {
	if username == "" {
		return "без username"
	}
	return "@" + username
}
