package services

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/spf13/viper"
)

// Mailer sends transactional mail (verification links, password resets).
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through a plain SMTP relay configured via viper.
type SMTPMailer struct{}

// NewSMTPMailer returns a Mailer backed by the configured SMTP relay.
func NewSMTPMailer() *SMTPMailer {
	viper.SetDefault("mail.host", "localhost")
	viper.SetDefault("mail.port", "587")
	viper.SetDefault("mail.from", "no-reply@fintrack.local")
	return &SMTPMailer{}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	host := viper.GetString("mail.host")
	port := viper.GetString("mail.port")
	from := viper.GetString("mail.from")
	username := viper.GetString("mail.username")
	password := viper.GetString("mail.password")

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, subject, body)

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	if err := smtp.SendMail(host+":"+port, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	log.Printf("[MAIL] Sent %q to %s", subject, to)
	return nil
}

// LogMailer writes mail to the log instead of delivering it. Used in
// development and tests.
type LogMailer struct{}

func (m *LogMailer) Send(to, subject, body string) error {
	log.Printf("[MAIL] (dev) to=%s subject=%q body=%q", to, subject, body)
	return nil
}
