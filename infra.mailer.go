package main

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Mailer delivers verification codes to users.
type Mailer interface {
	SendVerification(ctx context.Context, mail VerificationMail) error
}

// NewMailer returns an SMTP mailer, or a mailer which only logs the
// messages when no SMTP host is configured.
func NewMailer(logger *zap.Logger, config *MailConfig) Mailer {
	if config.Host == "" {
		return &logMailer{logger: logger}
	}
	return &smtpMailer{logger: logger, config: config, send: smtp.SendMail}
}

func verificationMessage(from string, mail VerificationMail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", mail.To)
	b.WriteString("Subject: Verify your email\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Hello %s,\r\n\r\nYour verification code is %s.\r\n", mail.Firstname, mail.Code)
	return []byte(b.String())
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpMailer struct {
	logger *zap.Logger
	config *MailConfig
	send   sendMailFunc
}

func (sm *smtpMailer) SendVerification(ctx context.Context, mail VerificationMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if sm.config.Username != "" {
		auth = smtp.PlainAuth("", sm.config.Username, sm.config.Password, sm.config.Host)
	}
	addr := net.JoinHostPort(sm.config.Host, sm.config.Port)
	if err := sm.send(addr, auth, sm.config.From, []string{mail.To}, verificationMessage(sm.config.From, mail)); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	sm.logger.Info("mailer: verification mail sent", zap.String("mail.to", mail.To))
	return nil
}

type logMailer struct {
	logger *zap.Logger
}

func (lm *logMailer) SendVerification(_ context.Context, mail VerificationMail) error {
	lm.logger.Info("mailer: smtp disabled: verification code",
		zap.String("mail.to", mail.To),
		zap.String("mail.code", mail.Code),
	)
	return nil
}
