package email

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/gmarko-dV/Integrador/internal/config"
)

// Message is a plain-text e-mail.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender defines the interface for sending emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSender returns an SMTP sender, or a LoggingSender when no SMTP host is
// configured.
func NewSender(cfg *config.Config, logger *zap.Logger) Sender {
	if cfg.SmtpHost == "" {
		logger.Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{from: cfg.SmtpFromAddress, logger: logger}
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
		from:   cfg.SmtpFromAddress,
		logger: logger,
	}
}

// NewFromConfig builds the sender used by the worker. The primary sender
// is Redis when MockServices is set, otherwise SMTP (or logging without an
// SMTP host). EmailLogFile adds a FileSender alongside it.
func NewFromConfig(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) Sender {
	var primary Sender
	if cfg.MockServices && rdb != nil {
		logger.Info("MOCK_SERVICES enabled, storing emails in Redis")
		primary = NewRedisSender(rdb, cfg.SmtpFromAddress, logger)
	} else {
		primary = NewSender(cfg, logger)
	}

	composite := NewCompositeSender(primary)
	if cfg.EmailLogFile != "" {
		fileSender, err := NewFileSender(cfg.EmailLogFile, cfg.SmtpFromAddress, logger)
		if err != nil {
			logger.Warn("Failed to initialise file email sender, continuing without it",
				zap.String("path", cfg.EmailLogFile), zap.Error(err))
		} else {
			composite.AddSender(fileSender)
			logger.Info("File email logger enabled", zap.String("path", cfg.EmailLogFile))
		}
	}
	return composite
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	s.logger.Info("Email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LoggingSender only logs the message. Useful in development.
type LoggingSender struct {
	from   string
	logger *zap.Logger
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("Email (logged, not sent)",
		zap.String("from", s.from),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
