package mailer

import (
	"context"
	"fmt"

	"backoffice-service/config"
	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
	gopkgmail "gopkg.in/gomail.v2"
)

// Dialer opens SMTP sessions. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gopkgmail.SendCloser, error)
	DialAndSend(m ...*gopkgmail.Message) error
}

// Sender delivers plain text mail over SMTP
type Sender struct {
	dialer Dialer
	from   string
	logger *zap.Logger
}

func NewSender(cfg config.MailConfig) *Sender {
	d := gopkgmail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	d.SSL = cfg.SSL
	return NewSenderWithDialer(d, cfg.From)
}

func NewSenderWithDialer(d Dialer, from string) *Sender {
	return &Sender{dialer: d, from: from, logger: util.GetLogger()}
}

// Send delivers msg
func (s *Sender) Send(ctx context.Context, msg *models.EmailMessage) error {
	_, span := util.StartSpan(ctx, "Mailer.Send")
	defer span.End()

	if msg.To == "" {
		return fmt.Errorf("email %s has no recipient", msg.EventID)
	}

	m := gopkgmail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		util.EmailsSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("send email: %w", err)
	}

	util.EmailsSentTotal.WithLabelValues("sent").Inc()
	s.logger.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Verify opens and closes one SMTP session to check the settings
func (s *Sender) Verify() error {
	sc, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	return sc.Close()
}
