// Package email sends canned template messages to leads over SMTP.
package email

import (
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

var (
	ErrNotConfigured   = errors.New("email not configured")
	ErrUnknownTemplate = errors.New("unknown email template")
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Sender delivers one HTML message.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// SMTPSender delivers through gomail's dialer, one connection per message.
type SMTPSender struct {
	config Config
	dialer *gomail.Dialer
}

func NewSMTPSender(config Config) *SMTPSender {
	return &SMTPSender{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.config.From, s.config.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", "Please view this email in an HTML-capable email client.")
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send smtp: %w", err)
	}
	return nil
}

// Service renders templates and hands them to a Sender.
type Service struct {
	config Config
	sender Sender
}

func NewService(config Config) *Service {
	return &Service{config: config, sender: NewSMTPSender(config)}
}

// NewServiceWithSender is used by tests to capture outgoing mail.
func NewServiceWithSender(config Config, sender Sender) *Service {
	return &Service{config: config, sender: sender}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != 0 && s.config.From != ""
}

// SendTemplate renders templateID with data and sends it to to. It returns
// the template so callers can record what was sent.
func (s *Service) SendTemplate(to, templateID string, data TemplateData) (Template, error) {
	if !s.IsConfigured() {
		return Template{}, ErrNotConfigured
	}
	tpl, ok := Lookup(templateID)
	if !ok {
		return Template{}, ErrUnknownTemplate
	}
	if data.BrokerName == "" {
		data.BrokerName = s.config.FromName
	}
	subject, body, err := tpl.Render(data)
	if err != nil {
		return Template{}, err
	}
	if err := s.sender.Send(to, subject, body); err != nil {
		return Template{}, err
	}
	return tpl, nil
}
