package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const (
	// SubmissionPort is the SMTP submission port that expects STARTTLS
	SubmissionPort = 587

	smtpTimeout = time.Second * 15
)

// Config holds the SMTP account and the two recipient lists.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From defaults to Username
	From    string
	Timeout time.Duration

	SuccessRecipients []string
	FailureRecipients []string
}

// sender is the part of *mail.Client the Service needs.
type sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// Service sends plain text notification emails. Every email opens its own SMTP
// session which is upgraded with STARTTLS and authenticated before the message
// is submitted, the session is closed right after.
type Service struct {
	logger *zap.Logger
	cfg    Config
	dial   func() (sender, error)
}

func NewService(logger *zap.Logger, cfg Config) (*Service, error) {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = SubmissionPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = smtpTimeout
	}

	s := Service{
		logger: logger,
		cfg:    cfg,
	}
	s.dial = s.newClient

	if err := s.validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Service) validate() error {
	var missingDeps []string

	for _, tc := range []struct {
		dep string
		chk func() bool
	}{
		{
			dep: "logger",
			chk: func() bool { return s.logger != nil },
		},
		{
			dep: "host",
			chk: func() bool { return s.cfg.Host != "" },
		},
		{
			dep: "username",
			chk: func() bool { return s.cfg.Username != "" },
		},
		{
			dep: "password",
			chk: func() bool { return s.cfg.Password != "" },
		},
		{
			dep: "successRecipients",
			chk: func() bool { return len(s.cfg.SuccessRecipients) > 0 },
		},
		{
			dep: "failureRecipients",
			chk: func() bool { return len(s.cfg.FailureRecipients) > 0 },
		},
	} {
		if !tc.chk() {
			missingDeps = append(missingDeps, tc.dep)
		}
	}

	if len(missingDeps) > 0 {
		return fmt.Errorf(
			"unable to initialize notify service due to (%d) missing dependencies: %s",
			len(missingDeps),
			strings.Join(missingDeps, ","),
		)
	}

	return nil
}

// Success emails the success recipients.
func (s *Service) Success(ctx context.Context, subject, body string) error {
	return s.Send(ctx, s.cfg.SuccessRecipients, subject, body)
}

// Failure emails the failure recipients.
func (s *Service) Failure(ctx context.Context, subject, body string) error {
	return s.Send(ctx, s.cfg.FailureRecipients, subject, body)
}

// Send delivers a single plain text email to all recipients in to.
func (s *Service) Send(ctx context.Context, to []string, subject, body string) error {
	logger := s.logger.With(zap.Strings("to", to), zap.String("subject", subject))

	if len(to) == 0 {
		const msg = "unable to send email: no recipients"
		logger.Error(msg)
		return errors.New(msg)
	}

	m, err := s.message(to, subject, body)
	if err != nil {
		const msg = "unable to build email"
		logger.Error(msg, zap.Error(err))
		return fmt.Errorf(msg+": %w", err)
	}

	c, err := s.dial()
	if err != nil {
		const msg = "unable to create smtp client"
		logger.Error(msg, zap.Error(err))
		return fmt.Errorf(msg+": %w", err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		const msg = "unable to send email"
		logger.Error(msg, zap.Error(err))
		return fmt.Errorf(msg+": %w", err)
	}

	logger.Debug("successfully sent email")

	return nil
}

func (s *Service) message(to []string, subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	if err := m.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	return m, nil
}

func (s *Service) newClient() (sender, error) {
	c, err := mail.NewClient(
		s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(s.cfg.Timeout),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}
