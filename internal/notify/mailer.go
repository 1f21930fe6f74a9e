// Package notify delivers budget alerts by e-mail.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"prevision/internal/amqp"
)

type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg EmailConfig
}

func NewMailer(cfg EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendBudgetAlert sends the alert e-mail for one message. With e-mail
// disabled it logs the alert instead, so a local setup without SMTP
// still drains the queue.
func (m *Mailer) SendBudgetAlert(ctx context.Context, msg *amqp.AlertMessage) error {
	if !m.cfg.Enabled {
		slog.InfoContext(ctx, "Email disabled, logging alert instead",
			"user", msg.User,
			"severity", msg.Severity,
			"period", msg.PeriodLabel,
			"percent_used", msg.PercentUsed)
		return nil
	}
	if msg.Email == "" {
		slog.WarnContext(ctx, "Alert has no recipient address, skipping",
			"user", msg.User, "period", msg.PeriodLabel)
		return nil
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.cfg.From)
	mail.SetHeader("To", msg.Email)
	mail.SetHeader("Subject", Subject(msg))
	mail.SetBody("text/plain", Body(msg))

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(mail); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	slog.InfoContext(ctx, "Alert email sent",
		"user", msg.User,
		"to", msg.Email,
		"severity", msg.Severity,
		"period", msg.PeriodLabel)
	return nil
}

// Subject renders the e-mail subject line for an alert.
func Subject(msg *amqp.AlertMessage) string {
	if msg.Severity == "critical" {
		return fmt.Sprintf("Budget alert: %.0f%% of your %s budget is gone", msg.PercentUsed, msg.PeriodLabel)
	}
	return fmt.Sprintf("Budget warning: %.0f%% of your %s budget used", msg.PercentUsed, msg.PeriodLabel)
}

// Body renders the plain-text e-mail body for an alert.
func Body(msg *amqp.AlertMessage) string {
	return fmt.Sprintf(
		"Hi %s,\n\n"+
			"Your spending for %s has reached %.1f%% of your monthly budget.\n\n"+
			"  Spent:     %.2f\n"+
			"  Budget:    %.2f\n"+
			"  Remaining: %.2f\n\n"+
			"Reimbursements already received are not counted as spending.\n",
		msg.User, msg.PeriodLabel, msg.PercentUsed, msg.Spent, msg.Limit, msg.Remaining)
}
