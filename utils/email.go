package utils

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/config"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// EmailDispatcher sends overdue summaries to the finance mailbox via SMTP.
// Delivery is fire-and-forget: failures are logged, never returned.
type EmailDispatcher struct {
	cfg *config.Config
	log *logrus.Logger
}

func NewEmailDispatcher(cfg *config.Config, log *logrus.Logger) *EmailDispatcher {
	return &EmailDispatcher{cfg: cfg, log: log}
}

// OverdueDetected implements billing.Dispatcher.
func (d *EmailDispatcher) OverdueDetected(domain string, count int64, sample []models.Installment) {
	e := email.NewEmail()
	e.From = d.cfg.SenderEmail
	e.To = []string{d.cfg.NotifyEmail}
	e.Subject = fmt.Sprintf("Overdue installments detected: %s", domain)
	e.Text = []byte(OverdueMessageBody(domain, count, sample))

	addr := fmt.Sprintf("%s:%s", d.cfg.SMTPHost, d.cfg.SMTPPort)
	auth := smtp.PlainAuth("", d.cfg.SMTPUsername, d.cfg.SMTPPassword, d.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		d.log.Errorf("Failed to send overdue notification for %s: %v", domain, err)
		return
	}
	d.log.Infof("Overdue notification sent for %s (%d installments)", domain, count)
}

// OverdueMessageBody formats the plain-text notification body.
func OverdueMessageBody(domain string, count int64, sample []models.Installment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d installment(s) in the %s domain are now overdue.\n\n", count, domain)
	for _, inst := range sample {
		fmt.Fprintf(&b, "- installment #%d of obligation %d, amount %s, due %s\n",
			inst.Number, inst.ObligationID, inst.Amount.StringFixed(2), inst.DueDate.Format("2006-01-02"))
	}
	if int64(len(sample)) < count {
		fmt.Fprintf(&b, "...and %d more.\n", count-int64(len(sample)))
	}
	b.WriteString("\nFHD Automacao - Financeiro")
	return b.String()
}
