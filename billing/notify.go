package billing

import (
	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// Dispatcher receives summaries of reconciliation transitions. Delivery is
// fire-and-forget: implementations report failures on their own and return
// nothing.
type Dispatcher interface {
	OverdueDetected(domain string, count int64, sample []models.Installment)
}

// LogDispatcher writes overdue summaries to the log. Used when no delivery
// channel is configured.
type LogDispatcher struct {
	Log *logrus.Logger
}

func (d *LogDispatcher) OverdueDetected(domain string, count int64, sample []models.Installment) {
	ids := make([]uint, 0, len(sample))
	for _, inst := range sample {
		ids = append(ids, inst.ID)
	}
	d.Log.WithFields(logrus.Fields{
		"domain": domain,
		"count":  count,
		"sample": ids,
	}).Warn("installments transitioned to overdue")
}
