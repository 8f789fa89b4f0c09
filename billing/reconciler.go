package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// sampleSize limits how many affected installments a notification carries.
const sampleSize = 5

// Domain groups obligation kinds that reconcile together. A failure in one
// domain never prevents reconciliation of the others.
type Domain struct {
	Name  string
	Kinds []models.ObligationKind
	// Rollup enables aggregate obligation status recomputation for this
	// domain after its installments change.
	Rollup bool
}

// DefaultDomains returns the three obligation domains the back office
// manages. Rollup is enabled for internal costs only; the other domains keep
// manually-managed obligation status.
func DefaultDomains() []Domain {
	return []Domain{
		{Name: "bills", Kinds: []models.ObligationKind{models.KindPayable, models.KindReceivable}},
		{Name: "costs", Kinds: []models.ObligationKind{models.KindFixedCost, models.KindVariableCost}, Rollup: true},
		{Name: "profit-share", Kinds: []models.ObligationKind{models.KindProfitShare}},
	}
}

// DomainResult is the outcome of reconciling one domain.
type DomainResult struct {
	Domain       string               `json:"domain"`
	Transitioned int64                `json:"transitioned"`
	Sample       []models.Installment `json:"sample,omitempty"`
	Err          error                `json:"-"`
	Error        string               `json:"error,omitempty"`
}

// Result aggregates one reconciliation pass. Callers must inspect per-domain
// errors before assuming a clean pass.
type Result struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Domains   []DomainResult `json:"domains"`
}

// Total returns the number of installments transitioned across all domains.
func (r Result) Total() int64 {
	var n int64
	for _, d := range r.Domains {
		n += d.Transitioned
	}
	return n
}

// Reconciler detects installments whose due date has passed while still
// pending and transitions them to overdue, one obligation domain at a time.
type Reconciler struct {
	gw         Gateway
	domains    []Domain
	dispatcher Dispatcher
	log        *logrus.Logger
	now        Clock

	mu sync.Mutex // serializes runs within this process
}

func NewReconciler(gw Gateway, domains []Domain, dispatcher Dispatcher, log *logrus.Logger, now Clock) *Reconciler {
	if len(domains) == 0 {
		domains = DefaultDomains()
	}
	return &Reconciler{
		gw:         gw,
		domains:    domains,
		dispatcher: dispatcher,
		log:        log,
		now:        orSystemClock(now),
	}
}

// Run reconciles every configured domain once. Domains are processed in a
// fixed order; a persistence failure in one is recorded in that domain's
// result and the remaining domains still run. The context is checked between
// domains, not inside a domain's bulk update.
func (r *Reconciler) Run(ctx context.Context) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	today := startOfDay(now)
	res := Result{RunID: uuid.NewString(), StartedAt: now}

	for _, dom := range r.domains {
		if err := ctx.Err(); err != nil {
			res.Domains = append(res.Domains, DomainResult{Domain: dom.Name, Err: err, Error: err.Error()})
			continue
		}

		dr := r.runDomain(ctx, dom, today, now)
		res.Domains = append(res.Domains, dr)

		if dr.Err != nil {
			r.log.WithFields(logrus.Fields{"run_id": res.RunID, "domain": dom.Name}).
				WithError(dr.Err).Error("domain reconciliation failed")
			continue
		}
		r.log.WithFields(logrus.Fields{
			"run_id":       res.RunID,
			"domain":       dom.Name,
			"transitioned": dr.Transitioned,
		}).Info("domain reconciled")

		if dr.Transitioned > 0 && r.dispatcher != nil {
			r.dispatcher.OverdueDetected(dom.Name, dr.Transitioned, dr.Sample)
		}
	}
	return res
}

func (r *Reconciler) runDomain(ctx context.Context, dom Domain, today, now time.Time) DomainResult {
	dr := DomainResult{Domain: dom.Name}

	due, err := r.gw.DuePendingInstallments(ctx, dom.Kinds, today)
	if err != nil {
		dr.Err, dr.Error = err, err.Error()
		return dr
	}
	if len(due) == 0 {
		return dr
	}

	ids := make([]uint, 0, len(due))
	for _, inst := range due {
		ids = append(ids, inst.ID)
	}
	// The update guards on status still being pending, so rows paid or
	// cancelled between the query and the update are skipped, not clobbered.
	n, err := r.gw.MarkInstallmentsOverdue(ctx, ids, now)
	if err != nil {
		dr.Err, dr.Error = err, err.Error()
		return dr
	}
	dr.Transitioned = n
	// The query result predates the update; stamp it so the sample reports
	// the state it describes.
	for i := range due {
		due[i].Status = models.InstallmentOverdue
		due[i].UpdatedAt = now
	}
	dr.Sample = due
	if len(dr.Sample) > sampleSize {
		dr.Sample = dr.Sample[:sampleSize]
	}

	if dom.Rollup {
		seen := make(map[uint]bool)
		for _, inst := range due {
			seen[inst.ObligationID] = true
		}
		for obligationID := range seen {
			if err := r.recomputeRollup(ctx, obligationID); err != nil {
				r.log.WithError(err).WithField("obligation_id", obligationID).
					Warn("rollup recomputation failed")
			}
		}
	}
	return dr
}

func (r *Reconciler) recomputeRollup(ctx context.Context, obligationID uint) error {
	statuses, err := r.gw.InstallmentStatuses(ctx, obligationID)
	if err != nil {
		return err
	}
	return r.gw.UpdateObligationStatus(ctx, obligationID, DeriveObligationStatus(statuses))
}

// DeriveObligationStatus rolls child installment statuses up into the
// parent obligation status: all paid means paid, any overdue means overdue,
// anything else means pending.
func DeriveObligationStatus(statuses []models.InstallmentStatus) models.ObligationStatus {
	if len(statuses) == 0 {
		return models.ObligationPending
	}
	allPaid := true
	anyOverdue := false
	for _, s := range statuses {
		if s != models.InstallmentPaid {
			allPaid = false
		}
		if s == models.InstallmentOverdue {
			anyOverdue = true
		}
	}
	switch {
	case allPaid:
		return models.ObligationPaid
	case anyOverdue:
		return models.ObligationOverdue
	default:
		return models.ObligationPending
	}
}
