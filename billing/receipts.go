package billing

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// Receipt is the opaque reference returned by the blob store. The engine
// stores it as-is; content validation belongs to the store.
type Receipt struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ReceiptService records payment events against installments.
type ReceiptService struct {
	gw          Gateway
	log         *logrus.Logger
	now         Clock
	rollupKinds map[models.ObligationKind]bool
}

func NewReceiptService(gw Gateway, domains []Domain, log *logrus.Logger, now Clock) *ReceiptService {
	if len(domains) == 0 {
		domains = DefaultDomains()
	}
	rollup := make(map[models.ObligationKind]bool)
	for _, dom := range domains {
		for _, kind := range dom.Kinds {
			rollup[kind] = dom.Rollup
		}
	}
	return &ReceiptService{gw: gw, log: log, now: orSystemClock(now), rollupKinds: rollup}
}

// Attach records a payment on an installment: status becomes paid, the paid
// date and receipt reference are stamped. Allowed from pending and overdue;
// calling it again on a paid installment overwrites the previous receipt and
// payment timestamp (last-write-wins). Cancelled installments are terminal
// and reject the transition with a ConflictError.
func (s *ReceiptService) Attach(ctx context.Context, installmentID uint, receipt Receipt, uploadedBy string) (*models.Installment, error) {
	if strings.TrimSpace(receipt.URL) == "" {
		return nil, validationErrorf("receipt url is required")
	}
	if strings.TrimSpace(receipt.Filename) == "" {
		return nil, validationErrorf("receipt filename is required")
	}

	inst, err := s.gw.FindInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if inst.Status == models.InstallmentCancelled {
		return nil, &ConflictError{Msg: "installment is cancelled"}
	}

	now := s.now()
	allowed := []models.InstallmentStatus{
		models.InstallmentPending,
		models.InstallmentOverdue,
		models.InstallmentPaid,
	}
	rows, err := s.gw.UpdateInstallmentGuarded(ctx, installmentID, allowed, map[string]interface{}{
		"status":              models.InstallmentPaid,
		"paid_date":           now,
		"receipt_url":         receipt.URL,
		"receipt_filename":    receipt.Filename,
		"receipt_uploaded_by": uploadedBy,
		"receipt_uploaded_at": now,
		"updated_at":          now,
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &ConflictError{Msg: "installment status changed concurrently"}
	}

	s.log.WithFields(logrus.Fields{
		"installment_id": installmentID,
		"uploaded_by":    uploadedBy,
	}).Info("receipt attached, installment paid")

	if err := s.recomputeRollup(ctx, inst.ObligationID); err != nil {
		s.log.WithError(err).WithField("obligation_id", inst.ObligationID).
			Warn("rollup recomputation failed")
	}
	return s.gw.FindInstallment(ctx, installmentID)
}

// Detach clears the receipt reference. The installment keeps its paid status
// and paid date: paid is terminal and removing the proof document does not
// revert the payment itself.
func (s *ReceiptService) Detach(ctx context.Context, installmentID uint) (*models.Installment, error) {
	inst, err := s.gw.FindInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	allowed := []models.InstallmentStatus{inst.Status}
	rows, err := s.gw.UpdateInstallmentGuarded(ctx, installmentID, allowed, map[string]interface{}{
		"receipt_url":         "",
		"receipt_filename":    "",
		"receipt_uploaded_by": "",
		"receipt_uploaded_at": nil,
		"updated_at":          s.now(),
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &ConflictError{Msg: "installment status changed concurrently"}
	}

	s.log.WithField("installment_id", installmentID).Info("receipt detached")
	return s.gw.FindInstallment(ctx, installmentID)
}

// Cancel performs the manual * -> cancelled transition. Terminal statuses
// reject it.
func (s *ReceiptService) Cancel(ctx context.Context, installmentID uint) (*models.Installment, error) {
	inst, err := s.gw.FindInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		return nil, &ConflictError{Msg: "installment is " + string(inst.Status)}
	}

	allowed := []models.InstallmentStatus{models.InstallmentPending, models.InstallmentOverdue}
	rows, err := s.gw.UpdateInstallmentGuarded(ctx, installmentID, allowed, map[string]interface{}{
		"status":     models.InstallmentCancelled,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &ConflictError{Msg: "installment status changed concurrently"}
	}

	if err := s.recomputeRollup(ctx, inst.ObligationID); err != nil {
		s.log.WithError(err).WithField("obligation_id", inst.ObligationID).
			Warn("rollup recomputation failed")
	}
	return s.gw.FindInstallment(ctx, installmentID)
}

func (s *ReceiptService) recomputeRollup(ctx context.Context, obligationID uint) error {
	ob, err := s.gw.FindObligation(ctx, obligationID)
	if err != nil {
		return err
	}
	if !s.rollupKinds[ob.Kind] {
		return nil
	}
	statuses := make([]models.InstallmentStatus, 0, len(ob.Installments))
	for _, inst := range ob.Installments {
		statuses = append(statuses, inst.Status)
	}
	return s.gw.UpdateObligationStatus(ctx, obligationID, DeriveObligationStatus(statuses))
}
