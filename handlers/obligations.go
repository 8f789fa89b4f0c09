package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/billing"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// Generation policy names accepted by CreateObligation.
const (
	PolicyEqualSplit     = "equal_split"
	PolicyFixedRecurring = "fixed_recurring"
)

type ObligationHandler struct {
	gw         billing.Gateway
	scheduler  *billing.Scheduler
	receipts   *billing.ReceiptService
	reconciler *billing.Reconciler
	log        *logrus.Logger
}

func NewObligationHandler(gw billing.Gateway, scheduler *billing.Scheduler, receipts *billing.ReceiptService, reconciler *billing.Reconciler, log *logrus.Logger) *ObligationHandler {
	return &ObligationHandler{
		gw:         gw,
		scheduler:  scheduler,
		receipts:   receipts,
		reconciler: reconciler,
		log:        log,
	}
}

type CreateObligationRequest struct {
	Kind        string `json:"kind" binding:"required"`
	CompanyID   uint   `json:"company_id"`
	Description string `json:"description"`
	Policy      string `json:"policy" binding:"required"`

	// equal_split
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Count        int             `json:"count"`
	IntervalDays int             `json:"interval_days"`
	FirstDueDate string          `json:"first_due_date"` // YYYY-MM-DD

	// fixed_recurring
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	StartMonth    string          `json:"start_month"` // YYYY-MM
	DueDay        int             `json:"due_day"`
	EndMonth      string          `json:"end_month"` // YYYY-MM, optional
	MonthsAhead   int             `json:"months_ahead"`
}

// CreateObligation generates the full installment sequence for the requested
// policy and inserts obligation plus installments as one transactional unit.
func (h *ObligationHandler) CreateObligation(c *gin.Context) {
	var req CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.ObligationKind(req.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown obligation kind %q", req.Kind)})
		return
	}

	var (
		installments []models.Installment
		total        decimal.Decimal
		err          error
	)
	switch req.Policy {
	case PolicyEqualSplit:
		var firstDue time.Time
		firstDue, err = parseDate(req.FirstDueDate)
		if err == nil {
			installments, err = h.scheduler.EqualSplit(billing.EqualSplitParams{
				TotalAmount:  req.TotalAmount,
				Count:        req.Count,
				IntervalDays: req.IntervalDays,
				FirstDueDate: firstDue,
			})
		}
		total = req.TotalAmount
	case PolicyFixedRecurring:
		params := billing.FixedRecurringParams{
			MonthlyAmount: req.MonthlyAmount,
			DueDay:        req.DueDay,
			MonthsAhead:   req.MonthsAhead,
		}
		if req.StartMonth != "" {
			params.StartMonth, err = parseMonth(req.StartMonth)
		}
		if err == nil && req.EndMonth != "" {
			var end time.Time
			end, err = parseMonth(req.EndMonth)
			params.EndMonth = &end
		}
		if err == nil {
			installments, err = h.scheduler.FixedRecurring(params)
		}
		for _, inst := range installments {
			total = total.Add(inst.Amount)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown generation policy %q", req.Policy)})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	obligation := &models.Obligation{
		Kind:         kind,
		Description:  req.Description,
		CompanyID:    req.CompanyID,
		TotalAmount:  total,
		Status:       models.ObligationPending,
		Installments: installments,
	}
	if err := h.gw.CreateObligation(c.Request.Context(), obligation); err != nil {
		respondError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"obligation_id": obligation.ID,
		"kind":          kind,
		"installments":  len(installments),
	}).Info("obligation created")
	c.JSON(http.StatusCreated, obligation)
}

func (h *ObligationHandler) GetObligation(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid obligation ID"})
		return
	}

	obligation, err := h.gw.FindObligation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, obligation)
}

func (h *ObligationHandler) ListObligations(c *gin.Context) {
	var kinds []models.ObligationKind
	if raw := c.Query("kind"); raw != "" {
		kind := models.ObligationKind(raw)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown obligation kind %q", raw)})
			return
		}
		kinds = append(kinds, kind)
	}

	obligations, err := h.gw.ListObligations(c.Request.Context(), kinds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, obligations)
}

type AttachReceiptRequest struct {
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename" binding:"required"`
}

func (h *ObligationHandler) AttachReceipt(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid installment ID"})
		return
	}

	var req AttachReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	installment, err := h.receipts.Attach(c.Request.Context(), id,
		billing.Receipt{URL: req.URL, Filename: req.Filename}, contextUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, installment)
}

func (h *ObligationHandler) DetachReceipt(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid installment ID"})
		return
	}

	installment, err := h.receipts.Detach(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, installment)
}

func (h *ObligationHandler) CancelInstallment(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid installment ID"})
		return
	}

	installment, err := h.receipts.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, installment)
}

// ForceReconcile runs a reconciliation pass on demand.
func (h *ObligationHandler) ForceReconcile(c *gin.Context) {
	result := h.reconciler.Run(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func paramID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}

func contextUser(c *gin.Context) string {
	if userID, exists := c.Get("userID"); exists {
		return fmt.Sprint(userID)
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func parseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", s)
	}
	return t, nil
}

// respondError maps the billing error taxonomy to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		validationErr  *billing.ValidationError
		notFoundErr    *billing.NotFoundError
		conflictErr    *billing.ConflictError
		persistenceErr *billing.PersistenceError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Error()})
	case errors.As(err, &persistenceErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
