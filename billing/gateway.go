package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

// Gateway is the persistence boundary of the installment engine. Everything
// the engine stores or retrieves goes through it, so tests can substitute a
// stub to inject failures.
type Gateway interface {
	// CreateObligation inserts an obligation together with its installment
	// sequence as one transactional unit.
	CreateObligation(ctx context.Context, ob *models.Obligation) error
	FindObligation(ctx context.Context, id uint) (*models.Obligation, error)
	ListObligations(ctx context.Context, kinds []models.ObligationKind) ([]models.Obligation, error)
	FindInstallment(ctx context.Context, id uint) (*models.Installment, error)
	// DuePendingInstallments returns installments still pending whose due
	// date is before the given day, restricted to obligations of the given
	// kinds.
	DuePendingInstallments(ctx context.Context, kinds []models.ObligationKind, before time.Time) ([]models.Installment, error)
	// MarkInstallmentsOverdue transitions the given installments to overdue.
	// The update is guarded on status still being pending, so rows paid or
	// cancelled in the meantime are skipped. Returns the number of rows
	// actually transitioned.
	MarkInstallmentsOverdue(ctx context.Context, ids []uint, now time.Time) (int64, error)
	// UpdateInstallmentGuarded applies fields to one installment only if its
	// stored status is among allowed. Returns the number of rows updated
	// (0 when the guard tripped).
	UpdateInstallmentGuarded(ctx context.Context, id uint, allowed []models.InstallmentStatus, fields map[string]interface{}) (int64, error)
	InstallmentStatuses(ctx context.Context, obligationID uint) ([]models.InstallmentStatus, error)
	UpdateObligationStatus(ctx context.Context, id uint, status models.ObligationStatus) error
}

// GormGateway implements Gateway on a gorm database handle.
type GormGateway struct {
	db *gorm.DB
}

func NewGormGateway(db *gorm.DB) *GormGateway {
	return &GormGateway{db: db}
}

func (g *GormGateway) CreateObligation(ctx context.Context, ob *models.Obligation) error {
	// gorm inserts the association in the same transaction; a failed batch
	// insert rolls the obligation back with it.
	if err := g.db.WithContext(ctx).Create(ob).Error; err != nil {
		return &PersistenceError{Op: "create obligation", Err: err}
	}
	return nil
}

func (g *GormGateway) FindObligation(ctx context.Context, id uint) (*models.Obligation, error) {
	var ob models.Obligation
	err := g.db.WithContext(ctx).Preload("Installments", func(db *gorm.DB) *gorm.DB {
		return db.Order("installment_number")
	}).First(&ob, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "obligation", ID: id}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find obligation", Err: err}
	}
	return &ob, nil
}

func (g *GormGateway) ListObligations(ctx context.Context, kinds []models.ObligationKind) ([]models.Obligation, error) {
	var obs []models.Obligation
	q := g.db.WithContext(ctx).Order("id")
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	if err := q.Find(&obs).Error; err != nil {
		return nil, &PersistenceError{Op: "list obligations", Err: err}
	}
	return obs, nil
}

func (g *GormGateway) FindInstallment(ctx context.Context, id uint) (*models.Installment, error) {
	var inst models.Installment
	err := g.db.WithContext(ctx).First(&inst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "installment", ID: id}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find installment", Err: err}
	}
	return &inst, nil
}

func (g *GormGateway) DuePendingInstallments(ctx context.Context, kinds []models.ObligationKind, before time.Time) ([]models.Installment, error) {
	var insts []models.Installment
	err := g.db.WithContext(ctx).
		Joins("JOIN obligations ON obligations.id = installments.obligation_id").
		Where("obligations.kind IN ?", kinds).
		Where("obligations.deleted_at IS NULL").
		Where("installments.status = ?", models.InstallmentPending).
		Where("installments.due_date < ?", before).
		Order("installments.due_date").
		Find(&insts).Error
	if err != nil {
		return nil, &PersistenceError{Op: "query due pending installments", Err: err}
	}
	return insts, nil
}

func (g *GormGateway) MarkInstallmentsOverdue(ctx context.Context, ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := g.db.WithContext(ctx).Model(&models.Installment{}).
		Where("id IN ?", ids).
		Where("status = ?", models.InstallmentPending).
		Updates(map[string]interface{}{
			"status":     models.InstallmentOverdue,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, &PersistenceError{Op: "mark installments overdue", Err: res.Error}
	}
	return res.RowsAffected, nil
}

func (g *GormGateway) UpdateInstallmentGuarded(ctx context.Context, id uint, allowed []models.InstallmentStatus, fields map[string]interface{}) (int64, error) {
	res := g.db.WithContext(ctx).Model(&models.Installment{}).
		Where("id = ?", id).
		Where("status IN ?", allowed).
		Updates(fields)
	if res.Error != nil {
		return 0, &PersistenceError{Op: "update installment", Err: res.Error}
	}
	return res.RowsAffected, nil
}

func (g *GormGateway) InstallmentStatuses(ctx context.Context, obligationID uint) ([]models.InstallmentStatus, error) {
	var statuses []models.InstallmentStatus
	err := g.db.WithContext(ctx).Model(&models.Installment{}).
		Where("obligation_id = ?", obligationID).
		Pluck("status", &statuses).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list installment statuses", Err: err}
	}
	return statuses, nil
}

func (g *GormGateway) UpdateObligationStatus(ctx context.Context, id uint, status models.ObligationStatus) error {
	err := g.db.WithContext(ctx).Model(&models.Obligation{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return &PersistenceError{Op: "update obligation status", Err: err}
	}
	return nil
}
