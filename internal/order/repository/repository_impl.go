package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, owner_id, method_id, payment_id, type, status, order_name,
	amount, currency, schedule_id, schedule_at, paid_at, gateway_payload, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_orders (
			id, owner_id, method_id, payment_id, type, status, order_name,
			amount, currency, schedule_id, schedule_at, paid_at, gateway_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OwnerID,
		order.MethodID,
		order.PaymentID,
		order.Type,
		order.Status,
		order.OrderName,
		order.Amount,
		order.Currency,
		order.ScheduleID,
		order.ScheduleAt,
		order.PaidAt,
		order.GatewayPayload,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentOrder, error) {
	var item domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIDForOwner(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*domain.PaymentOrder, error) {
	var item domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE id = ? AND owner_id = ?
		 LIMIT 1`,
		id,
		ownerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatusFromReady(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, update domain.StatusUpdate, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?,
		     paid_at = COALESCE(?, paid_at),
		     payment_id = CASE WHEN ? = '' THEN payment_id ELSE ? END,
		     gateway_payload = COALESCE(?, gateway_payload),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		update.PaidAt,
		update.RealizedPaymentID,
		update.RealizedPaymentID,
		update.Payload,
		now,
		id,
		domain.StatusReady,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) BeginReplace(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND type = ?`,
		domain.StatusReplacing,
		now,
		id,
		domain.StatusReady,
		domain.TypeSchedule,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FinishReplace(ctx context.Context, db *gorm.DB, order *domain.PaymentOrder, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, method_id = ?, payment_id = ?, schedule_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusReady,
		order.MethodID,
		order.PaymentID,
		order.ScheduleID,
		now,
		order.ID,
		domain.StatusReplacing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AbortReplace(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		now,
		id,
		domain.StatusReplacing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindScheduledInWindow(ctx context.Context, db *gorm.DB, from, to time.Time) ([]*domain.PaymentOrder, error) {
	var items []*domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE type = ? AND status = ? AND schedule_at BETWEEN ? AND ?
		 ORDER BY schedule_at ASC, id ASC`,
		domain.TypeSchedule,
		domain.StatusReady,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindReadySchedulesBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]*domain.PaymentOrder, error) {
	var items []*domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE type = ? AND status = ? AND schedule_at < ?
		 ORDER BY schedule_at ASC, id ASC`,
		domain.TypeSchedule,
		domain.StatusReady,
		cutoff,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindReadySchedulesByMethod(ctx context.Context, db *gorm.DB, methodID snowflake.ID) ([]*domain.PaymentOrder, error) {
	var items []*domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE method_id = ? AND type = ? AND status = ?
		 ORDER BY schedule_at ASC, id ASC`,
		methodID,
		domain.TypeSchedule,
		domain.StatusReady,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActiveScheduleByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*domain.PaymentOrder, error) {
	var item domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE owner_id = ? AND type = ? AND status = ?
		 ORDER BY schedule_at ASC, id ASC
		 LIMIT 1`,
		ownerID,
		domain.TypeSchedule,
		domain.StatusReady,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindRecentPaidByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*domain.PaymentOrder, error) {
	var item domain.PaymentOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM payment_orders
		 WHERE owner_id = ? AND status = ?
		 ORDER BY paid_at DESC, id DESC
		 LIMIT 1`,
		ownerID,
		domain.StatusPaid,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, createdBefore *time.Time, beforeID snowflake.ID, limit int) ([]*domain.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + `
		 FROM payment_orders
		 WHERE owner_id = ?`
	args := []any{ownerID}
	if createdBefore != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, *createdBefore, *createdBefore, beforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var items []*domain.PaymentOrder
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
