package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/method/domain"
	"gorm.io/gorm"
)

const methodColumns = `id, owner_id, billing_key, method_type, provider, card_name,
	card_number, display_name, fingerprint, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, method *domain.BillingMethod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_methods (
			id, owner_id, billing_key, method_type, provider, card_name,
			card_number, display_name, fingerprint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		method.ID,
		method.OwnerID,
		method.BillingKey,
		method.MethodType,
		method.Provider,
		method.CardName,
		method.CardNumber,
		method.DisplayName,
		method.Fingerprint,
		method.CreatedAt,
		method.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingMethod, error) {
	var item domain.BillingMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+methodColumns+`
		 FROM billing_methods
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

func (r *repo) FindByIDForOwner(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*domain.BillingMethod, error) {
	var item domain.BillingMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+methodColumns+`
		 FROM billing_methods
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

func (r *repo) FindByOwnerAndFingerprint(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, fingerprint string) (*domain.BillingMethod, error) {
	var item domain.BillingMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+methodColumns+`
		 FROM billing_methods
		 WHERE owner_id = ? AND fingerprint = ?
		 LIMIT 1`,
		ownerID,
		fingerprint,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*domain.BillingMethod, error) {
	var items []*domain.BillingMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+methodColumns+`
		 FROM billing_methods
		 WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC`,
		ownerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateDisplayName(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID, displayName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE billing_methods
		 SET display_name = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		displayName,
		time.Now().UTC(),
		id,
		ownerID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM billing_methods WHERE id = ?`,
		id,
	).Error
}
