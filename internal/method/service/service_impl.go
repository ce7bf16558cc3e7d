package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/clock"
	methoddomain "github.com/fitsync/billing/internal/method/domain"
	"github.com/fitsync/billing/internal/portone"
	"github.com/fitsync/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDisplayNameLen = 50

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      methoddomain.Repository
	Gateway   methoddomain.KeyGateway
	Canceller methoddomain.ScheduleCanceller
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      methoddomain.Repository
	gateway   methoddomain.KeyGateway
	canceller methoddomain.ScheduleCanceller
}

func NewService(p Params) methoddomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("method.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		gateway:   p.Gateway,
		canceller: p.Canceller,
	}
}

// Register stores a billing key after classifying it from gateway metadata.
// Card methods are fingerprinted against the owner's existing cards; an
// existing match either blocks registration or is replaced, per the request.
func (s *Service) Register(ctx context.Context, req methoddomain.RegisterRequest) (*methoddomain.BillingMethod, error) {
	method, err := s.describeKey(ctx, req.OwnerID, req.BillingKey)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != "" {
		method.DisplayName = strings.TrimSpace(req.DisplayName)
	}

	if method.Fingerprint != "" {
		existing, err := s.repo.FindByOwnerAndFingerprint(ctx, s.db, req.OwnerID, method.Fingerprint)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if !req.ReplaceDuplicate {
				return existing, methoddomain.ErrDuplicateMethod
			}
			if err := s.Delete(ctx, req.OwnerID, existing.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := s.repo.Insert(ctx, s.db, method); err != nil {
		// The billing key itself is unique; re-registering the same key is a
		// duplicate regardless of fingerprint.
		if db.IsDuplicateKeyErr(err) {
			return nil, methoddomain.ErrDuplicateMethod
		}
		return nil, err
	}
	s.log.Info("billing method registered",
		zap.Int64("method_id", method.ID.Int64()),
		zap.Int64("owner_id", method.OwnerID.Int64()),
		zap.String("method_type", method.MethodType),
	)
	return method, nil
}

// CheckDuplicate reports the owner's existing method matching the key's card
// fingerprint, or nil when the key is new. Easy-pay keys never match.
func (s *Service) CheckDuplicate(ctx context.Context, ownerID snowflake.ID, billingKey string) (*methoddomain.BillingMethod, error) {
	method, err := s.describeKey(ctx, ownerID, billingKey)
	if err != nil {
		return nil, err
	}
	if method.Fingerprint == "" {
		return nil, nil
	}
	return s.repo.FindByOwnerAndFingerprint(ctx, s.db, ownerID, method.Fingerprint)
}

// Rename sets the owner's label for a method. The name must be 1..50
// characters after trimming.
func (s *Service) Rename(ctx context.Context, ownerID, methodID snowflake.ID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return methoddomain.ErrInvalidDisplayName
	}
	updated, err := s.repo.UpdateDisplayName(ctx, s.db, methodID, ownerID, displayName)
	if err != nil {
		return err
	}
	if !updated {
		return methoddomain.ErrMethodNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context, ownerID snowflake.ID) ([]*methoddomain.BillingMethod, error) {
	return s.repo.ListByOwner(ctx, s.db, ownerID)
}

// KeyInfo fetches live gateway metadata for a stored method.
func (s *Service) KeyInfo(ctx context.Context, ownerID, methodID snowflake.ID) (*portone.BillingKeyInfo, error) {
	method, err := s.repo.FindByIDForOwner(ctx, s.db, methodID, ownerID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, methoddomain.ErrMethodNotFound
	}
	return s.gateway.GetBillingKey(ctx, method.BillingKey)
}

// Delete cancels the method's pending schedules, deletes the provider-side
// key, then removes the local row. Key deletion is the last irrevocable step:
// if it fails the row is retained so the key stays reachable.
func (s *Service) Delete(ctx context.Context, ownerID, methodID snowflake.ID) error {
	method, err := s.repo.FindByIDForOwner(ctx, s.db, methodID, ownerID)
	if err != nil {
		return err
	}
	if method == nil {
		return methoddomain.ErrMethodNotFound
	}

	if err := s.canceller.CancelSchedulesForMethod(ctx, method.ID, ownerID); err != nil {
		return err
	}
	if err := s.gateway.DeleteBillingKey(ctx, method.BillingKey); err != nil {
		s.log.Error("billing key deletion failed, keeping local row",
			zap.Int64("method_id", method.ID.Int64()),
			zap.Error(err),
		)
		return err
	}
	if err := s.repo.Delete(ctx, s.db, method.ID); err != nil {
		return err
	}
	s.log.Info("billing method deleted",
		zap.Int64("method_id", method.ID.Int64()),
		zap.Int64("owner_id", ownerID.Int64()),
	)
	return nil
}

// describeKey builds an unsaved BillingMethod from gateway key metadata.
func (s *Service) describeKey(ctx context.Context, ownerID snowflake.ID, billingKey string) (*methoddomain.BillingMethod, error) {
	billingKey = strings.TrimSpace(billingKey)
	if billingKey == "" {
		return nil, methoddomain.ErrUnsupportedMethod
	}

	info, err := s.gateway.GetBillingKey(ctx, billingKey)
	if err != nil {
		return nil, err
	}
	if len(info.Methods) == 0 {
		return nil, methoddomain.ErrUnsupportedMethod
	}

	now := s.clock.Now().UTC()
	method := &methoddomain.BillingMethod{
		ID:         s.genID.Generate(),
		OwnerID:    ownerID,
		BillingKey: billingKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	reported := info.Methods[0]
	switch reported.Type {
	case portone.MethodTypeCard:
		if reported.Card == nil {
			return nil, methoddomain.ErrUnsupportedMethod
		}
		method.MethodType = methoddomain.MethodTypeCard
		method.CardName = reported.Card.Name
		method.CardNumber = reported.Card.Number
		method.DisplayName = reported.Card.Name
		method.Fingerprint = methoddomain.CardFingerprint(reported.Card.Name, reported.Card.Number)
	case portone.MethodTypeEasyPay:
		method.MethodType = methoddomain.MethodTypeEasyPay
		if reported.EasyPay != nil {
			method.Provider = reported.EasyPay.Provider
			method.DisplayName = reported.EasyPay.Provider
		}
	default:
		return nil, methoddomain.ErrUnsupportedMethod
	}
	return method, nil
}
