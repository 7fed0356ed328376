package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/wire"
)

type OfferService struct {
	store         *domain.Store
	notifications *NotificationService
	notify        Notifier
	log           *zap.Logger
}

func NewOfferService(store *domain.Store, notifications *NotificationService, notify Notifier, log *zap.Logger) *OfferService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &OfferService{store: store, notifications: notifications, notify: notify, log: log}
}

type OfferCreateInput struct {
	TarveID int64
	Message string
	Price   int64
}

func (s *OfferService) Create(ctx context.Context, providerID int64, in OfferCreateInput) (*domain.Offer, error) {
	if in.Price < 0 {
		return nil, domain.NewValidationError("priceCents", "must not be negative")
	}
	listing, err := s.store.Listings.GetByID(ctx, domain.ListingTarve, in.TarveID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID == providerID {
		return nil, domain.NewValidationError("tarveId", "cannot make an offer on your own need")
	}

	o := &domain.Offer{TarveID: in.TarveID, ProviderID: providerID, Message: in.Message, Price: in.Price}
	if err := s.store.Offers.Create(ctx, o); err != nil {
		return nil, err
	}

	if _, err := s.notifications.Push(ctx, o.OwnerID, domain.NotificationOffer,
		fmt.Sprintf("New offer for %q", listing.Title), "/offers"); err != nil {
		s.log.Warn("offer notification failed", zap.Int64("offer_id", o.ID), zap.Error(err))
	}
	s.emitUpdated(o)
	return o, nil
}

func (s *OfferService) List(ctx context.Context, userID int64) ([]*domain.Offer, error) {
	return s.store.Offers.ListForUser(ctx, userID)
}

// UpdateStatus lets the need owner accept or reject an offer.
func (s *OfferService) UpdateStatus(ctx context.Context, id, userID int64, status domain.RequestStatus) (*domain.Offer, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "must be pending, approved or rejected")
	}
	o, err := s.store.Offers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != userID {
		return nil, domain.Forbiddenf("only the need owner can change offer %d", id)
	}
	if err := s.store.Offers.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.reloadAndEmit(ctx, id)
}

func (s *OfferService) MarkRead(ctx context.Context, id, userID int64) (*domain.Offer, error) {
	o, err := s.store.Offers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != userID {
		return nil, domain.Forbiddenf("only the need owner can read offer %d", id)
	}
	if err := s.store.Offers.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	return s.reloadAndEmit(ctx, id)
}

func (s *OfferService) Delete(ctx context.Context, id, userID int64) error {
	o, err := s.store.Offers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.ProviderID != userID && o.OwnerID != userID {
		return domain.Forbiddenf("offer %d belongs to other users", id)
	}
	if err := s.store.Offers.Delete(ctx, id); err != nil {
		return err
	}
	for _, uid := range []int64{o.ProviderID, o.OwnerID} {
		s.notify.Emit(wire.UserRoom(uid), wire.EventOfferDeleted, wire.Deleted{ID: id})
	}
	return nil
}

func (s *OfferService) reloadAndEmit(ctx context.Context, id int64) (*domain.Offer, error) {
	o, err := s.store.Offers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitUpdated(o)
	return o, nil
}

func (s *OfferService) emitUpdated(o *domain.Offer) {
	snapshot := wire.FromOffer(o)
	for _, uid := range []int64{o.ProviderID, o.OwnerID} {
		s.notify.Emit(wire.UserRoom(uid), wire.EventOfferUpdated, snapshot)
	}
}
