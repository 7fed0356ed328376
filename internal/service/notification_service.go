package service

import (
	"context"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/wire"
)

const notificationListLimit = 50

type NotificationService struct {
	notifications domain.NotificationRepository
	notify        Notifier
}

func NewNotificationService(notifications domain.NotificationRepository, notify Notifier) *NotificationService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &NotificationService{notifications: notifications, notify: notify}
}

// Push stores a notification and announces it to the recipient.
func (s *NotificationService) Push(ctx context.Context, userID int64, typ, message, link string) (*domain.Notification, error) {
	n := &domain.Notification{UserID: userID, Type: typ, Message: message, Link: link}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	s.notify.Emit(wire.UserRoom(userID), wire.EventNotificationCreated, wire.FromNotification(n))
	return n, nil
}

// PushOnce is Push for events that may be retried: a second call with the
// same key stores and announces nothing.
func (s *NotificationService) PushOnce(ctx context.Context, key string, userID int64, typ, message, link string) (bool, error) {
	n := &domain.Notification{UserID: userID, Type: typ, Message: message, Link: link, DedupeKey: &key}
	created, err := s.notifications.CreateOnce(ctx, n)
	if err != nil || !created {
		return false, err
	}
	s.notify.Emit(wire.UserRoom(userID), wire.EventNotificationCreated, wire.FromNotification(n))
	return true, nil
}

func (s *NotificationService) List(ctx context.Context, userID int64) ([]*domain.Notification, error) {
	return s.notifications.ListForUser(ctx, userID, notificationListLimit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) error {
	n, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf("notification %d", id)
	}
	return nil
}
