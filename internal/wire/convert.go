package wire

import "keikkaduuni/internal/domain"

func FromMessage(m *domain.Message) Message {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
	}
}

// FromMessages converts msgs preserving order; a nil slice becomes empty.
func FromMessages(msgs []*domain.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromMessage(m))
	}
	return out
}

func FromListing(l *domain.Listing) *Listing {
	if l == nil {
		return nil
	}
	return &Listing{ID: l.ID, Kind: string(l.Kind), Title: l.Title}
}

func FromBooking(b *domain.Booking) *Booking {
	return &Booking{
		ID:               b.ID,
		ServiceID:        b.ServiceID,
		CustomerID:       b.CustomerID,
		OwnerID:          b.OwnerID,
		Message:          b.Message,
		Status:           string(b.Status),
		IsRead:           b.IsRead,
		PaymentCompleted: b.PaymentCompleted,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func FromOffer(o *domain.Offer) *Offer {
	return &Offer{
		ID:         o.ID,
		TarveID:    o.TarveID,
		ProviderID: o.ProviderID,
		OwnerID:    o.OwnerID,
		Message:    o.Message,
		Price:      o.Price,
		Status:     string(o.Status),
		IsRead:     o.IsRead,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func FromNotification(n *domain.Notification) *Notification {
	return &Notification{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// FromUser omits the email unless withEmail is set.
func FromUser(u *domain.User, withEmail bool) *User {
	out := &User{ID: u.ID, Name: u.Name, PhotoURL: u.PhotoURL, CreatedAt: u.CreatedAt}
	if withEmail {
		out.Email = u.Email
	}
	return out
}
