package app

import (
	"context"

	"go.uber.org/zap"

	"diocese/api/internal/email"
	"diocese/api/internal/store"
	"diocese/api/internal/util"
)

// SubmitContact stores a message from the public form and notifies the
// diocesan office. A failed notification does not fail the submission.
func (s *Service) SubmitContact(ctx context.Context, input ContactInput) (store.Contact, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.Contact{}, err
	}
	saved, err := s.store.InsertContact(ctx, store.Contact{
		ID:        util.NewID("con"),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Subject:   input.Subject,
		Message:   input.Message,
	})
	if err != nil {
		return store.Contact{}, err
	}
	s.notifyOffice(saved)
	return saved, nil
}

func (s *Service) notifyOffice(contact store.Contact) {
	if s.email == nil || !s.email.IsConfigured() || s.cfg.OfficeEmail == "" {
		return
	}
	err := s.email.SendContactNotification(s.cfg.OfficeEmail, email.ContactNotice{
		FirstName:  contact.FirstName,
		LastName:   contact.LastName,
		Email:      contact.Email,
		Phone:      contact.Phone,
		Subject:    contact.Subject,
		Message:    contact.Message,
		ReceivedAt: contact.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("contact notification failed", zap.String("contact_id", contact.ID), zap.Error(err))
	}
}

func (s *Service) ListContacts(ctx context.Context, unreadOnly bool) ([]store.Contact, error) {
	return s.store.ListContacts(ctx, store.ContactFilter{UnreadOnly: unreadOnly})
}

func (s *Service) MarkContactRead(ctx context.Context, id string, read bool) (store.Contact, error) {
	return s.store.SetContactRead(ctx, id, read)
}

func (s *Service) DeleteContact(ctx context.Context, id string) error {
	return s.store.DeleteContact(ctx, id)
}
