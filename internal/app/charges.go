package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"diocese/api/internal/export"
	"diocese/api/internal/history"
	"diocese/api/internal/store"
	"diocese/api/internal/util"
)

const defaultHistoryLimit = 50

// ActiveCharge returns the published charge, or nil when none is active.
func (s *Service) ActiveCharge(ctx context.Context) (*store.BishopCharge, error) {
	return s.store.GetActiveCharge(ctx)
}

func (s *Service) ListCharges(ctx context.Context) ([]store.BishopCharge, error) {
	return s.store.ListCharges(ctx)
}

func (s *Service) GetCharge(ctx context.Context, id string) (store.BishopCharge, error) {
	return s.store.GetCharge(ctx, id)
}

// CreateCharge stores a new charge. Creating it active deactivates every other charge.
func (s *Service) CreateCharge(ctx context.Context, session Session, input ChargeInput) (store.BishopCharge, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.BishopCharge{}, err
	}
	saved, err := s.store.InsertCharge(ctx, store.BishopCharge{
		ID:       util.NewID("chg"),
		Title:    input.Title,
		Content:  input.Content,
		IsActive: input.IsActive,
	})
	if err != nil {
		return store.BishopCharge{}, err
	}
	s.recordRevision(saved, session.UserName, "Create charge")
	return saved, nil
}

func (s *Service) UpdateCharge(ctx context.Context, session Session, id string, patch ChargePatch) (store.BishopCharge, error) {
	item, err := s.store.GetCharge(ctx, id)
	if err != nil {
		return store.BishopCharge{}, err
	}
	input := patch.merge(item)
	if err := input.Validate().Err(); err != nil {
		return store.BishopCharge{}, err
	}
	item.Title = input.Title
	item.Content = input.Content
	item.IsActive = input.IsActive
	saved, err := s.store.UpdateCharge(ctx, item)
	if err != nil {
		return store.BishopCharge{}, err
	}
	s.recordRevision(saved, session.UserName, "Update charge")
	return saved, nil
}

func (s *Service) ActivateCharge(ctx context.Context, session Session, id string) (store.BishopCharge, error) {
	saved, err := s.store.ActivateCharge(ctx, id)
	if err != nil {
		return store.BishopCharge{}, err
	}
	s.logger.Info("charge activated", zap.String("charge_id", id), zap.String("by", session.UserID))
	s.recordRevision(saved, session.UserName, "Publish charge")
	return saved, nil
}

// DeleteCharge closes open drafts of the charge, deletes the row and drops its history.
func (s *Service) DeleteCharge(ctx context.Context, id string) error {
	if _, err := s.store.GetCharge(ctx, id); err != nil {
		return err
	}
	s.closeDraftsFor(id)
	if err := s.store.DeleteCharge(ctx, id); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.Remove(id); err != nil {
			s.logger.Warn("remove charge history", zap.String("charge_id", id), zap.Error(err))
		}
	}
	return nil
}

// recordRevision commits the charge to its history. History is secondary to
// the database row, so failures are logged only.
func (s *Service) recordRevision(charge store.BishopCharge, author, message string) {
	if s.history == nil {
		return
	}
	if author == "" {
		author = "system"
	}
	_, _, err := s.history.Commit(charge.ID, history.Content{
		Title:    charge.Title,
		Content:  charge.Content,
		IsActive: charge.IsActive,
	}, author, message)
	if err != nil {
		s.logger.Warn("commit charge history", zap.String("charge_id", charge.ID), zap.Error(err))
	}
}

func (s *Service) historyEnabled() error {
	if s.history == nil {
		return domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Charge history is not configured", nil)
	}
	return nil
}

func (s *Service) ChargeHistory(ctx context.Context, id string, limit int) ([]history.Revision, error) {
	if err := s.historyEnabled(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCharge(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.history.History(id, limit)
}

type ChargeRevision struct {
	Revision history.Revision `json:"revision"`
	Content  history.Content  `json:"content"`
	// Changes lists the fields that differ from the stored charge.
	Changes []history.Change `json:"changes"`
}

func (s *Service) ChargeRevision(ctx context.Context, id, hash string) (ChargeRevision, error) {
	if err := s.historyEnabled(); err != nil {
		return ChargeRevision{}, err
	}
	current, err := s.store.GetCharge(ctx, id)
	if err != nil {
		return ChargeRevision{}, err
	}
	rev, content, err := s.history.Get(id, hash)
	if errors.Is(err, history.ErrRevisionNotFound) {
		return ChargeRevision{}, notFound("REVISION_NOT_FOUND", "Revision not found")
	}
	if err != nil {
		return ChargeRevision{}, err
	}
	changes := history.Diff(content, history.Content{
		Title:    current.Title,
		Content:  current.Content,
		IsActive: current.IsActive,
	})
	if changes == nil {
		changes = []history.Change{}
	}
	return ChargeRevision{Revision: rev, Content: content, Changes: changes}, nil
}

// ExportCharge renders the charge, or one of its revisions, as PDF or DOCX.
func (s *Service) ExportCharge(ctx context.Context, id, format, version string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, badRequest("UNSUPPORTED_FORMAT", "Format must be pdf or docx")
	}
	result, err := s.export.Export(ctx, export.Request{ChargeID: id, Version: version, Format: parsed})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, history.ErrRevisionNotFound):
		return nil, notFound("REVISION_NOT_FOUND", "Revision not found")
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "The converter for this format is not installed", map[string]any{"format": string(parsed)})
	default:
		return nil, err
	}
}
