package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"diocese/api/internal/autosave"
	"diocese/api/internal/editor"
	"diocese/api/internal/markup"
	"diocese/api/internal/templates"
	"diocese/api/internal/util"
)

const (
	defaultDraftTTL  = 30 * time.Minute
	draftPlaceholder = "Start writing the charge..."
)

// draft is a server-side editing session on one charge: an editor, the
// autosave hook watching its document and the template picker feeding it.
type draft struct {
	id       string
	chargeID string
	author   string
	editor   *editor.Editor
	hook     *autosave.Hook
	picker   templates.Picker

	// saveMu serialises manual saves with autosaves.
	saveMu sync.Mutex

	mu        sync.Mutex
	expiresAt time.Time
}

type DraftView struct {
	ID       string `json:"id"`
	ChargeID string `json:"chargeId"`
	editor.View
	Autosave autosave.Status `json:"autosave"`
}

type DraftKeyInput struct {
	editor.KeyEvent
	Selection *editor.Selection `json:"selection"`
}

func (d *draft) view() DraftView {
	return DraftView{
		ID:       d.id,
		ChargeID: d.chargeID,
		View:     d.editor.View(),
		Autosave: d.hook.Status(),
	}
}

func (s *Service) draftTTL() time.Duration {
	if s.cfg.DraftTTL > 0 {
		return s.cfg.DraftTTL
	}
	return defaultDraftTTL
}

// OpenDraft starts an editing session on the stored content of a charge.
// The editor is mounted and the autosave hook armed before it is returned.
func (s *Service) OpenDraft(ctx context.Context, session Session, chargeID string) (DraftView, error) {
	charge, err := s.store.GetCharge(ctx, chargeID)
	if err != nil {
		return DraftView{}, err
	}

	d := &draft{
		id:       util.NewID("drf"),
		chargeID: charge.ID,
		author:   session.UserName,
	}
	ed, err := editor.New(editor.Config{
		Content:     charge.Content,
		Placeholder: draftPlaceholder,
		OnSave: func(ctx context.Context, _ string) error {
			return s.persistDraft(ctx, d, "Save charge")
		},
	})
	if err != nil {
		return DraftView{}, badRequest("INVALID_CONTENT", "Stored charge content could not be loaded into the editor")
	}
	d.editor = ed
	d.picker = templates.Picker{Catalog: s.templates, OnSelect: ed.SetContent}
	d.hook = autosave.New(ed.Document(), func(ctx context.Context, _ string) error {
		return s.persistDraft(ctx, d, "Autosave charge")
	}, autosave.Options{
		Delay:  s.cfg.AutosaveDelay,
		Logger: s.logger.With(zap.String("draft_id", d.id), zap.String("charge_id", d.chargeID)),
	})
	ed.Mount()

	d.expiresAt = s.now().Add(s.draftTTL())
	s.draftMu.Lock()
	s.drafts[d.id] = d
	s.draftMu.Unlock()

	s.logger.Info("draft opened", zap.String("draft_id", d.id), zap.String("charge_id", d.chargeID), zap.String("by", session.UserID))
	return d.view(), nil
}

// persistDraft writes the editor content to the charge row, records a
// revision and moves the autosave baseline. Content is read under saveMu so
// a queued save never writes an older document over a newer one.
func (s *Service) persistDraft(ctx context.Context, d *draft, message string) error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	html := d.editor.HTML()
	saved, err := s.store.UpdateChargeContent(ctx, d.chargeID, markup.Sanitize(html))
	if err != nil {
		return err
	}
	s.recordRevision(saved, d.author, message)
	d.hook.MarkSaved(html)
	return nil
}

// lookupDraft returns a live draft and extends its lease.
func (s *Service) lookupDraft(id string) (*draft, error) {
	s.draftMu.Lock()
	d, ok := s.drafts[id]
	s.draftMu.Unlock()
	if !ok {
		return nil, notFound("DRAFT_NOT_FOUND", "Draft not found or expired")
	}

	now := s.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.After(d.expiresAt) {
		return nil, notFound("DRAFT_NOT_FOUND", "Draft not found or expired")
	}
	d.expiresAt = now.Add(s.draftTTL())
	return d, nil
}

func (s *Service) GetDraft(id string) (DraftView, error) {
	d, err := s.lookupDraft(id)
	if err != nil {
		return DraftView{}, err
	}
	return d.view(), nil
}

func editorError(err error) error {
	switch {
	case errors.Is(err, editor.ErrNotMounted):
		return domainError(http.StatusConflict, "EDITOR_NOT_READY", "Editor is still loading", nil)
	case errors.Is(err, editor.ErrReadOnly):
		return domainError(http.StatusConflict, "EDITOR_READ_ONLY", "Editor is read-only", nil)
	case errors.Is(err, editor.ErrUnknownCommand),
		errors.Is(err, editor.ErrExtensionDisabled),
		errors.Is(err, editor.ErrInvalidBlock),
		errors.Is(err, editor.ErrInvalidRange),
		errors.Is(err, editor.ErrInvalidArgument):
		return badRequest("INVALID_COMMAND", err.Error())
	default:
		return err
	}
}

// ExecDraftCommand applies one editor command as a transaction.
func (s *Service) ExecDraftCommand(id string, cmd editor.Command) (DraftView, error) {
	d, err := s.lookupDraft(id)
	if err != nil {
		return DraftView{}, err
	}
	if err := d.editor.Exec(cmd); err != nil {
		return DraftView{}, editorError(err)
	}
	return d.view(), nil
}

// ApplyTemplate replaces the whole draft content with a catalog template.
func (s *Service) ApplyTemplate(id, templateID string) (DraftView, error) {
	d, err := s.lookupDraft(id)
	if err != nil {
		return DraftView{}, err
	}
	err = d.picker.Select(templateID)
	if errors.Is(err, templates.ErrUnknownTemplate) {
		return DraftView{}, notFound("TEMPLATE_NOT_FOUND", "Template not found")
	}
	if err != nil {
		return DraftView{}, editorError(err)
	}
	return d.view(), nil
}

// HandleDraftKey runs a keyboard shortcut. The selection, when given, is
// applied first so mark shortcuts act on it.
func (s *Service) HandleDraftKey(ctx context.Context, id string, input DraftKeyInput) (DraftView, error) {
	d, err := s.lookupDraft(id)
	if err != nil {
		return DraftView{}, err
	}
	if input.Selection != nil {
		d.editor.SetSelection(*input.Selection)
	}
	if _, err := d.editor.HandleKey(ctx, input.KeyEvent); err != nil {
		return DraftView{}, s.saveError(d, err)
	}
	return d.view(), nil
}

// SaveDraft saves immediately, bypassing the autosave delay.
func (s *Service) SaveDraft(ctx context.Context, id string) (DraftView, error) {
	d, err := s.lookupDraft(id)
	if err != nil {
		return DraftView{}, err
	}
	if err := d.editor.Save(ctx); err != nil {
		return DraftView{}, s.saveError(d, err)
	}
	return d.view(), nil
}

func (s *Service) saveError(d *draft, err error) error {
	mapped := editorError(err)
	var domainErr *DomainError
	if errors.As(mapped, &domainErr) {
		return mapped
	}
	s.logger.Error("draft save failed", zap.String("draft_id", d.id), zap.String("charge_id", d.chargeID), zap.Error(err))
	return domainError(http.StatusInternalServerError, "SAVE_FAILED", "The charge could not be saved", nil)
}

// CloseDraft tears the session down. A pending autosave is dropped; a save
// already running is waited for.
func (s *Service) CloseDraft(id string) error {
	s.draftMu.Lock()
	d, ok := s.drafts[id]
	delete(s.drafts, id)
	s.draftMu.Unlock()
	if !ok {
		return notFound("DRAFT_NOT_FOUND", "Draft not found or expired")
	}
	d.close()
	return nil
}

func (d *draft) close() {
	d.hook.Close()
	d.editor.Destroy()
}

func (s *Service) closeDraftsFor(chargeID string) {
	s.closeWhere(func(d *draft) bool { return d.chargeID == chargeID })
}

// PruneDrafts closes drafts whose lease has expired and reports how many.
func (s *Service) PruneDrafts() int {
	now := s.now()
	return s.closeWhere(func(d *draft) bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return now.After(d.expiresAt)
	})
}

// CloseAllDrafts is called on shutdown.
func (s *Service) CloseAllDrafts() {
	s.closeWhere(func(*draft) bool { return true })
}

func (s *Service) closeWhere(match func(*draft) bool) int {
	var closing []*draft
	s.draftMu.Lock()
	for id, d := range s.drafts {
		if match(d) {
			closing = append(closing, d)
			delete(s.drafts, id)
		}
	}
	s.draftMu.Unlock()

	for _, d := range closing {
		d.close()
	}
	return len(closing)
}

func (s *Service) ListTemplates() []templates.Template {
	return s.templates.List()
}

func (s *Service) GetTemplate(id string) (templates.Template, error) {
	tmpl, err := s.templates.Get(id)
	if errors.Is(err, templates.ErrUnknownTemplate) {
		return templates.Template{}, notFound("TEMPLATE_NOT_FOUND", "Template not found")
	}
	return tmpl, err
}
