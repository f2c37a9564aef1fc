package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"diocese/api/internal/history"
	"diocese/api/internal/markup"
	"diocese/api/internal/store"
)

// ChargeSource loads the stored charge.
type ChargeSource interface {
	GetCharge(ctx context.Context, id string) (store.BishopCharge, error)
}

// RevisionSource loads a historical version of a charge.
type RevisionSource interface {
	Get(chargeID, hash string) (history.Revision, history.Content, error)
}

// Converter turns the rendered page into a file.
type Converter func(ctx context.Context, html, title string) (*Result, error)

type Options struct {
	Diocese   string
	Revisions RevisionSource
	Archive   Archive
	PDF       Converter
	DOCX      Converter
	Logger    *zap.Logger
	Now       func() time.Time
}

type Service struct {
	charges   ChargeSource
	revisions RevisionSource
	archive   Archive
	diocese   string
	convert   map[Format]Converter
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(charges ChargeSource, opts Options) *Service {
	s := &Service{
		charges:   charges,
		revisions: opts.Revisions,
		archive:   opts.Archive,
		diocese:   opts.Diocese,
		convert: map[Format]Converter{
			FormatPDF:  ChromePDF,
			FormatDOCX: PandocDOCX,
		},
		logger: opts.Logger,
		now:    opts.Now,
	}
	if opts.PDF != nil {
		s.convert[FormatPDF] = opts.PDF
	}
	if opts.DOCX != nil {
		s.convert[FormatDOCX] = opts.DOCX
	}
	if s.diocese == "" {
		s.diocese = "The Diocese"
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load resolves the charge content for a request without converting it.
func (s *Service) Load(ctx context.Context, req Request) (Document, error) {
	charge, err := s.charges.GetCharge(ctx, req.ChargeID)
	if err != nil {
		return Document{}, fmt.Errorf("get charge: %w", err)
	}
	doc := Document{
		ID:        charge.ID,
		Title:     charge.Title,
		Content:   charge.Content,
		IsActive:  charge.IsActive,
		UpdatedAt: charge.UpdatedAt,
	}
	if req.Version == "" || req.Version == "latest" {
		return doc, nil
	}
	if s.revisions == nil {
		return Document{}, fmt.Errorf("%w: %s", history.ErrRevisionNotFound, req.Version)
	}
	rev, content, err := s.revisions.Get(req.ChargeID, req.Version)
	if err != nil {
		return Document{}, err
	}
	doc.Title = content.Title
	doc.Content = content.Content
	doc.IsActive = content.IsActive
	doc.Revision = rev.Hash
	doc.UpdatedAt = rev.CreatedAt
	return doc, nil
}

// RenderHTML produces the print layout for a document.
func (s *Service) RenderHTML(doc Document) (string, error) {
	status := "Draft"
	if doc.IsActive {
		status = "Current charge"
	}
	return RenderChargeHTML(TemplateData{
		Diocese:     s.diocese,
		Title:       doc.Title,
		Status:      status,
		Revision:    doc.Revision,
		UpdatedAt:   doc.UpdatedAt,
		ContentHTML: template.HTML(markup.Sanitize(doc.Content)),
	})
}

// Export renders the charge and converts it. When an archive is configured
// the file is stored there too; archive failures are logged and do not fail
// the export.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	convert, ok := s.convert[req.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	doc, err := s.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	page, err := s.RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	result, err := convert(ctx, page, doc.Title)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		key := archiveKey(doc.ID, result.Filename, s.now())
		if err := s.archive.Put(ctx, key, result.Data, result.MimeType); err != nil {
			s.logger.Warn("archive export failed", zap.String("chargeId", doc.ID), zap.String("key", key), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}
