// Package export renders a Bishop's Charge to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case FormatPDF, "":
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request names the charge to export. Version is empty for the stored
// content or a revision hash from the charge history.
type Request struct {
	ChargeID string
	Version  string
	Format   Format
}

// Document is the content handed to the converters.
type Document struct {
	ID        string
	Title     string
	Content   string
	IsActive  bool
	Revision  string
	UpdatedAt time.Time
}

type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

var (
	ErrUnsupportedFormat = errors.New("export format not supported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
