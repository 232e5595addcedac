// Package export renders a submission's section forms as downloadable
// PDF or DOCX documents.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Submission is the render-ready input assembled by the caller.
type Submission struct {
	Title       string
	Kind        string
	OwnerName   string
	StageName   string
	ProjectName string
	UpdatedAt   time.Time
	Sections    []Section
}

// Section is one form section with its resolved field values.
type Section struct {
	Name   string
	Fields []Field
}

// Field is one rendered form answer.
type Field struct {
	Name      string
	InputKind string
	Value     string
	Options   []string
	Approved  bool
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
