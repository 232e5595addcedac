package export

import "fmt"

// Service turns an assembled Submission into a downloadable artifact.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the submission and converts it to the requested format.
func (s *Service) Export(sub Submission, format Format) (*Result, error) {
	html, err := RenderFormHTML(sub)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatPDF:
		return exportPDF(html, sub.Title)
	case FormatDOCX:
		return exportDOCX(html, sub.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
