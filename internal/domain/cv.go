package domain

import (
	"context"
	"time"
)

// ExportResult describes a generated export file.
type ExportResult struct {
	OK         bool         `json:"ok"`
	File       string       `json:"file"`
	Format     ExportFormat `json:"format"`
	Plan       PlanCode     `json:"plan"`
	ExportedAt time.Time    `json:"exported_at"`
}

// OptimizeRequest is a paid CV optimization run.
type OptimizeRequest struct {
	Email      string `json:"email"`
	CVText     string `json:"cv_text"`
	JobPosting string `json:"job_posting"`
	Language   string `json:"language"`
}

// OptimizeResult is the output of a successful optimization.
type OptimizeResult struct {
	OptimizedCV string `json:"optimized_cv"`
	CoverLetter string `json:"cover_letter"`
	Plan        string `json:"plan"`
	UsageCount  int    `json:"usage_count"`
	UsageLimit  int    `json:"usage_limit"`
	Remaining   int    `json:"remaining"`
}

// ParsedCV is plain text extracted from an uploaded CV.
type ParsedCV struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Title     string `json:"title,omitempty"`
}

// TextGenerator produces text from an instruction and a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, instruction, prompt string) (string, error)
}

// CVTextExtractor pulls plain text out of uploaded documents.
type CVTextExtractor interface {
	ExtractPDF(pdfBytes []byte) (*ParsedCV, error)
	JobPostingText(raw string) string
}

// ExportService gates exports by plan.
type ExportService interface {
	Export(ctx context.Context, email string, format string) (*ExportResult, error)
}

// OptimizeService runs a metered CV optimization.
type OptimizeService interface {
	Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error)
}
