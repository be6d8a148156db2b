package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cvperfect-server/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	defaultLanguage = "pl"
	minCVChars      = 50
)

var languageNames = map[string]string{
	"pl": "Polish",
	"en": "English",
	"de": "German",
}

const cvInstruction = "You are an expert CV writer. Rewrite the candidate's CV so it matches the job posting. " +
	"Keep every fact truthful, improve the wording, and use the posting's keywords where they honestly apply. " +
	"Return only the CV text."

const coverLetterInstruction = "You are an expert at writing cover letters. Using the job posting and the candidate's CV, " +
	"write a concise professional cover letter. Return only the letter text."

type optimizeService struct {
	usage     domain.UsageService
	generator domain.TextGenerator
	extractor domain.CVTextExtractor
	logger    domain.Logger
}

func NewOptimizeService(
	usage domain.UsageService,
	generator domain.TextGenerator,
	extractor domain.CVTextExtractor,
	logger domain.Logger,
) domain.OptimizeService {
	return &optimizeService{
		usage:     usage,
		generator: generator,
		extractor: extractor,
		logger:    logger,
	}
}

// Optimize is a metered operation: authorize, generate, and only when both
// documents were produced, commit one usage unit.
func (s *optimizeService) Optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.OptimizeResult, error) {
	cvText := strings.TrimSpace(req.CVText)
	if len([]rune(cvText)) < minCVChars {
		return nil, &domain.ValidationError{Field: "cv_text", Message: fmt.Sprintf("must be at least %d characters", minCVChars)}
	}
	jobPosting := s.extractor.JobPostingText(req.JobPosting)

	lang := strings.ToLower(strings.TrimSpace(req.Language))
	if lang == "" {
		lang = defaultLanguage
	}
	langName, ok := languageNames[lang]
	if !ok {
		return nil, &domain.ValidationError{Field: "language", Message: fmt.Sprintf("unsupported language %q", req.Language)}
	}

	decision, user, err := s.usage.Authorize(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &domain.UsageDeniedError{Reason: decision.Reason}
	}

	var optimizedCV, coverLetter string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.generator.Generate(gctx, cvInstruction+" Write in "+langName+".", cvPrompt(cvText, jobPosting))
		if err != nil {
			return fmt.Errorf("optimize cv: %w", err)
		}
		optimizedCV = out
		return nil
	})
	g.Go(func() error {
		out, err := s.generator.Generate(gctx, coverLetterInstruction+" Write in "+langName+".", coverLetterPrompt(cvText, jobPosting))
		if err != nil {
			return fmt.Errorf("cover letter: %w", err)
		}
		coverLetter = out
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("CV optimization failed, no usage spent", err, "email", user.Email)
		if !errors.Is(err, domain.ErrGeneratorFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneratorFailed, err)
		}
		return nil, err
	}

	committed, err := s.usage.Commit(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	return &domain.OptimizeResult{
		OptimizedCV: optimizedCV,
		CoverLetter: coverLetter,
		Plan:        string(committed.Plan),
		UsageCount:  committed.UsageCount,
		UsageLimit:  committed.UsageLimit,
		Remaining:   committed.RemainingUsage(),
	}, nil
}

func cvPrompt(cvText, jobPosting string) string {
	var b strings.Builder
	b.WriteString("CURRENT CV:\n")
	b.WriteString(cvText)
	if jobPosting != "" {
		b.WriteString("\n\nJOB POSTING:\n")
		b.WriteString(jobPosting)
	} else {
		b.WriteString("\n\nNo job posting was given. Optimize the CV for general readability and impact.")
	}
	return b.String()
}

func coverLetterPrompt(cvText, jobPosting string) string {
	var b strings.Builder
	if jobPosting != "" {
		b.WriteString("JOB POSTING:\n")
		b.WriteString(jobPosting)
		b.WriteString("\n\n")
	}
	b.WriteString("CANDIDATE CV:\n")
	b.WriteString(cvText)
	return b.String()
}
