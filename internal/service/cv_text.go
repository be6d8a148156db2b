package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/net/html"
)

const (
	cvPageTimeout = 20 * time.Second
	maxCVPages    = 10
	// maxCVChars bounds what reaches the generator prompt.
	maxCVChars = 30000
)

// CVTextExtractor implements domain.CVTextExtractor.
type CVTextExtractor struct {
	logger      domain.Logger
	pageTimeout time.Duration
}

// NewCVTextExtractor creates a new extractor
func NewCVTextExtractor(logger domain.Logger) *CVTextExtractor {
	return &CVTextExtractor{
		logger:      logger,
		pageTimeout: cvPageTimeout,
	}
}

// ExtractPDF returns the plain text of an uploaded CV. Pages that fail or
// time out are skipped; a CV with no text at all is rejected.
func (e *CVTextExtractor) ExtractPDF(pdfBytes []byte) (*domain.ParsedCV, error) {
	if len(pdfBytes) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidFile)
	}

	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %v", domain.ErrInvalidFile, err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages > maxCVPages {
		return nil, fmt.Errorf("%w: CV has %d pages, at most %d are supported", domain.ErrInvalidFile, numPages, maxCVPages)
	}

	type pageResult struct {
		text string
		err  error
	}

	pages := make([]string, 0, numPages)
	for pageNum := 0; pageNum < numPages; pageNum++ {
		resultCh := make(chan pageResult, 1)
		go func(idx int) {
			text, err := doc.Text(idx)
			resultCh <- pageResult{text: text, err: err}
		}(pageNum)

		var res pageResult
		select {
		case res = <-resultCh:
		case <-time.After(e.pageTimeout):
			res.err = fmt.Errorf("timeout after %v", e.pageTimeout)
			go func() { <-resultCh }()
		}
		if res.err != nil {
			e.logger.Warn("Failed to extract text from CV page", "page", pageNum+1, "total", numPages, "error", res.err)
			continue
		}
		if t := normalizeText(sanitizeText(res.text)); t != "" {
			pages = append(pages, t)
		}
	}

	text := truncateRunes(strings.Join(pages, "\n\n"), maxCVChars)
	if text == "" {
		return nil, fmt.Errorf("%w: no extractable text (scanned CV?)", domain.ErrInvalidFile)
	}

	parsed := &domain.ParsedCV{Text: text, PageCount: numPages}
	if title, ok := doc.Metadata()["title"]; ok {
		parsed.Title = strings.TrimSpace(title)
	}
	return parsed, nil
}

// JobPostingText turns a pasted job posting into plain text. Postings copied
// from job boards often arrive as HTML.
func (e *CVTextExtractor) JobPostingText(raw string) string {
	raw = strings.TrimSpace(raw)
	if looksLikeHTML(raw) {
		if t := htmlToText([]byte(raw)); t != "" {
			raw = t
		}
	}
	return truncateRunes(normalizeText(sanitizeText(raw)), maxCVChars)
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, tag := range []string{"<html", "<body", "<div", "<p>", "<p ", "<ul", "<li", "<br"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

func htmlToText(b []byte) string {
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil || doc == nil {
		return ""
	}

	block := map[string]bool{
		"p": true, "div": true, "section": true, "article": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"li": true, "ul": true, "ol": true, "tr": true,
	}
	skip := map[string]bool{
		"script": true, "style": true, "head": true, "nav": true, "footer": true,
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skip[tag] {
				return
			}
			if tag == "br" {
				sb.WriteString("\n")
			}
			if tag == "li" {
				sb.WriteString("\n- ")
			} else if block[tag] {
				sb.WriteString("\n\n")
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out := sb.String()
				if sb.Len() > 0 && !strings.HasSuffix(out, "\n") && !strings.HasSuffix(out, " ") {
					sb.WriteString(" ")
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[strings.ToLower(n.Data)] {
			sb.WriteString("\n\n")
		}
	}
	walk(doc)

	return normalizeText(sb.String())
}

// normalizeText unifies line endings and collapses runs of blank lines.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		t := strings.Join(strings.Fields(line), " ")
		if t == "" {
			blank++
			if blank <= 1 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, t)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// sanitizeText drops control characters and surrogates that break JSON
// encoding, keeping tabs and newlines.
func sanitizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case r >= 0xD800 && r <= 0xDFFF:
		case r == 0xFFFD:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit]))
}
