package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/logger"
	"github.com/spigell/uniscan/internal/utils"
	"go.uber.org/zap"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
)

//go:embed document_prompt.md
var documentPromptTemplate string

//go:embed url_prompt.md
var urlPromptTemplate string

//go:embed schema.md
var responseSchema string

type documentFetcher interface {
	Fetch(ctx context.Context, url string) (*Document, bool)
}

type contentGenerator interface {
	GenerateFromDocument(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Extractor implements ai.Extractor on top of Gemini. Circulars that can be
// downloaded as PDF or image are sent inline, everything else is inferred from the URL.
type Extractor struct {
	fetcher   documentFetcher
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Extractor = (*Extractor)(nil)

func NewExtractor(fetcher documentFetcher, generator contentGenerator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		fetcher:   fetcher,
		generator: generator,
		logger:    logger.With(log, logger.Fields{Provider: providerName, Model: generator.Model()}),
		maxLogLen: maxLogLength,
	}
}

func (e *Extractor) Extract(ctx context.Context, url string) (*ai.Extraction, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("url is required")
	}

	log := e.logger.With(zap.String(logger.FieldURL, url))

	if e.fetcher != nil {
		if doc, ok := e.fetcher.Fetch(ctx, url); ok {
			prompt := buildPrompt(documentPromptTemplate, url)
			log.Debug("gemini document request",
				zap.String("mime_type", doc.MimeType),
				zap.Int("size_bytes", len(doc.Data)),
				zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
			)

			raw, err := e.generator.GenerateFromDocument(ctx, prompt, doc.Data, doc.MimeType)
			if err != nil {
				return nil, fmt.Errorf("extract from document: %w", err)
			}
			e.logResponse(log, raw)

			return &ai.Extraction{
				Text:      raw,
				Strategy:  ai.StrategyDocument,
				MimeType:  doc.MimeType,
				SizeBytes: int64(len(doc.Data)),
			}, nil
		}
	}

	prompt := buildPrompt(urlPromptTemplate, url)
	log.Debug("gemini url request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract from url: %w", err)
	}
	e.logResponse(log, raw)

	return &ai.Extraction{Text: raw, Strategy: ai.StrategyURL}, nil
}

func (e *Extractor) logResponse(log *zap.Logger, raw string) {
	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)
}

func buildPrompt(template, url string) string {
	if strings.TrimSpace(template) == "" {
		template = "Extract the admission requirements for {{URL}} as JSON:\n{{SCHEMA}}"
	}
	prompt := strings.ReplaceAll(template, "{{SCHEMA}}", strings.TrimSpace(responseSchema))
	return strings.ReplaceAll(prompt, "{{URL}}", url)
}
