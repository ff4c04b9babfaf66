package ai

import (
	"context"
	"errors"
)

// Strategy names the way a circular was handed to the model.
type Strategy string

const (
	// StrategyDocument sends the fetched document bytes inline.
	StrategyDocument Strategy = "document"
	// StrategyURL sends only the URL and lets the model infer what it can.
	StrategyURL Strategy = "url"
)

// ErrNoResponseText is returned when the provider answered without any usable text.
var ErrNoResponseText = errors.New("no extractable response text")

// Extraction is the raw model answer for one circular URL.
type Extraction struct {
	Text      string
	Strategy  Strategy
	MimeType  string
	SizeBytes int64
}

// Extractor turns a circular URL into raw model text.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Extraction, error)
}
