package gemini

import (
	"context"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxDocumentBytes    = 20 * 1024 * 1024
	userAgent           = "uniscan/1.0 (+admission circular analyzer)"
)

// Document is a directly fetched circular file.
type Document struct {
	Data     []byte
	MimeType string
}

// Fetcher downloads circular documents that can be handed to the model inline.
type Fetcher struct {
	timeout  time.Duration
	maxBytes int
	logger   *zap.Logger
}

func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{timeout: timeout, maxBytes: maxDocumentBytes, logger: logger}
}

// Fetch returns the document behind url when it is a PDF or an image served with
// a 2xx status. ok is false for anything else, including network failures and
// documents larger than the inline limit.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	c := colly.NewCollector(colly.UserAgent(userAgent))
	// One byte over the limit tells a cut body apart from a document of exactly maxBytes.
	c.MaxBodySize = f.maxBytes + 1
	c.SetRequestTimeout(f.timeout)

	var doc *Document
	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			return
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		mimeType, ok := documentMimeType(contentType)
		if !ok {
			f.logger.Debug("fetched content is not a document",
				zap.String("url", url),
				zap.String("content_type", contentType),
			)
			return
		}
		if len(r.Body) == 0 {
			return
		}
		if f.oversized(r) {
			f.logger.Debug("fetched document exceeds the inline limit",
				zap.String("url", url),
				zap.Int("limit_bytes", f.maxBytes),
			)
			return
		}
		doc = &Document{Data: r.Body, MimeType: mimeType}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		f.logger.Debug("direct fetch failed",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Error(err),
		)
	})

	if err := c.Visit(url); err != nil {
		return nil, false
	}

	return doc, doc != nil
}

func (f *Fetcher) oversized(r *colly.Response) bool {
	if len(r.Body) > f.maxBytes {
		return true
	}
	if r.Headers == nil {
		return false
	}
	length, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64)
	return err == nil && length > int64(f.maxBytes)
}

func documentMimeType(contentType string) (string, bool) {
	if strings.TrimSpace(contentType) == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case mediaType == "application/pdf":
		return mediaType, true
	case strings.HasPrefix(mediaType, "image/"):
		return mediaType, true
	default:
		return "", false
	}
}
