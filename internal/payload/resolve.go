package payload

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var (
	errNoFetcher = errors.New("no fetcher configured")
	errEmptyFile = errors.New("empty file")
)

// Fetcher downloads the content behind a file reference.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Message is the part of a chat message the resolver looks at.
type Message struct {
	Text    string
	FileURL string
}

// Resolver picks the payload source for a message: an attached file wins
// over inline fences.
type Resolver struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewResolver creates a Resolver that downloads attachments with fetcher.
func NewResolver(fetcher Fetcher, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With(zap.String("component", "payload")),
	}
}

// Resolve returns the payload of msg and an origin label for display. The
// origin is the file URL for attachments and empty for inline code.
func (r *Resolver) Resolve(ctx context.Context, msg Message) (Payload, string) {
	if msg.FileURL == "" {
		return Extract(msg.Text), ""
	}

	if r.fetcher == nil {
		p := fetchFailed(errNoFetcher)
		r.logger.Warn("file attached but no fetcher configured", zap.String("url", msg.FileURL), zap.Error(p.Err()))
		return p, msg.FileURL
	}

	data, err := r.fetcher.Fetch(ctx, msg.FileURL)
	if err != nil {
		p := fetchFailed(err)
		r.logger.Warn("fetching attached file failed", zap.String("url", msg.FileURL), zap.Error(p.Err()))
		return p, msg.FileURL
	}
	if len(data) == 0 {
		p := fetchFailed(errEmptyFile)
		r.logger.Debug("attached file is empty", zap.String("url", msg.FileURL))
		return p, msg.FileURL
	}
	return source(strings.ToValidUTF8(string(data), "\uFFFD")), msg.FileURL
}
