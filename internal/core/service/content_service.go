package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rl1809/lending/internal/port"
)

// Content is an open title file; the caller closes Body.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Length      int64
}

// ContentService serves title files from the blob store behind the access gate.
type ContentService struct {
	db     port.TitleRepository
	access *AccessService
	blobs  port.BlobStore
	opts   options
}

func NewContentService(db port.TitleRepository, access *AccessService, blobs port.BlobStore, opts ...Option) *ContentService {
	return &ContentService{db: db, access: access, blobs: blobs, opts: buildOptions(opts)}
}

func (s *ContentService) OpenTitle(ctx context.Context, userID, titleID string) (_ *Content, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "ContentService.OpenTitle")
	defer func() { endSpan(span, err) }()

	decision, err := s.access.CheckAccess(ctx, userID, titleID)
	if err != nil {
		return nil, err
	}
	if !decision.Authorized {
		return nil, &AccessDeniedError{Reason: decision.Reason}
	}

	title, err := s.db.GetTitle(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("get title: %w", err)
	}
	if title == nil || title.ContentKey == "" {
		return nil, fmt.Errorf("content of %s: %w", titleID, ErrNotFound)
	}

	rc, contentType, length, err := s.blobs.GetStream(ctx, title.ContentKey)
	if errors.Is(err, port.ErrBlobNotFound) {
		return nil, fmt.Errorf("content of %s: %w", titleID, ErrNotFound)
	}
	if err != nil {
		s.opts.logger.Error().Err(err).Str("title_id", titleID).Msg("blob read failed")
		return nil, fmt.Errorf("read content: %w: %w", ErrUpstream, err)
	}
	return &Content{Body: rc, ContentType: contentType, Length: length}, nil
}

// UploadContent stores the title's readable file under its content key.
func (s *ContentService) UploadContent(ctx context.Context, titleID string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", invalid("content", "empty")
	}
	title, err := s.db.GetTitle(ctx, titleID)
	if err != nil {
		return "", fmt.Errorf("get title: %w", err)
	}
	if title == nil {
		return "", fmt.Errorf("title %s: %w", titleID, ErrNotFound)
	}
	if title.ContentKey == "" {
		return "", invalid("content_key", "title has no content key")
	}

	url, err := s.blobs.Put(ctx, title.ContentKey, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store content: %w: %w", ErrUpstream, err)
	}
	return url, nil
}
