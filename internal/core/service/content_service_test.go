package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

func newContentService(f *fixture, blobs *memBlobStore) *ContentService {
	return NewContentService(f.db, f.accessService(), blobs, f.options()...)
}

func TestOpenTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock()
	f.grant("e1", "u1", "t1", now, timePtr(now.Add(time.Hour)), domain.ProvenanceManual)

	blobs := &memBlobStore{objects: map[string][]byte{"titles/t1.pdf": []byte("%PDF-1.7")}}
	svc := newContentService(f, blobs)

	content, err := svc.OpenTitle(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer content.Body.Close()
	data, _ := io.ReadAll(content.Body)
	if string(data) != "%PDF-1.7" || content.Length != 8 || content.ContentType != "application/pdf" {
		t.Errorf("unexpected content %q %d %s", data, content.Length, content.ContentType)
	}
}

func TestOpenTitle_Denied(t *testing.T) {
	f := newFixture(t)
	svc := newContentService(f, &memBlobStore{objects: map[string][]byte{}})

	_, err := svc.OpenTitle(context.Background(), "u1", "t2")
	var denied *AccessDeniedError
	if !errors.As(err, &denied) || denied.Reason != ReasonNeverGranted {
		t.Fatalf("expected NeverGranted denial, got %v", err)
	}
	if Classify(err) != KindStateConflict {
		t.Errorf("expected state conflict, got %s", Classify(err))
	}
}

func TestOpenTitle_BlobFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock()
	f.grant("e1", "u1", "t1", now, timePtr(now.Add(time.Hour)), domain.ProvenanceManual)
	f.grant("e3", "u1", "t3", now, timePtr(now.Add(time.Hour)), domain.ProvenanceManual)

	blobs := &memBlobStore{objects: map[string][]byte{}}
	svc := newContentService(f, blobs)

	if _, err := svc.OpenTitle(ctx, "u1", "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing blob, got %v", err)
	}
	if _, err := svc.OpenTitle(ctx, "u1", "t3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for title without content, got %v", err)
	}

	blobs.fail = true
	_, err := svc.OpenTitle(ctx, "u1", "t1")
	if Classify(err) != KindUpstream {
		t.Errorf("expected upstream failure, got %v", err)
	}
}

func TestUploadContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	blobs := &memBlobStore{objects: map[string][]byte{}}
	svc := newContentService(f, blobs)

	url, err := svc.UploadContent(ctx, "t2", []byte("book"), "application/pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "mem://titles/t2.pdf" || string(blobs.objects["titles/t2.pdf"]) != "book" {
		t.Errorf("unexpected upload result %s", url)
	}

	if _, err := svc.UploadContent(ctx, "t3", []byte("book"), "application/pdf"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation without content key, got %v", err)
	}
	if _, err := svc.UploadContent(ctx, "t2", nil, "application/pdf"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty content, got %v", err)
	}
}
