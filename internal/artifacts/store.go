// Package artifacts stores generated report documents in the public bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hilife/servicereport-backend/pkg/storage/gcs"
)

const (
	DefaultDir     = "service_reports"
	pdfContentType = "application/pdf"
)

type objectStore interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	DeleteObject(ctx context.Context, bucket, object string) error
}

// Store maps canonical report ids to object paths and public URLs.
type Store struct {
	objects objectStore
	bucket  string
	dir     string
}

func NewStore(objects objectStore, bucket, dir string) (*Store, error) {
	if objects == nil {
		return nil, errors.New("object store required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket name required")
	}
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{objects: objects, bucket: bucket, dir: dir}, nil
}

// ObjectPath is the deterministic object name for a report document.
func (s *Store) ObjectPath(reportID string) string {
	return path.Join(s.dir, reportID+".pdf")
}

// URL reconstructs the public URL without touching storage.
func (s *Store) URL(reportID string) string {
	return gcs.PublicURL(s.bucket, s.ObjectPath(reportID))
}

// Save uploads pdf for reportID, replacing any previous version, and returns its public URL.
func (s *Store) Save(ctx context.Context, reportID string, pdf []byte) (string, error) {
	if strings.TrimSpace(reportID) == "" {
		return "", errors.New("report id required")
	}
	if len(pdf) == 0 {
		return "", errors.New("document is empty")
	}
	object := s.ObjectPath(reportID)
	if err := s.objects.UploadObject(ctx, s.bucket, object, pdfContentType, pdf); err != nil {
		return "", fmt.Errorf("storing %s: %w", object, err)
	}
	return gcs.PublicURL(s.bucket, object), nil
}

// Remove deletes the stored document for reportID.
func (s *Store) Remove(ctx context.Context, reportID string) error {
	if strings.TrimSpace(reportID) == "" {
		return errors.New("report id required")
	}
	return s.objects.DeleteObject(ctx, s.bucket, s.ObjectPath(reportID))
}
