package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCS stores payloads in a Google Cloud Storage bucket as
// {prefix}/{runID}/{path}. Credentials come from the ambient environment
// (application default credentials).
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

var _ Store = (*GCS)(nil)

// OpenGCS parses a gs://bucket[/prefix] store URI and connects a client.
func OpenGCS(ctx context.Context, storeURI string) (*GCS, error) {
	bucket, prefix, err := splitGCSURI(storeURI)
	if err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCS) Put(ctx context.Context, runID uuid.UUID, path string, r io.Reader) (string, error) {
	object := s.objectName(runID, path)
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blob: write gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blob: finalize gs://%s/%s: %w", s.bucket, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func (s *GCS) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", uri, err)
	}
	return r, nil
}

func (s *GCS) objectName(runID uuid.UUID, path string) string {
	if s.prefix == "" {
		return runID.String() + "/" + path
	}
	return s.prefix + "/" + runID.String() + "/" + path
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("blob: not a gs URI: %q", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("blob: missing bucket in %q", uri)
	}
	return bucket, strings.Trim(object, "/"), nil
}
