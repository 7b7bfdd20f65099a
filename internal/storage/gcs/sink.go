// Package gcs provides a record sink backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	crawlstorage "github.com/JakeFAU/wikidot-crawler/internal/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Sink writes one JSON object per record to a configured bucket.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ crawler.RecordSink = (*Sink)(nil)

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Write uploads the record to gs://<bucket>/<prefix>/<kind>/<link>.json.
func (s *Sink) Write(ctx context.Context, record crawler.Record) error {
	path, err := crawlstorage.ObjectPath(s.prefix, record)
	if err != nil {
		return fmt.Errorf("gcs sink: %w", err)
	}
	data, err := crawlstorage.Encode(record)
	if err != nil {
		return err
	}
	if _, err := s.PutObject(ctx, path, data); err != nil {
		return fmt.Errorf("gcs sink: %w", err)
	}
	return nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *Sink) PutObject(ctx context.Context, path string, data []byte) (string, error) {
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = crawlstorage.ContentType
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
