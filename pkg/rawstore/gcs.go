package rawstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/Gobusters/ectologger"
	"google.golang.org/api/googleapi"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// GCSWriter stores snapshots as objects in a Google Cloud Storage bucket.
type GCSWriter struct {
	bucket *storage.BucketHandle
	name   string
	logger ectologger.Logger
}

// NewGCSWriter creates a GCS-backed snapshot writer.
func NewGCSWriter(client *storage.Client, bucket string, logger ectologger.Logger) *GCSWriter {
	return &GCSWriter{
		bucket: client.Bucket(bucket),
		name:   bucket,
		logger: logger,
	}
}

func (w *GCSWriter) Backend() string {
	return "gcs"
}

// Write stores the envelope as a JSON object. The DoesNotExist precondition
// keeps existing snapshots immutable.
func (w *GCSWriter) Write(ctx context.Context, envelope Envelope) (string, error) {
	objectPath := ObjectPath(envelope)

	writer := w.bucket.Object(objectPath).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"

	if err := json.NewEncoder(writer).Encode(envelope); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%w: gs://%s/%s", ErrSnapshotExists, w.name, objectPath)
		}
		return "", fmt.Errorf("failed to write snapshot to gcs: %w", err)
	}

	metrics.RawSnapshotsWritten.WithLabelValues(envelope.Connector, w.Backend()).Inc()
	w.logger.WithContext(ctx).
		WithField("bucket", w.name).
		WithField("path", objectPath).
		WithField("record_count", envelope.RecordCount).
		Debug("wrote raw snapshot")

	return objectPath, nil
}
