package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// FilesystemWriter stores snapshots under a local base directory. Intended
// for local development and tests.
type FilesystemWriter struct {
	baseDir string
	logger  ectologger.Logger
}

// NewFilesystemWriter creates a filesystem-backed snapshot writer.
func NewFilesystemWriter(baseDir string, logger ectologger.Logger) *FilesystemWriter {
	return &FilesystemWriter{baseDir: baseDir, logger: logger}
}

func (w *FilesystemWriter) Backend() string {
	return "filesystem"
}

// Write stores the envelope as a JSON file. Files are created exclusively
// so an existing snapshot is never overwritten.
func (w *FilesystemWriter) Write(ctx context.Context, envelope Envelope) (string, error) {
	objectPath := ObjectPath(envelope)
	fullPath := filepath.Join(w.baseDir, filepath.FromSlash(objectPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSnapshotExists, objectPath)
		}
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(envelope); err != nil {
		file.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close snapshot file: %w", err)
	}

	metrics.RawSnapshotsWritten.WithLabelValues(envelope.Connector, w.Backend()).Inc()
	w.logger.WithContext(ctx).
		WithField("path", objectPath).
		WithField("record_count", envelope.RecordCount).
		Debug("wrote raw snapshot")

	return objectPath, nil
}
