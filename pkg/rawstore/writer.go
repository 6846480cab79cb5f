// Package rawstore persists raw connector payloads as immutable snapshots.
// One object is written per (tenant, connector, day, subscription) at
// {tenant}/{connector}/YYYY/MM/DD/{subscription}.json. Snapshots are never
// overwritten; the raw layer is the replayable source of truth.
package rawstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotExists is returned when a snapshot object already exists at
// the target path.
var ErrSnapshotExists = errors.New("raw snapshot already exists")

// Envelope wraps a raw connector payload with its capture metadata.
type Envelope struct {
	SnapshotTime   time.Time `json:"snapshot_time"`
	TenantID       string    `json:"tenant_id"`
	SubscriptionID string    `json:"subscription_id"`
	Connector      string    `json:"connector"`
	RecordCount    int       `json:"record_count"`
	Data           any       `json:"data"`
}

// Writer persists raw snapshots to a storage backend.
type Writer interface {
	// Write stores the envelope at its derived path. Returns
	// ErrSnapshotExists when the path is already occupied.
	Write(ctx context.Context, envelope Envelope) (string, error)
	// Backend names the storage backend for logging and metrics.
	Backend() string
}

// ObjectPath derives the immutable snapshot path for an envelope.
func ObjectPath(envelope Envelope) string {
	return fmt.Sprintf("%s/%s/%s/%s.json",
		envelope.TenantID,
		envelope.Connector,
		envelope.SnapshotTime.UTC().Format("2006/01/02"),
		envelope.SubscriptionID,
	)
}
