// Package localstate persists per-device state in a Badger database: the
// device identity used when no auth provider is wired, and a snapshot of the
// cached collections for warm starts.
package localstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
)

var (
	ErrNotFound      = domainerrors.ErrNotFound
	ErrAlreadyExists = domainerrors.ErrConflict
	// ErrCorrupt marks a stored value that no longer decodes.
	ErrCorrupt = errors.New("localstate: corrupt value")
)

const (
	prefixDevice   = "device:"
	prefixSnapshot = "snapshot:"

	deviceKey = "self"
)

// Device is the identity of this installation.
type Device struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotRecord is a saved cache snapshot.
type SnapshotRecord struct {
	SavedAt  time.Time      `json:"saved_at"`
	UserID   string         `json:"user_id"`
	Snapshot cache.Snapshot `json:"snapshot"`
}

// Store is the on-device database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	Devices   *Entity[Device]
	Snapshots *Entity[SnapshotRecord]
}

// Open opens (or creates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, domainerrors.Validation("local state path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.Devices = NewEntity[Device](s, prefixDevice)
	s.Snapshots = NewEntity[SnapshotRecord](s, prefixSnapshot)

	logger.Info("local state opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.logger.Info("closing local state")
	return s.db.Close()
}

// DeviceID returns this installation's identity, generating and storing it
// on first use. The id is stable across restarts.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	d, err := s.Devices.Get(ctx, deviceKey)
	if err == nil && d.ID != "" {
		return d.ID, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	fresh := Device{ID: id.MustGenerate(id.PrefixDevice), CreatedAt: time.Now().UTC()}
	if err := s.Devices.Create(ctx, deviceKey, &fresh); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Another caller won the race.
			d, err := s.Devices.Get(ctx, deviceKey)
			if err != nil {
				return "", err
			}
			return d.ID, nil
		}
		return "", err
	}
	s.logger.Info("generated device identity", "device_id", fresh.ID)
	return fresh.ID, nil
}

// SaveSnapshot stores snap as the latest snapshot for userID.
func (s *Store) SaveSnapshot(ctx context.Context, userID string, snap cache.Snapshot) error {
	rec := SnapshotRecord{SavedAt: time.Now().UTC(), UserID: userID, Snapshot: snap}
	if err := s.Snapshots.Put(ctx, userID, &rec); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved",
		"user_id", userID,
		"shelves", len(snap.Shelves),
		"accessories", len(snap.Accessories))
	return nil
}

// LoadSnapshot returns the latest snapshot for userID. ok is false when none
// is stored. A snapshot that no longer decodes is discarded.
func (s *Store) LoadSnapshot(ctx context.Context, userID string) (SnapshotRecord, bool, error) {
	rec, err := s.Snapshots.Get(ctx, userID)
	switch {
	case err == nil:
		return *rec, true, nil
	case errors.Is(err, ErrNotFound):
		return SnapshotRecord{}, false, nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("discarding unreadable snapshot", "user_id", userID, "error", err)
		if err := s.Snapshots.Delete(ctx, userID); err != nil {
			return SnapshotRecord{}, false, err
		}
		return SnapshotRecord{}, false, nil
	default:
		return SnapshotRecord{}, false, err
	}
}
