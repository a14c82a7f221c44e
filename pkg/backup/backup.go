package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Snapshot is the serialized state of a device: its pairing identity
// and connection history. Restoring it onto a fresh install brings the
// device back without re-pairing every viewer.
type Snapshot struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Entries   map[string]json.RawMessage `json:"entries"`
}

// Storage defines where snapshots are kept
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Service writes and restores snapshots
type Service struct {
	storage Storage
	version string
	keep    int
}

// NewService creates a snapshot service. keep bounds how many snapshots
// are retained; older ones are pruned after each successful write.
func NewService(storage Storage, version string, keep int) *Service {
	if keep <= 0 {
		keep = 5
	}
	return &Service{
		storage: storage,
		version: version,
		keep:    keep,
	}
}

// Create writes a snapshot of the given entries and prunes old ones
func (s *Service) Create(ctx context.Context, entries map[string]json.RawMessage) (string, error) {
	snap := Snapshot{
		Version:   s.version,
		Timestamp: time.Now(),
		Entries:   entries,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot-%s.json", snap.Timestamp.Format("20060102-150405"))
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		return name, fmt.Errorf("snapshot saved but pruning failed: %w", err)
	}
	return name, nil
}

// Restore reads a snapshot back
func (s *Service) Restore(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// RestoreLatest restores the most recent snapshot, if any
func (s *Service) RestoreLatest(ctx context.Context) (*Snapshot, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	return s.Restore(ctx, names[len(names)-1])
}

// List returns snapshot names sorted oldest first
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, "snapshot-")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a snapshot
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

func (s *Service) prune(ctx context.Context) error {
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for len(names) > s.keep {
		if err := s.storage.Delete(ctx, names[0]); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
