package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/pkg/utils"

	"go.uber.org/zap"
)

const storeKeyHistory = "history"

// HistoryService keeps the persistent list of known peers. The camera
// remembers the viewers that connected; the viewer remembers cameras,
// including their pairing token so a remembered camera can be re-dialed
// without re-scanning.
//
// Entries are merged by peer ID. Reconnects inside the merge window
// collapse into a single log timestamp, so a flapping link does not
// flood the log.
type HistoryService struct {
	store      ports.DeviceStore
	maxEntries int
	log        *zap.SugaredLogger

	mu sync.Mutex
}

func NewHistoryService(store ports.DeviceStore, maxEntries int, log *zap.SugaredLogger) *HistoryService {
	return &HistoryService{
		store:      store,
		maxEntries: maxEntries,
		log:        log,
	}
}

// Record notes a connection from (or to) a peer. token is empty on the
// camera side.
func (s *HistoryService) Record(ctx context.Context, peerID domain.DeviceID, displayName, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}

	now := utils.Now()
	idx := -1
	for i := range entries {
		if entries[i].PeerID == peerID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		entry := entries[idx]
		entry.DisplayName = displayName
		entry.LastConnectedAt = now
		if token != "" {
			entry.Token = token
		}
		// Collapse reconnects within the merge window into one log line.
		if len(entry.ConnectionLog) == 0 || now.Sub(entry.ConnectionLog[0]) > domain.HistoryMergeWindow {
			entry.ConnectionLog = append([]time.Time{now}, entry.ConnectionLog...)
			if len(entry.ConnectionLog) > domain.HistoryMaxLogs {
				entry.ConnectionLog = entry.ConnectionLog[:domain.HistoryMaxLogs]
			}
		}
		// Move to front.
		entries = append(entries[:idx], entries[idx+1:]...)
		entries = append([]domain.HistoryEntry{entry}, entries...)
	} else {
		entry := domain.HistoryEntry{
			PeerID:          peerID,
			DisplayName:     displayName,
			LastConnectedAt: now,
			ConnectionLog:   []time.Time{now},
			Token:           token,
		}
		entries = append([]domain.HistoryEntry{entry}, entries...)
		if len(entries) > s.maxEntries {
			entries = entries[:s.maxEntries]
		}
	}

	return s.save(ctx, entries)
}

// List returns the known peers, most recent first.
func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Delete forgets one peer.
func (s *HistoryService) Delete(ctx context.Context, peerID domain.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].PeerID == peerID {
			entries = append(entries[:i], entries[i+1:]...)
			return s.save(ctx, entries)
		}
	}
	return domain.ErrEntryNotFound
}

// Clear forgets every peer.
func (s *HistoryService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, storeKeyHistory)
}

func (s *HistoryService) load(ctx context.Context) ([]domain.HistoryEntry, error) {
	raw, ok, err := s.store.Get(ctx, storeKeyHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

func (s *HistoryService) save(ctx context.Context, entries []domain.HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.store.Set(ctx, storeKeyHistory, data); err != nil {
		return fmt.Errorf("failed to persist history: %w", err)
	}
	return nil
}
