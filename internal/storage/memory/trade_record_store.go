package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by ID
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeRecordStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *t
	s.data[t.ID] = &rec
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(_ context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(trades))

	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.ID] = struct{}{}
	}

	for _, t := range trades {
		rec := *t
		s.data[t.ID] = &rec
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(_ context.Context, id string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rec := *t
	return &rec, nil
}

// GetByAccount retrieves the most recent trades of an account, newest first.
func (s *TradeRecordStore) GetByAccount(_ context.Context, accountID string, limit int) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.AccountID == accountID {
			rec := *t
			result = append(result, &rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetByRef retrieves all trades for one order, target or trigger, ordered by timestamp ASC.
func (s *TradeRecordStore) GetByRef(_ context.Context, accountID, refID string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.AccountID == accountID && t.RefID == refID {
			rec := *t
			result = append(result, &rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
