package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// PriceObservationStore is an in-memory implementation of storage.PriceObservationStore.
type PriceObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceObservation // keyed by (mint, timestamp_ms)
}

// NewPriceObservationStore creates a new in-memory price observation store.
func NewPriceObservationStore() *PriceObservationStore {
	return &PriceObservationStore{
		data: make(map[string]*domain.PriceObservation),
	}
}

func observationKey(mint string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", mint, timestampMs)
}

// InsertBulk adds multiple observations. Fails entire batch on duplicate.
func (s *PriceObservationStore) InsertBulk(_ context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		if o == nil || o.Mint == "" {
			return storage.ErrInvalidInput
		}
		key := observationKey(o.Mint, o.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, o := range obs {
		obsCopy := *o
		s.data[observationKey(o.Mint, o.TimestampMs)] = &obsCopy
	}

	return nil
}

// GetByMint retrieves all observations for a mint, ordered by timestamp ASC.
func (s *PriceObservationStore) GetByMint(_ context.Context, mint string) ([]*domain.PriceObservation, error) {
	return s.filter(mint, func(*domain.PriceObservation) bool { return true }), nil
}

// GetByTimeRange retrieves observations for a mint within [start, end] (inclusive).
func (s *PriceObservationStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PriceObservation, error) {
	return s.filter(mint, func(o *domain.PriceObservation) bool {
		return o.TimestampMs >= start && o.TimestampMs <= end
	}), nil
}

// Len returns the number of stored observations.
func (s *PriceObservationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *PriceObservationStore) filter(mint string, keep func(*domain.PriceObservation) bool) []*domain.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if o.Mint == mint && keep(o) {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result
}

var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)
