package clickhouse

import (
	"context"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// PriceObservationStore implements storage.PriceObservationStore using ClickHouse.
type PriceObservationStore struct {
	conn *Conn
}

// NewPriceObservationStore creates a new PriceObservationStore.
func NewPriceObservationStore(conn *Conn) *PriceObservationStore {
	return &PriceObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)

// InsertBulk adds multiple observations. Fails entire batch on duplicate (mint, timestamp_ms).
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *PriceObservationStore) InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	type key struct {
		mint        string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(obs))
	for _, o := range obs {
		if o == nil || o.Mint == "" {
			return storage.ErrInvalidInput
		}
		k := key{o.Mint, o.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, o := range obs {
		exists, err := s.exists(ctx, o.Mint, o.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_observations (
			mint, vs_token, timestamp_ms, price, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		err = batch.Append(o.Mint, o.VsToken, uint64(o.TimestampMs), o.Price, o.Source)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all observations for a mint, ordered by timestamp ASC.
func (s *PriceObservationStore) GetByMint(ctx context.Context, mint string) ([]*domain.PriceObservation, error) {
	query := `
		SELECT mint, vs_token, timestamp_ms, price, source
		FROM price_observations
		WHERE mint = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanPriceObservations(rows)
}

// GetByTimeRange retrieves observations for a mint within [start, end] (inclusive).
func (s *PriceObservationStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT mint, vs_token, timestamp_ms, price, source
		FROM price_observations
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceObservations(rows)
}

func (s *PriceObservationStore) exists(ctx context.Context, mint string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_observations
		WHERE mint = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, mint, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPriceObservations(rows chRows) ([]*domain.PriceObservation, error) {
	var obs []*domain.PriceObservation

	for rows.Next() {
		var o domain.PriceObservation
		var timestampMs uint64

		if err := rows.Scan(&o.Mint, &o.VsToken, &timestampMs, &o.Price, &o.Source); err != nil {
			return nil, fmt.Errorf("scan price observation row: %w", err)
		}

		o.TimestampMs = int64(timestampMs)
		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price observation rows: %w", err)
	}

	return obs, nil
}
