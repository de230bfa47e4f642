package storage

import (
	"context"

	"solana-trade-engine/internal/domain"
)

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TradeRecord, error)

	// GetByAccount retrieves the most recent trades of an account, newest
	// first. limit <= 0 returns all.
	GetByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error)

	// GetByRef retrieves all trades produced by one order, target or trigger,
	// ordered by timestamp ASC.
	GetByRef(ctx context.Context, accountID, refID string) ([]*domain.TradeRecord, error)
}

// PriceObservationStore provides access to price_observations storage.
type PriceObservationStore interface {
	// InsertBulk adds multiple observations. Fails entire batch on duplicate (mint, timestamp_ms).
	InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error

	// GetByMint retrieves all observations for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.PriceObservation, error)

	// GetByTimeRange retrieves observations for a mint within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceObservation, error)
}
