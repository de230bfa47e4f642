package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const insertTradeRecordSQL = `
	INSERT INTO trade_records (
		id, account_id, source, ref_id,
		action, input_mint, output_mint, amount_in, amount_out, sol_amount,
		signature, status, error, timestamp
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14
	)
`

const selectTradeRecordSQL = `
	SELECT
		id, account_id, source, ref_id,
		action, input_mint, output_mint, amount_in, amount_out, sol_amount,
		signature, status, error, timestamp
	FROM trade_records
`

func tradeRecordArgs(t *domain.TradeRecord) []any {
	return []any{
		t.ID, t.AccountID, string(t.Source), t.RefID,
		string(t.Action), t.InputMint, t.OutputMint, int64(t.AmountIn), int64(t.AmountOut), t.SolAmount,
		t.Signature, string(t.Status), t.Error, t.Timestamp.UTC(),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeRecordSQL, tradeRecordArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		_, err := tx.Exec(ctx, insertTradeRecordSQL, tradeRecordArgs(t)...)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, selectTradeRecordSQL+` WHERE id = $1`, id)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByAccount retrieves the most recent trades of an account, newest first.
func (s *TradeRecordStore) GetByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error) {
	query := selectTradeRecordSQL + `
		WHERE account_id = $1
		ORDER BY timestamp DESC, id ASC
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trade records by account: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetByRef retrieves all trades of one order, target or trigger, oldest first.
func (s *TradeRecordStore) GetByRef(ctx context.Context, accountID, refID string) ([]*domain.TradeRecord, error) {
	query := selectTradeRecordSQL + `
		WHERE account_id = $1 AND ref_id = $2
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, accountID, refID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by ref: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		t                   domain.TradeRecord
		source, action      string
		status              string
		amountIn, amountOut int64
	)

	err := row.Scan(
		&t.ID, &t.AccountID, &source, &t.RefID,
		&action, &t.InputMint, &t.OutputMint, &amountIn, &amountOut, &t.SolAmount,
		&t.Signature, &status, &t.Error, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	t.Source = domain.Source(source)
	t.Action = domain.Action(action)
	t.Status = domain.TradeStatus(status)
	t.AmountIn = uint64(amountIn)
	t.AmountOut = uint64(amountOut)
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
