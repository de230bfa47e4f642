package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore on SQLite.
// Timestamps are stored as unix milliseconds.
type TradeRecordStore struct {
	db *DB
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(db *DB) *TradeRecordStore {
	return &TradeRecordStore{db: db}
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const insertTradeRecordSQL = `
	INSERT INTO trade_records (
		id, account_id, source, ref_id,
		action, input_mint, output_mint, amount_in, amount_out, sol_amount,
		signature, status, error, timestamp_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectTradeRecordSQL = `
	SELECT
		id, account_id, source, ref_id,
		action, input_mint, output_mint, amount_in, amount_out, sol_amount,
		signature, status, error, timestamp_ms
	FROM trade_records
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, t *domain.TradeRecord) error {
	_, err := db.ExecContext(ctx, insertTradeRecordSQL,
		t.ID, t.AccountID, string(t.Source), t.RefID,
		string(t.Action), t.InputMint, t.OutputMint, int64(t.AmountIn), int64(t.AmountOut), t.SolAmount,
		t.Signature, string(t.Status), t.Error, t.Timestamp.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	return insert(ctx, s.db, t)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range trades {
		if err := insert(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, selectTradeRecordSQL+` WHERE id = ?`, id)
	t, err := scanTradeRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByAccount retrieves the most recent trades of an account, newest first.
func (s *TradeRecordStore) GetByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error) {
	query := selectTradeRecordSQL + ` WHERE account_id = ? ORDER BY timestamp_ms DESC, id ASC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trade records by account: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetByRef retrieves all trades of one order, target or trigger, oldest first.
func (s *TradeRecordStore) GetByRef(ctx context.Context, accountID, refID string) ([]*domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		selectTradeRecordSQL+` WHERE account_id = ? AND ref_id = ? ORDER BY timestamp_ms ASC, id ASC`,
		accountID, refID,
	)
	if err != nil {
		return nil, fmt.Errorf("get trade records by ref: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTradeRecord(row scanner) (*domain.TradeRecord, error) {
	var (
		t                   domain.TradeRecord
		source, action      string
		status              string
		amountIn, amountOut int64
		timestampMs         int64
	)

	err := row.Scan(
		&t.ID, &t.AccountID, &source, &t.RefID,
		&action, &t.InputMint, &t.OutputMint, &amountIn, &amountOut, &t.SolAmount,
		&t.Signature, &status, &t.Error, &timestampMs,
	)
	if err != nil {
		return nil, err
	}

	t.Source = domain.Source(source)
	t.Action = domain.Action(action)
	t.Status = domain.TradeStatus(status)
	t.AmountIn = uint64(amountIn)
	t.AmountOut = uint64(amountOut)
	t.Timestamp = time.UnixMilli(timestampMs).UTC()
	return &t, nil
}

func scanTradeRecords(rows *sql.Rows) ([]*domain.TradeRecord, error) {
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
