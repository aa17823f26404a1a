package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/db"
)

// CoinTransactionRepository reads and writes the coin ledger.
type CoinTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewCoinTransactionRepository creates a new CoinTransactionRepository instance.
func NewCoinTransactionRepository(pool *pgxpool.Pool) *CoinTransactionRepository {
	return &CoinTransactionRepository{pool: pool}
}

func insertCoinTransaction(ctx context.Context, q db.Querier, userID string, amount int64, txType string, description *string) (*model.CoinTransaction, error) {
	const query = `
		INSERT INTO coin_transactions (id, user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, user_id, amount, type, description, created_at
	`

	var tx model.CoinTransaction
	err := q.QueryRow(ctx, query, uuid.NewString(), userID, amount, txType, description).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coin transaction: %w", err)
	}
	return &tx, nil
}

// Create records a ledger entry without touching the user's coin total.
func (r *CoinTransactionRepository) Create(ctx context.Context, userID string, amount int64, txType string, description *string) (*model.CoinTransaction, error) {
	return insertCoinTransaction(ctx, r.pool, userID, amount, txType, description)
}

// GetByUserID returns the user's ledger entries, newest first.
func (r *CoinTransactionRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

// GetByUserIDAndType returns the user's ledger entries of one type, newest first.
func (r *CoinTransactionRepository) GetByUserIDAndType(ctx context.Context, userID, txType string, limit int) ([]*model.CoinTransaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM coin_transactions
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC, id
		LIMIT $3
	`
	return r.list(ctx, query, userID, txType, limit)
}

func (r *CoinTransactionRepository) list(ctx context.Context, query string, args ...any) ([]*model.CoinTransaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get coin transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.CoinTransaction
	for rows.Next() {
		var tx model.CoinTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin transactions: %w", err)
	}
	return txs, nil
}
