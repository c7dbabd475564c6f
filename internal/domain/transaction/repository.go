package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a transaction does not exist.
var ErrNotFound = errors.New("transaction not found")

// Querier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository handles database operations for transactions and their
// categorization history.
type Repository struct {
	db Querier
}

// NewRepository creates a transaction repository.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const transactionColumns = `
	id, user_id, file_id, date, description, amount, type, account_code,
	confidence, is_recurring, tags, notes, created_at, updated_at
`

// Create inserts a transaction. A zero ID is assigned; timestamps are set
// by the database.
func (r *Repository) Create(ctx context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.AccountCode == "" {
		tx.AccountCode = "000"
	}
	if tx.Tags == nil {
		tx.Tags = []string{}
	}

	query := `
		INSERT INTO transactions (id, user_id, file_id, date, description, amount, type, account_code, confidence, is_recurring, tags, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		tx.ID,
		tx.UserID,
		tx.FileID,
		tx.Date,
		tx.Description,
		tx.Amount,
		string(tx.Type),
		tx.AccountCode,
		tx.Confidence,
		tx.IsRecurring,
		tx.Tags,
		tx.Notes,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

// UpdateCategory sets a transaction's active account code and confidence.
func (r *Repository) UpdateCategory(ctx context.Context, id uuid.UUID, accountCode string, confidence float64) error {
	query := `
		UPDATE transactions
		SET account_code = $2, confidence = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, accountCode, confidence)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a single transaction.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListByUser fetches a user's transactions, newest first, optionally
// bounded to a date range.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, from, to *time.Time, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date DESC, created_at DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// Delete removes a transaction; categorization history cascades.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendCategorization records one categorization decision. History is
// append-only; rows are never updated.
func (r *Repository) AppendCategorization(ctx context.Context, c *Categorization) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Confidence = ClampConfidence(c.Confidence)

	query := `
		INSERT INTO transaction_categorizations (id, transaction_id, category_code, confidence, source, reasoning)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return r.db.QueryRow(ctx, query,
		c.ID,
		c.TransactionID,
		c.CategoryCode,
		c.Confidence,
		string(c.Source),
		c.Reasoning,
	).Scan(&c.CreatedAt)
}

// ListCategorizations returns a transaction's categorization history,
// newest first.
func (r *Repository) ListCategorizations(ctx context.Context, transactionID uuid.UUID) ([]Categorization, error) {
	query := `
		SELECT id, transaction_id, category_code, confidence, source, reasoning, created_at
		FROM transaction_categorizations
		WHERE transaction_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categorizations: %w", err)
	}
	defer rows.Close()

	var history []Categorization
	for rows.Next() {
		var c Categorization
		var source string
		if err := rows.Scan(&c.ID, &c.TransactionID, &c.CategoryCode, &c.Confidence, &source, &c.Reasoning, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan categorization: %w", err)
		}
		c.Source = Source(source)
		history = append(history, c)
	}
	return history, rows.Err()
}

// CreateBatch inserts transactions one statement at a time inside a single
// database transaction, aborting on the first error. The ingestion
// pipeline deliberately does NOT use this path: it persists record by
// record so one bad row cannot roll back its siblings. This all-or-nothing
// variant exists for callers that need atomic imports.
func (r *Repository) CreateBatch(ctx context.Context, txs []*Transaction) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch insert: %w", err)
	}
	defer dbTx.Rollback(ctx)

	query := `
		INSERT INTO transactions (id, user_id, file_id, date, description, amount, type, account_code, confidence, is_recurring, tags, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for _, tx := range txs {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		if tx.AccountCode == "" {
			tx.AccountCode = "000"
		}
		if tx.Tags == nil {
			tx.Tags = []string{}
		}
		if _, err := dbTx.Exec(ctx, query,
			tx.ID, tx.UserID, tx.FileID, tx.Date, tx.Description, tx.Amount,
			string(tx.Type), tx.AccountCode, tx.Confidence, tx.IsRecurring, tx.Tags, tx.Notes,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
	}

	return dbTx.Commit(ctx)
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var tx Transaction
	var txType string
	if err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.FileID,
		&tx.Date,
		&tx.Description,
		&tx.Amount,
		&txType,
		&tx.AccountCode,
		&tx.Confidence,
		&tx.IsRecurring,
		&tx.Tags,
		&tx.Notes,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Type = TxType(txType)
	return &tx, nil
}
