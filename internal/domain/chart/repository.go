package chart

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Source supplies the full chart of accounts. The pipeline loads it once
// per run; implementations are swappable (database, static table).
type Source interface {
	GetFullChartOfAccounts(ctx context.Context) (map[string]Entry, error)
}

// Querier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository loads the chart of accounts from postgres, falling back to
// the built-in default chart when the table is empty.
type Repository struct {
	db Querier
}

// NewRepository creates a chart repository.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// GetFullChartOfAccounts implements Source.
func (r *Repository) GetFullChartOfAccounts(ctx context.Context) (map[string]Entry, error) {
	query := `
		SELECT code, account_type, parent_account, account, description
		FROM chart_of_accounts
		ORDER BY code
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart of accounts: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var parent, description *string
		if err := rows.Scan(&e.Code, &e.AccountType, &parent, &e.Account, &description); err != nil {
			return nil, fmt.Errorf("failed to scan chart entry: %w", err)
		}
		if parent != nil {
			e.ParentAccount = *parent
		}
		if description != nil {
			e.Description = *description
		}
		entries[e.Code] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chart of accounts: %w", err)
	}

	if len(entries) == 0 {
		return DefaultChart(), nil
	}
	return entries, nil
}

// StaticSource serves a fixed chart, used in tests and as the no-database
// fallback.
type StaticSource struct {
	Entries map[string]Entry
}

// GetFullChartOfAccounts implements Source.
func (s StaticSource) GetFullChartOfAccounts(context.Context) (map[string]Entry, error) {
	if len(s.Entries) == 0 {
		return DefaultChart(), nil
	}
	return s.Entries, nil
}
