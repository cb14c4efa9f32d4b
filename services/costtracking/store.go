package costtracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

// PostgresLedgerStore persists cost entries in PostgreSQL for durable
// spend history. It implements LedgerStore.
type PostgresLedgerStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresLedgerStore creates a PostgreSQL-backed ledger store
func NewPostgresLedgerStore(db *sql.DB, logger *zap.Logger) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db:     db,
		logger: logger,
	}
}

// Insert writes one cost entry to the ledger table
func (s *PostgresLedgerStore) Insert(ctx context.Context, entry models.CostEntry) error {
	query := `
		INSERT INTO cost_entries
		(id, timestamp, provider, model, request_id,
		 input_tokens, output_tokens, total_tokens,
		 input_cost, output_cost, total_cost,
		 budget_id, client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Provider, entry.Model, entry.RequestID,
		entry.InputTokens, entry.OutputTokens, entry.TotalTokens,
		entry.InputCost, entry.OutputCost, entry.TotalCost,
		nullable(entry.BudgetID), nullable(entry.ClientID))
	if err != nil {
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}

	return nil
}

// EntriesSince returns a budget's entries newer than the cutoff, oldest
// first
func (s *PostgresLedgerStore) EntriesSince(ctx context.Context, budgetID string, since time.Time) ([]models.CostEntry, error) {
	query := `
		SELECT id, timestamp, provider, model, request_id,
		       input_tokens, output_tokens, total_tokens,
		       input_cost, output_cost, total_cost,
		       COALESCE(budget_id, ''), COALESCE(client_id, '')
		FROM cost_entries
		WHERE budget_id = $1
		  AND timestamp > $2
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, budgetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.CostEntry, 0)
	for rows.Next() {
		var e models.CostEntry
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Provider, &e.Model, &e.RequestID,
			&e.InputTokens, &e.OutputTokens, &e.TotalTokens,
			&e.InputCost, &e.OutputCost, &e.TotalCost,
			&e.BudgetID, &e.ClientID); err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// CleanupOld removes entries older than the retention window to keep the
// table size manageable
func (s *PostgresLedgerStore) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM cost_entries
		WHERE timestamp < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old cost entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up old cost entries",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff", cutoff))

	return rowsAffected, nil
}

// nullable maps an empty string to SQL NULL
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
