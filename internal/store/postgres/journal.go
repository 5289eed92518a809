package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// OrderJournal implements domain.OrderJournal on the order_journal table.
type OrderJournal struct {
	pool *pgxpool.Pool
}

// NewOrderJournal creates an OrderJournal backed by the given pool.
func NewOrderJournal(pool *pgxpool.Pool) *OrderJournal {
	return &OrderJournal{pool: pool}
}

// RecordSubmission inserts a row for a fresh submission.
func (s *OrderJournal) RecordSubmission(ctx context.Context, e domain.OrderJournalEntry) error {
	const query = `
		INSERT INTO order_journal (
			client_order_id, external_id, venue, symbol, side, kind,
			size, price, state, executed_qty, avg_price, attempts,
			submitted_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		e.ClientOrderID, e.ExternalID, e.Venue, e.Symbol,
		string(e.Side), string(e.Kind),
		e.Size, e.Price,
		string(e.State), e.ExecutedQty, e.AvgPrice, e.Attempts,
		e.SubmittedAt, e.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record submission %s: %w", e.ClientOrderID, err)
	}
	return nil
}

// RecordOutcome updates the row for clientOrderID with its terminal state.
func (s *OrderJournal) RecordOutcome(ctx context.Context, clientOrderID string, res domain.ExecutionResult) error {
	const query = `
		UPDATE order_journal
		SET external_id = $2,
		    state = $3,
		    executed_qty = $4,
		    avg_price = $5,
		    attempts = $6,
		    resolved_at = NOW(),
		    updated_at = NOW()
		WHERE client_order_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		clientOrderID,
		res.ExternalOrderID,
		string(res.FinalState),
		res.Snapshot.ExecutedQty,
		res.Snapshot.AvgPrice,
		res.Attempts,
	)
	if err != nil {
		return fmt.Errorf("postgres: record outcome %s: %w", clientOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const journalSelectCols = `client_order_id, external_id, venue, symbol, side, kind,
	size, price, state, executed_qty, avg_price, attempts,
	submitted_at, resolved_at`

// ListBefore returns entries submitted strictly before the cutoff, oldest
// first.
func (s *OrderJournal) ListBefore(ctx context.Context, before time.Time) ([]domain.OrderJournalEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM order_journal
		WHERE submitted_at < $1
		ORDER BY submitted_at ASC`, journalSelectCols)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	entries, err := scanJournalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan journal rows: %w", err)
	}
	return entries, nil
}

func scanJournalRows(rows pgx.Rows) ([]domain.OrderJournalEntry, error) {
	var entries []domain.OrderJournalEntry
	for rows.Next() {
		var e domain.OrderJournalEntry
		var side, kind, state string

		err := rows.Scan(
			&e.ClientOrderID, &e.ExternalID, &e.Venue, &e.Symbol,
			&side, &kind,
			&e.Size, &e.Price,
			&state, &e.ExecutedQty, &e.AvgPrice, &e.Attempts,
			&e.SubmittedAt, &e.ResolvedAt,
		)
		if err != nil {
			return nil, err
		}

		e.Side = domain.Side(side)
		e.Kind = domain.OrderKind(kind)
		e.State = domain.OrderState(state)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.OrderJournal = (*OrderJournal)(nil)
