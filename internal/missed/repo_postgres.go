package missed

import (
	"context"
	"database/sql"

	"voice-relay/pkg/utils"
)

// PostgresRepo persists the ledger across restarts.
//
// Assumed schema:
//
//	CREATE TABLE missed_calls (
//	  id         UUID PRIMARY KEY,
//	  caller_id  TEXT NOT NULL,
//	  callee_id  TEXT NOT NULL,
//	  call_time  TIMESTAMPTZ NOT NULL,
//	  reason     TEXT NOT NULL CHECK (reason IN ('busy','offline','no_answer')),
//	  seen       BOOLEAN NOT NULL DEFAULT FALSE
//	);
//	CREATE INDEX missed_calls_callee_idx ON missed_calls (callee_id, call_time DESC);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO missed_calls (id, caller_id, callee_id, call_time, reason, seen)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CallerID,
		rec.CalleeID,
		rec.CallTime,
		rec.Reason,
		rec.Seen,
	)
	return err
}

func (r *PostgresRepo) ListFor(ctx context.Context, calleeID string, includeSeen bool) ([]Record, error) {
	const q = `
SELECT id, caller_id, callee_id, call_time, reason, seen
FROM missed_calls
WHERE callee_id = $1 AND (seen = FALSE OR $2)
ORDER BY call_time DESC
`
	rows, err := r.db.QueryContext(ctx, q, calleeID, includeSeen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CallerID,
			&rec.CalleeID,
			&rec.CallTime,
			&rec.Reason,
			&rec.Seen,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSeen acknowledges a record inside a transaction so a concurrent ack
// of the same id stays a clean no-op rather than a double update. The
// callee scoping means a foreign record reads as not-found.
func (r *PostgresRepo) MarkSeen(ctx context.Context, id, calleeID string) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE missed_calls SET seen = TRUE
WHERE id = $1 AND callee_id = $2 AND seen = FALSE
`
		res, err := tx.ExecContext(ctx, q, id, calleeID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// either already seen (benign) or not this callee's record
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM missed_calls WHERE id = $1 AND callee_id = $2)`, id, calleeID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
		}
		return nil
	})
}
