package paymentsrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"paykit/internal/infra/dbx"
)

type LogsRepository struct{ q dbx.Querier }

func NewLogsRepository(q dbx.Querier) *LogsRepository {
	return &LogsRepository{q: q}
}

func (r *LogsRepository) InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error {
	var jb []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			jb = b
		}
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO payment_logs (payment_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, paymentID, logType, jb)
	if err != nil {
		return fmt.Errorf("insert payment_log: %w", err)
	}
	return nil
}

// ListByPayment returns the audit trail of a payment, oldest first.
func (r *LogsRepository) ListByPayment(ctx context.Context, paymentID int64) ([]*PaymentLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, payment_id, log_type, payload, created_at
		FROM payment_logs WHERE payment_id=$1 ORDER BY id ASC
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment_logs: %w", err)
	}
	defer rows.Close()

	var out []*PaymentLog
	for rows.Next() {
		var l PaymentLog
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.LogType, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment_log: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
