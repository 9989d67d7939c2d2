package paymentsrepo

import (
	"context"
	"errors"
	"fmt"

	"paykit/internal/infra/dbx"
	"paykit/internal/payments"

	"github.com/jackc/pgx/v5"
)

// Repository is the Postgres payments.Store.
type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func scanPayment(row pgx.Row, extra ...any) (*payments.Payment, error) {
	var p payments.Payment
	dest := []any{
		&p.ID, &p.Variant, &p.Status, &p.FraudStatus, &p.FraudMessage, &p.TransactionID, &p.Currency,
		&p.Total, &p.Delivery, &p.Tax, &p.CapturedAmount, &p.Description, &p.BillingEmail,
		&p.CustomerIPAddress, &p.Billing.FirstName, &p.Billing.LastName, &p.Billing.Address1,
		&p.Billing.Address2, &p.Billing.City, &p.Billing.Postcode, &p.Billing.CountryCode,
		&p.Billing.CountryArea, &p.ExtraData, &p.Message, &p.Token, &p.Created, &p.Modified,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *payments.Payment) error {
	if err := r.q.QueryRow(ctx, `
		INSERT INTO payments (
			variant, status, fraud_status, fraud_message, transaction_id, currency,
			total, delivery, tax, captured_amount, description, billing_email,
			customer_ip_address, billing_first_name, billing_last_name, billing_address_1,
			billing_address_2, billing_city, billing_postcode, billing_country_code,
			billing_country_area, extra_data, message, token
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING id, created_at, updated_at
	`,
		p.Variant, p.Status, p.FraudStatus, p.FraudMessage, p.TransactionID, p.Currency,
		p.Total, p.Delivery, p.Tax, p.CapturedAmount, p.Description, p.BillingEmail,
		p.CustomerIPAddress, p.Billing.FirstName, p.Billing.LastName, p.Billing.Address1,
		p.Billing.Address2, p.Billing.City, p.Billing.Postcode, p.Billing.CountryCode,
		p.Billing.CountryArea, p.ExtraData, p.Message, p.Token,
	).Scan(&p.ID, &p.Created, &p.Modified); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, p *payments.Payment) error {
	err := r.q.QueryRow(ctx, `
		UPDATE payments SET
			variant=$2, status=$3, fraud_status=$4, fraud_message=$5, transaction_id=$6, currency=$7,
			total=$8, delivery=$9, tax=$10, captured_amount=$11, description=$12, billing_email=$13,
			customer_ip_address=$14, billing_first_name=$15, billing_last_name=$16, billing_address_1=$17,
			billing_address_2=$18, billing_city=$19, billing_postcode=$20, billing_country_code=$21,
			billing_country_area=$22, extra_data=$23, message=$24, token=$25, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`,
		p.ID, p.Variant, p.Status, p.FraudStatus, p.FraudMessage, p.TransactionID, p.Currency,
		p.Total, p.Delivery, p.Tax, p.CapturedAmount, p.Description, p.BillingEmail,
		p.CustomerIPAddress, p.Billing.FirstName, p.Billing.LastName, p.Billing.Address1,
		p.Billing.Address2, p.Billing.City, p.Billing.Postcode, p.Billing.CountryCode,
		p.Billing.CountryArea, p.ExtraData, p.Message, p.Token,
	).Scan(&p.Modified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payments.ErrNotFound
		}
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*payments.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByToken(ctx context.Context, token string) (*payments.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE token=$1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrNotFound
		}
		return nil, fmt.Errorf("get payment by token: %w", err)
	}
	return p, nil
}

func (r *Repository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE token=$1)`, token).
		Scan(&exists); err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return exists, nil
}

// List returns payments matching f, newest first, and the total number of
// matches for pagination.
func (r *Repository) List(ctx context.Context, f payments.ListFilter) ([]*payments.Payment, int, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT `+paymentColumns+`,
  COUNT(*) OVER() AS total_count
FROM payments
WHERE
  ($1 = '' OR status = $1)
  AND ($2 = '' OR variant = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`,
		string(f.Status),
		f.Variant,
		f.Since, // nil is okay: $3 becomes NULL
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var (
		out   []*payments.Payment
		total int
	)
	for rows.Next() {
		var t int
		p, err := scanPayment(rows, &t)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, q dbx.Querier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate payments schema: %w", err)
	}
	return nil
}
