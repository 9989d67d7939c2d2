package paymentsrepo

import (
	"encoding/json"
	"time"
)

type PaymentLog struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	LogType   string          `json:"log_type"` // request, redirect, callback, error
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const paymentColumns = `
	id, variant, status, fraud_status, fraud_message, transaction_id, currency,
	total, delivery, tax, captured_amount, description, billing_email,
	customer_ip_address, billing_first_name, billing_last_name, billing_address_1,
	billing_address_2, billing_city, billing_postcode, billing_country_code,
	billing_country_area, extra_data, message, token, created_at, updated_at`

// Schema creates the tables the repositories expect. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                   BIGSERIAL PRIMARY KEY,
	variant              TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'waiting',
	fraud_status         TEXT NOT NULL DEFAULT 'unknown',
	fraud_message        TEXT NOT NULL DEFAULT '',
	transaction_id       TEXT NOT NULL DEFAULT '',
	currency             VARCHAR(10) NOT NULL,
	total                NUMERIC(9,2) NOT NULL DEFAULT 0,
	delivery             NUMERIC(9,2) NOT NULL DEFAULT 0,
	tax                  NUMERIC(9,2) NOT NULL DEFAULT 0,
	captured_amount      NUMERIC(9,2) NOT NULL DEFAULT 0,
	description          TEXT NOT NULL DEFAULT '',
	billing_email        TEXT NOT NULL DEFAULT '',
	customer_ip_address  TEXT NOT NULL DEFAULT '',
	billing_first_name   TEXT NOT NULL DEFAULT '',
	billing_last_name    TEXT NOT NULL DEFAULT '',
	billing_address_1    TEXT NOT NULL DEFAULT '',
	billing_address_2    TEXT NOT NULL DEFAULT '',
	billing_city         TEXT NOT NULL DEFAULT '',
	billing_postcode     TEXT NOT NULL DEFAULT '',
	billing_country_code TEXT NOT NULL DEFAULT '',
	billing_country_area TEXT NOT NULL DEFAULT '',
	extra_data           TEXT NOT NULL DEFAULT '',
	message              TEXT NOT NULL DEFAULT '',
	token                VARCHAR(36) NOT NULL UNIQUE,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status, created_at DESC);

CREATE TABLE IF NOT EXISTS payment_logs (
	id         BIGSERIAL PRIMARY KEY,
	payment_id BIGINT NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
	log_type   TEXT NOT NULL,
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
