package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paykit/internal/domain/paymentsrepo"
	"paykit/internal/params"
	"paykit/internal/payments"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// paymentLogReader is set only when payments are kept in Postgres.
type paymentLogReader interface {
	ListByPayment(ctx context.Context, paymentID int64) ([]*paymentsrepo.PaymentLog, error)
}

type CapturePaymentPayload struct {
	Amount *decimal.Decimal `json:"amount"`
	// Final defaults to true.
	Final *bool `json:"final"`
}

type RefundPaymentPayload struct {
	Amount *decimal.Decimal `json:"amount"`
}

type FraudStatusPayload struct {
	Status  string `json:"status" validate:"required,oneof=unknown accept reject review"`
	Message string `json:"message" validate:"max=255"`
}

// readOptionalJSON is readJSON that accepts an empty body.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, data any) error {
	if err := readJSON(w, r, data); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (app *application) loadPayment(w http.ResponseWriter, r *http.Request) (*payments.Payment, bool) {
	p, err := app.service.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return nil, false
	}
	return p, true
}

// AdminListPaymentsHandler godoc
//
//	@Summary		List payments (merchant)
//	@Description	Returns a paginated list of payments. Optional filters: status, variant, since.
//	@Tags			admin-payments
//	@Produce		json
//	@Param			status	query		string			false	"waiting|preauth|confirmed|rejected|refunded|error|input"
//	@Param			variant	query		string			false	"Provider variant"
//	@Param			since	query		string			false	"RFC3339 timestamp or YYYY-MM-DD"
//	@Param			page	query		int				false	"Page number (default: 1)"
//	@Param			limit	query		int				false	"Items per page (default 20, max 100)"
//	@Success		200		{object}	map[string]any	"Envelope: { data: { payments, pagination } }"
//	@Failure		400		{object}	error
//	@Failure		401		{object}	error
//	@Failure		403		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/payments [get]
func (app *application) adminListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	// Keep handler snappy and consistent
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()

	status := payments.Status(strings.TrimSpace(q.Get("status")))
	if status != "" && !status.Valid() {
		app.badRequestResponse(w, r, fmt.Errorf("invalid status %q", status))
		return
	}

	since, err := params.ParseSince(q)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	pg := params.ParsePagination(q)

	list, total, err := app.service.List(ctx, payments.ListFilter{
		Status:  status,
		Variant: strings.TrimSpace(q.Get("variant")),
		Since:   since,
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pg.ComputeMeta(total)

	if list == nil {
		list = []*payments.Payment{}
	}
	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"payments":   list,
		"pagination": pg,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminCapturePaymentHandler godoc
//
//	@Summary		Capture a pre-authorized payment
//	@Description	Captures amount (default: the uncaptured rest of the total). final=false keeps the payment in preauth.
//	@Tags			admin-payments
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string					true	"Payment token"
//	@Param			payload	body		CapturePaymentPayload	false	"Capture options"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	error
//	@Failure		409		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/payments/{token}/capture [post]
func (app *application) adminCapturePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload CapturePaymentPayload
	if err := readOptionalJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, ok := app.loadPayment(w, r)
	if !ok {
		return
	}

	final := payload.Final == nil || *payload.Final
	captured, err := app.service.Capture(r.Context(), p, payload.Amount, final)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"payment":  app.paymentResponse(p),
		"captured": captured,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminReleasePaymentHandler godoc
//
//	@Summary	Release a pre-authorization
//	@Tags		admin-payments
//	@Produce	json
//	@Param		token	path		string	true	"Payment token"
//	@Success	200		{object}	PaymentResponse
//	@Failure	409		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/admin/payments/{token}/release [post]
func (app *application) adminReleasePaymentHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := app.loadPayment(w, r)
	if !ok {
		return
	}

	if err := app.service.Release(r.Context(), p); err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, app.paymentResponse(p)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminRefundPaymentHandler godoc
//
//	@Summary		Refund a confirmed payment
//	@Description	Refunds amount (default: everything captured).
//	@Tags			admin-payments
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string					true	"Payment token"
//	@Param			payload	body		RefundPaymentPayload	false	"Refund options"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	error
//	@Failure		409		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/payments/{token}/refund [post]
func (app *application) adminRefundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload RefundPaymentPayload
	if err := readOptionalJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, ok := app.loadPayment(w, r)
	if !ok {
		return
	}

	refunded, err := app.service.Refund(r.Context(), p, payload.Amount)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"payment":  app.paymentResponse(p),
		"refunded": refunded,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminFraudStatusHandler godoc
//
//	@Summary	Set the fraud verdict of a payment
//	@Tags		admin-payments
//	@Accept		json
//	@Produce	json
//	@Param		token	path		string				true	"Payment token"
//	@Param		payload	body		FraudStatusPayload	true	"Verdict"
//	@Success	200		{object}	PaymentResponse
//	@Failure	400		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/admin/payments/{token}/fraud-status [put]
func (app *application) adminFraudStatusHandler(w http.ResponseWriter, r *http.Request) {
	var payload FraudStatusPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, ok := app.loadPayment(w, r)
	if !ok {
		return
	}

	err := app.service.ChangeFraudStatus(r.Context(), p, payments.FraudStatus(payload.Status), payload.Message, true)
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, app.paymentResponse(p)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminPaymentLogsHandler godoc
//
//	@Summary		Gateway traffic of a payment
//	@Description	Requests, redirects, callbacks and errors recorded for the payment, oldest first.
//	@Tags			admin-payments
//	@Produce		json
//	@Param			token	path		string	true	"Payment token"
//	@Success		200		{array}		paymentsrepo.PaymentLog
//	@Failure		404		{object}	error
//	@Failure		501		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/payments/{token}/logs [get]
func (app *application) adminPaymentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if app.paymentLogs == nil {
		writeJSONError(w, http.StatusNotImplemented, "payment logs are not stored")
		return
	}

	p, ok := app.loadPayment(w, r)
	if !ok {
		return
	}

	logs, err := app.paymentLogs.ListByPayment(r.Context(), p.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*paymentsrepo.PaymentLog{}
	}

	if err := app.jsonResponse(w, http.StatusOK, logs); err != nil {
		app.internalServerError(w, r, err)
	}
}
