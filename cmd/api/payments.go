package main

import (
	"errors"
	"net"
	"net/http"
	"net/url"

	"paykit/internal/payments"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CreatePaymentPayload struct {
	Variant      string                  `json:"variant" validate:"required,max=255"`
	Currency     string                  `json:"currency" validate:"required,currency"`
	Total        decimal.Decimal         `json:"total" validate:"decimal_positive"`
	Delivery     decimal.Decimal         `json:"delivery" validate:"decimal_nonnegative"`
	Tax          decimal.Decimal         `json:"tax" validate:"decimal_nonnegative"`
	Description  string                  `json:"description" validate:"max=255"`
	BillingEmail string                  `json:"billing_email" validate:"omitempty,email"`
	Billing      payments.BillingAddress `json:"billing"`
}

type PaymentResponse struct {
	*payments.Payment
	FormURL string `json:"form_url"`
}

func (app *application) paymentResponse(p *payments.Payment) PaymentResponse {
	return PaymentResponse{Payment: p, FormURL: app.urls.FormURL(p)}
}

// createPaymentHandler godoc
//
//	@Summary		Create a payment
//	@Description	Stores a new payment in status waiting and returns its token and form URL.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreatePaymentPayload	true	"Payment"
//	@Success		201		{object}	PaymentResponse
//	@Failure		400		{object}	error
//	@Failure		500		{object}	error
//	@Router			/payments [post]
func (app *application) createPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if _, err := app.service.Registry().Provider(payload.Variant); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p := payments.NewPayment(payload.Variant, payload.Currency, payload.Total)
	p.Delivery = payload.Delivery
	p.Tax = payload.Tax
	p.Description = payload.Description
	p.BillingEmail = payload.BillingEmail
	p.Billing = payload.Billing
	p.CustomerIPAddress = clientIP(r)

	if err := app.service.Save(r.Context(), p); err != nil {
		if errors.Is(err, payments.ErrTokenSpaceExhausted) {
			// the token generator is broken; nothing this process does will work
			app.logger.Fatalw("payment token generation failed", "error", err.Error())
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, app.paymentResponse(p)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getPaymentHandler godoc
//
//	@Summary	Fetch a payment by token
//	@Tags		payments
//	@Produce	json
//	@Param		token	path		string	true	"Payment token"
//	@Success	200		{object}	PaymentResponse
//	@Failure	404		{object}	error
//	@Router		/payments/{token} [get]
func (app *application) getPaymentHandler(w http.ResponseWriter, r *http.Request) {
	p, err := app.service.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, app.paymentResponse(p)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// paymentFormHandler renders the provider form on GET and feeds submitted
// values back to the provider on POST. Providers that need the customer
// elsewhere answer with a redirect instead.
func (app *application) paymentFormHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := app.service.Get(ctx, chi.URLParam(r, "token"))
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	var data url.Values
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		data = r.PostForm
	}

	form, err := app.service.Form(ctx, p, data)
	if rn, ok := payments.AsRedirect(err); ok {
		http.Redirect(w, r, rn.URL, http.StatusFound)
		return
	}

	var gatewayErr *payments.PaymentError
	if errors.As(err, &gatewayErr) {
		app.logger.Errorw("payment form failed", "token", p.Token, "variant", p.Variant,
			"code", gatewayErr.Code, "gateway_message", gatewayErr.GatewayMessage)
		http.Redirect(w, r, app.urls.FailureURL(p), http.StatusFound)
		return
	}
	if err != nil {
		app.paymentErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := form.Render(w); err != nil {
		app.logger.Errorw("render payment form", "token", p.Token, "error", err.Error())
	}
}

// processPaymentHandler is where gateways and returning customers land.
func (app *application) processPaymentHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	err := app.service.Process(w, r, token)
	if err == nil {
		return
	}

	var gatewayErr *payments.PaymentError
	if errors.As(err, &gatewayErr) {
		app.logger.Errorw("payment processing failed", "token", token,
			"code", gatewayErr.Code, "gateway_message", gatewayErr.GatewayMessage)
		if p, getErr := app.service.Get(r.Context(), token); getErr == nil {
			http.Redirect(w, r, app.urls.FailureURL(p), http.StatusFound)
			return
		}
	}
	app.paymentErrorResponse(w, r, err)
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
