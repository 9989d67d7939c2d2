package main

import (
	"errors"
	"net/http"

	"paykit/internal/payments"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("conflict response", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusConflict, err.Error())
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.logger.Warnw("forbidden", "method", r.Method, "path", r.URL.Path)

	writeJSONError(w, http.StatusForbidden, "forbidden")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)

	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// paymentErrorResponse maps errors coming out of the payments service to
// HTTP statuses.
func (app *application) paymentErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var gatewayErr *payments.PaymentError

	switch {
	case errors.Is(err, payments.ErrNotFound):
		app.notFoundResponse(w, r, err)
	case errors.Is(err, payments.ErrInvalidStatus), errors.Is(err, payments.ErrAlreadyProcessing):
		app.conflictResponse(w, r, err)
	case errors.Is(err, payments.ErrVariantNotFound),
		errors.Is(err, payments.ErrInvalidFraudStatus),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrCaptureExceedsTotal),
		errors.Is(err, payments.ErrRefundExceedsCaptured):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, payments.ErrNotSupported):
		app.logger.Warnw("not supported", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &gatewayErr):
		app.logger.Errorw("gateway error", "method", r.Method, "path", r.URL.Path,
			"code", gatewayErr.Code, "gateway_message", gatewayErr.GatewayMessage)
		writeJSONError(w, http.StatusBadGateway, gatewayErr.Message)
	default:
		app.internalServerError(w, r, err)
	}
}
