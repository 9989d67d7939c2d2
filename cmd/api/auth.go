package main

import (
	"net/http"

	"paykit/internal/auth"
)

type CreateTokenPayload struct {
	Merchant string `json:"merchant" validate:"required,max=100"`
}

// createTokenHandler godoc
//
//	@Summary		Issue a merchant token
//	@Description	Issues a bearer token for the admin payment endpoints. Protected by basic auth.
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateTokenPayload	true	"Merchant name"
//	@Success		201		{object}	map[string]string
//	@Failure		400		{object}	error
//	@Failure		401		{object}	error
//	@Router			/authentication/token [post]
func (app *application) createTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	token, err := app.authenticator.GenerateToken(payload.Merchant, auth.RoleMerchant)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, map[string]string{
		"access_token": token,
		"role":         auth.RoleMerchant,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
