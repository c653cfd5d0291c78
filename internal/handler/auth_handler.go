/*
Package handler provides HTTP handler functions for credential registration and token issuance.

Both endpoints share the credential store with the WebSocket sessions, so an account
registered over HTTP can log in over WebSocket and vice versa.
*/
package handler

import (
	"errors"
	"net/http"

	"textrelay/internal/app/user"
	"textrelay/internal/pkg/auth/jwt"
	"textrelay/internal/pkg/errs"
	"textrelay/internal/pkg/logx"
	"textrelay/internal/pkg/req"
	"textrelay/internal/pkg/resp"
)

// CredentialsInput is the body of both auth endpoints.
type CredentialsInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

// HandleRegister creates a new account in the credential store.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		err := deps.Server.Credentials().Register(r.Context(), input.Username, input.Password)
		if err != nil {
			if errors.Is(err, user.ErrAlreadyExists) {
				logx.Warn("registration conflict: username already exists", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrAuthConflict))
				return
			}

			logx.Error(err, "failed to register user", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondStatus(w, r, http.StatusCreated, map[string]any{
			"username": input.Username,
		})
	}
}

// HandleToken verifies credentials and issues a JWT for the HTTP API.
func HandleToken(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ok, err := deps.Server.Credentials().Authenticate(r.Context(), input.Username, input.Password)
		if err != nil {
			logx.Error(err, "token: credential lookup failed", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if !ok {
			logx.Warn("token: invalid credentials", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrAuthRejected))
			return
		}

		token, err := jwt.GenerateToken(input.Username, deps.Config.JWTSecret, jwt.SessionTokenExpiration)
		if err != nil {
			logx.Error(err, "token: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":     token,
			"expiresIn": int(jwt.SessionTokenExpiration.Seconds()),
		})
	}
}
