package handler

import (
	"net/http"

	"textrelay/internal/pkg/auth/jwt"
	"textrelay/internal/pkg/errs"
	"textrelay/internal/pkg/resp"
)

// HandleHistory returns the messages accepted so far, oldest first.
func HandleHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": deps.Server.History(),
		})
	}
}
