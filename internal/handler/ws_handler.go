/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
upgrading the HTTP connection to WebSocket, and handing it to the relay server.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"textrelay/internal/app/chat"
	"textrelay/internal/pkg/errs"
	"textrelay/internal/pkg/limiter"
	"textrelay/internal/pkg/logx"
	"textrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Authentication happens in-band, so no credentials are read from the request itself.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(limiter.ClientIP(r)))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response.
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error())
			return
		}

		if err := deps.Server.Serve(r.Context(), conn, r.RemoteAddr); err != nil {
			if errors.Is(err, chat.ErrServerClosed) {
				logx.Info("WebSocket connection refused: server is shutting down.")
				return
			}
			logx.Error(err, "WebSocket session ended with an error")
		}
	}
}
