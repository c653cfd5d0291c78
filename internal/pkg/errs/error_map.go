/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, WebSocket notices and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 11xx: Relay Protocol Errors
	ErrMalformedControl: {Code: ErrMalformedControl, Message: "Invalid authentication type", Status: http.StatusBadRequest},
	ErrMalformedMessage: {Code: ErrMalformedMessage, Message: "Invalid message", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrAuthConflict: {Code: ErrAuthConflict, Message: "Username already exists", Status: http.StatusConflict},
	ErrAuthRejected: {Code: ErrAuthRejected, Message: "Authentication failed", Status: http.StatusUnauthorized},
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:          {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrTransportFailure: {Code: ErrTransportFailure, Message: "Connection lost.", Status: http.StatusInternalServerError},
}
