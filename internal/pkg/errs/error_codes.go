/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 11xx: Relay Protocol Errors
const (
	// ErrMalformedControl indicates the first frame of a connection was not a valid register/login envelope.
	ErrMalformedControl = 1101

	// ErrMalformedMessage indicates an authenticated client sent a payload that is not a valid message.
	ErrMalformedMessage = 1102
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrAuthConflict indicates a registration attempt for a username that is already taken.
	ErrAuthConflict = 3101

	// ErrAuthRejected indicates the supplied credentials did not match a registered user.
	ErrAuthRejected = 3102

	// ErrUnauthorized indicates a request that requires a valid bearer token did not carry one.
	ErrUnauthorized = 3103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrTransportFailure indicates the connection broke while reading or writing.
	ErrTransportFailure = 5001
)
