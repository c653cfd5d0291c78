package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of the bearer tokens issued by the HTTP API.
type Payload struct {
	// StandardClaims carries expiry, issue time, issuer and token id.
	jwt.StandardClaims

	// Username is the authenticated identity the token was issued for.
	Username string `json:"username"`
}
