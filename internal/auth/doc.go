// Package auth mints and verifies the bearer tokens that guard the relay
// control API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. The server and
// the CLI share the secret: the CLI mints a short-lived token per request
// and the server verifies signature, expiry and issuer. Nothing is stored,
// so revocation means rotating the secret.
package auth
