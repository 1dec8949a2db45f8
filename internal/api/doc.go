// Package api implements the HTTP REST API and WebSocket server for the
// relay operator.
//
// This package provides:
//   - REST endpoints for relay start, stop, status, config and health
//   - Event history queries backed by the operator database
//   - WebSocket hub with relay.status (changes, polls) and relay.events channels
//   - Bearer token authentication when security.jwt.secret is set
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server owns no relay state. Every relay operation is delegated to a
// RelayController (normally *relay.Launcher), so the same launcher can be
// driven from HTTP, MQTT commands and the CLI. Status changes reach
// WebSocket clients through the Hub, which is registered as a launcher
// observer, and through a periodic status poll while clients are connected.
//
// # Security
//
// With an empty JWT secret the API is open and should only listen on
// loopback. With a secret, every /api/v1/relay route and the WebSocket
// endpoint require an HS256 token minted by the auth package. Browsers
// cannot set headers on WebSocket upgrades, so /api/v1/ws also accepts
// the token in the "token" query parameter.
package api
