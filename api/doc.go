// Package api documents the localroute HTTP surface.
//
// localroute listens where a vendor SDK expects the vendor API and answers
// with the vendor's own request and response shapes, so clients only change
// their base URL.
//
// # Endpoints
//
// Proxied, subject to the path allow-list:
//   - POST /v1/messages          Anthropic Messages
//   - POST /v1/complete          Anthropic legacy Text Completions
//   - POST /v1/chat/completions  OpenAI Chat Completions
//   - GET  /v1/models            model list (local: the CLI alias table)
//
// Administrative, never filtered:
//   - GET /health   liveness
//   - GET /ready    CLI and ledger checks
//   - GET /version  build information
//   - GET /stats    request counters and pool statistics
//
// # Authentication
//
// The caller's vendor key is read from x-api-key, or from
// "Authorization: Bearer <key>":
//
//	x-api-key: sk-ant-api03-999999999999   # local CLI
//	x-api-key: sk-ant-api03-...            # forwarded to api.anthropic.com
//
// A key whose last "-" segment is all '9' is answered by the local CLI.
// Every other key, including a missing one, is forwarded unchanged.
//
// # Local responses
//
// Locally answered responses carry two headers:
//
//	X-Localroute-Route: local-anthropic
//	X-Localroute-Usage: estimated
//
// Usage counts on local responses are word-based estimates.
//
// # Base URL
//
// The default base URL is:
//
//	http://localhost:8080
package api
