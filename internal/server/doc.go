// Package server provides the HTTP API of dispatch.
//
// The server exposes the dispatch service over JSON:
//
//   - GET  /command                 list templates
//   - GET  /command/{name}          one template
//   - POST /command/{name}/bind     bind arguments without running
//   - POST /run                     start a run; the response holds the drafted plan
//   - GET  /run                     live and persisted runs
//   - GET  /run/{runID}             one run
//   - POST /run/{runID}/signal      approve, approve a subset, iterate or cancel
//   - GET  /event                   server-sent events for every run
//   - GET  /health                  liveness
//
// Errors use a single envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}}}
//
// Approval signals are processed synchronously: the response to an approve
// arrives after the apply phase has ended and carries the final snapshot.
package server
