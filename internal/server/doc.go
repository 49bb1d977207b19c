// Package server provides the authenticated HTTP router and server
// lifecycle for tailgate.
//
// This package is internal to tailgate and handles all HTTP concerns:
//
//   - Path extraction: query and fragment are stripped and the path is
//     percent-decoded; anything not absolute is rejected with 400
//   - Authentication: HTTP Basic against a static credential table, 401 with
//     a realm challenge on failure
//   - GET/HEAD: log-tail streams (Server-Sent Events) or static files
//   - POST: dispatch to an externally supplied path → [Handler] table
//
// Every request runs behind a panic boundary so one failing connection
// cannot affect any other. The server supports graceful shutdown via context
// cancellation, bounded by a configurable timeout.
//
// Users of the tailgate library should not need to interact with this
// package directly. The router is built by [tailgate.Frontend.Start].
package server
