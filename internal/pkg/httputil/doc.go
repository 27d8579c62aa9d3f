// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so every endpoint emits the same JSON envelope and never leaks
// internal error text in a 5xx body.
package httputil
