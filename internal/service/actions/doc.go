// Package actions owns the unsubscribe audit log: an append-only record of
// every unsubscribe attempt and a read-only query over it for operators.
//
// Recorder writes are detached from the request that produced them. A failed
// write is logged and counted but never reaches the caller.
package actions
