// Package unsubscribe implements the resolve-and-suppress workflow behind
// the public unsubscribe form.
//
// A request is resolved to at most one Mautic contact by exact email match,
// the contact's email channel is added to Do Not Contact with a bounded
// number of attempts, and exactly one audit record is written. The caller
// only ever learns one of two things: the request was accepted, or the CRM
// could not be searched at all. Whether the address exists never leaks.
package unsubscribe
