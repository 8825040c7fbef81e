// Package gmail drives an authenticated Gmail IMAP session.
//
// The package exposes a small session-oriented surface:
//
//   - Dial: open a TLS connection and authenticate with a bearer token
//     (SASL XOAUTH2).
//   - Session.Folders: enumerate folder names in server order.
//   - Session.Select: switch the session to a named folder.
//   - Session.Fetch: run one logical search and stream the matching
//     messages in fixed batches, without marking them seen.
//   - Session.Close: log the session out.
//
// Search selection is expressed as a Criteria value built with Translate:
// explicit UIDs win over a raw X-GM-RAW query, which wins over ALL.
//
// The session owns the connection for the duration of a run. Callers must
// Close it on every exit path, typically with defer immediately after Dial.
package gmail
